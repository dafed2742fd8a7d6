// Package counters keeps the denormalized per-record counts (tags,
// motivations, phones, emails) correct: the service mutates a junction
// row and its parent counter in one transaction, and the reconciler
// repairs whatever drift still sneaks in.
package counters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"propsift/internal/cache"
	"propsift/internal/logging"
	"propsift/internal/store"
)

// Service performs junction mutations with counter maintenance. Every
// operation is one sqlite transaction followed by a best-effort cache
// invalidation.
type Service struct {
	db          *store.DB
	invalidator *cache.Invalidator
	logger      *logging.Logger
}

// NewService creates the counter service.
func NewService(db *store.DB, invalidator *cache.Invalidator, logger *logging.Logger) *Service {
	return &Service{
		db:          db,
		invalidator: invalidator,
		logger:      logger.WithComponent("counters"),
	}
}

// AttachTag links a tag to a record and increments tag_count. Attaching
// an already-present tag is a no-op and leaves the counter alone.
func (s *Service) AttachTag(ctx context.Context, tenant, recordID, tagID string) error {
	return s.attach(ctx, tenant, "record_tags", recordID, "tag_count",
		`INSERT OR IGNORE INTO record_tags (id, record_id, tag_id, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), recordID, tagID, nowText())
}

// DetachTag unlinks a tag and decrements tag_count. Detaching an absent
// tag is a no-op.
func (s *Service) DetachTag(ctx context.Context, tenant, recordID, tagID string) error {
	return s.detach(ctx, tenant, "record_tags", recordID, "tag_count",
		`DELETE FROM record_tags WHERE record_id = ? AND tag_id = ?`, recordID, tagID)
}

// AttachMotivation links a motivation to a record.
func (s *Service) AttachMotivation(ctx context.Context, tenant, recordID, motivationID string) error {
	return s.attach(ctx, tenant, "record_motivations", recordID, "motivation_count",
		`INSERT OR IGNORE INTO record_motivations (id, record_id, motivation_id, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), recordID, motivationID, nowText())
}

// DetachMotivation unlinks a motivation from a record.
func (s *Service) DetachMotivation(ctx context.Context, tenant, recordID, motivationID string) error {
	return s.detach(ctx, tenant, "record_motivations", recordID, "motivation_count",
		`DELETE FROM record_motivations WHERE record_id = ? AND motivation_id = ?`, recordID, motivationID)
}

// AddPhone attaches a phone number to a record and returns the phone id.
func (s *Service) AddPhone(ctx context.Context, tenant, recordID, number, phoneType string) (string, error) {
	id := uuid.NewString()
	var pt interface{}
	if phoneType != "" {
		pt = phoneType
	}
	err := s.attach(ctx, tenant, "phones", recordID, "phone_count",
		`INSERT INTO phones (id, record_id, number, phone_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, recordID, number, pt, nowText())
	if err != nil {
		return "", err
	}
	return id, nil
}

// RemovePhone deletes a phone row and decrements the parent counter.
func (s *Service) RemovePhone(ctx context.Context, tenant, phoneID string) error {
	return s.removeChild(ctx, tenant, "phones", "phone_count", phoneID)
}

// AddEmail attaches an email address to a record and returns the email id.
func (s *Service) AddEmail(ctx context.Context, tenant, recordID, address string) (string, error) {
	id := uuid.NewString()
	err := s.attach(ctx, tenant, "emails", recordID, "email_count",
		`INSERT INTO emails (id, record_id, address, created_at) VALUES (?, ?, ?, ?)`,
		id, recordID, address, nowText())
	if err != nil {
		return "", err
	}
	return id, nil
}

// RemoveEmail deletes an email row and decrements the parent counter.
func (s *Service) RemoveEmail(ctx context.Context, tenant, emailID string) error {
	return s.removeChild(ctx, tenant, "emails", "email_count", emailID)
}

// attach inserts a child/junction row and increments the parent counter
// atomically. When the insert is ignored (duplicate link) nothing
// changes and no invalidation fires.
func (s *Service) attach(ctx context.Context, tenant, entity, recordID, counter, insertSQL string, args ...interface{}) error {
	inserted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, insertSQL, args...)
		if err != nil {
			return fmt.Errorf("insert %s: %w", entity, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		inserted = true
		return s.bumpCounter(ctx, tx, recordID, counter, +1)
	})
	if err != nil {
		return err
	}
	if inserted {
		s.invalidator.OnMutation(ctx, tenant, entity, cache.MutationCreate, cache.MutationOpts{})
	}
	return nil
}

// detach deletes a junction row by its natural key and decrements the
// parent counter atomically.
func (s *Service) detach(ctx context.Context, tenant, entity, recordID, counter, deleteSQL string, args ...interface{}) error {
	deleted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, deleteSQL, args...)
		if err != nil {
			return fmt.Errorf("delete %s: %w", entity, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		deleted = true
		return s.bumpCounter(ctx, tx, recordID, counter, -1)
	})
	if err != nil {
		return err
	}
	if deleted {
		s.invalidator.OnMutation(ctx, tenant, entity, cache.MutationDelete, cache.MutationOpts{})
	}
	return nil
}

// removeChild deletes a child row by id, resolving its parent record
// inside the same transaction.
func (s *Service) removeChild(ctx context.Context, tenant, entity, counter, childID string) error {
	deleted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var recordID string
		query := fmt.Sprintf("SELECT record_id FROM %s WHERE id = ?", entity)
		err := tx.QueryRowContext(ctx, query, childID).Scan(&recordID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", entity), childID); err != nil {
			return fmt.Errorf("delete %s: %w", entity, err)
		}
		deleted = true
		return s.bumpCounter(ctx, tx, recordID, counter, -1)
	})
	if err != nil {
		return err
	}
	if deleted {
		s.invalidator.OnMutation(ctx, tenant, entity, cache.MutationDelete, cache.MutationOpts{})
	}
	return nil
}

// bumpCounter adjusts a record counter, flooring at zero on decrement.
func (s *Service) bumpCounter(ctx context.Context, tx *sql.Tx, recordID, counter string, delta int) error {
	query := fmt.Sprintf(
		"UPDATE records SET %s = MAX(%s + ?, 0), updated_at = ? WHERE id = ?",
		counter, counter)
	res, err := tx.ExecContext(ctx, query, delta, nowText(), recordID)
	if err != nil {
		return fmt.Errorf("update %s: %w", counter, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %s not found", recordID)
	}
	return nil
}

func (s *Service) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nowText() string {
	return time.Now().UTC().Format(time.RFC3339)
}
