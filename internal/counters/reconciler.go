package counters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"propsift/internal/cache"
	"propsift/internal/logging"
	"propsift/internal/store"
)

// Correction records one repaired counter drift.
type Correction struct {
	RecordID string `json:"recordId"`
	Field    string `json:"field"`
	Stored   int64  `json:"stored"`
	Actual   int64  `json:"actual"`
}

// Summary is the outcome of a batch reconciliation run.
type Summary struct {
	Scanned     int          `json:"scanned"`
	Corrections []Correction `json:"corrections"`
	Failed      int          `json:"failed"`
}

// counterSpec ties a record counter column to the table it denormalizes.
type counterSpec struct {
	field string
	table string
}

var counterSpecs = []counterSpec{
	{"tag_count", "record_tags"},
	{"motivation_count", "record_motivations"},
	{"phone_count", "phones"},
	{"email_count", "emails"},
}

// Reconciler recomputes true counts from the junction tables and
// overwrites drifted counters.
type Reconciler struct {
	db          *store.DB
	invalidator *cache.Invalidator
	logger      *logging.Logger
	batchSize   int
}

// NewReconciler creates a reconciler. batchSize bounds the ids fetched
// per cursor page during tenant-wide runs.
func NewReconciler(db *store.DB, invalidator *cache.Invalidator, batchSize int, logger *logging.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Reconciler{
		db:          db,
		invalidator: invalidator,
		logger:      logger.WithComponent("reconciler"),
		batchSize:   batchSize,
	}
}

// ReconcileRecord checks all four counters of one record and repairs any
// drift, returning a correction per repaired field.
func (r *Reconciler) ReconcileRecord(ctx context.Context, tenant, recordID string) ([]Correction, error) {
	var stored [4]int64
	err := r.db.Conn().QueryRowContext(ctx,
		`SELECT tag_count, motivation_count, phone_count, email_count FROM records WHERE id = ?`,
		recordID).Scan(&stored[0], &stored[1], &stored[2], &stored[3])
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %s not found", recordID)
	}
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", recordID, err)
	}

	var corrections []Correction
	for i, spec := range counterSpecs {
		var actual int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE record_id = ?", spec.table)
		if err := r.db.Conn().QueryRowContext(ctx, query, recordID).Scan(&actual); err != nil {
			return nil, fmt.Errorf("count %s for %s: %w", spec.table, recordID, err)
		}
		if actual == stored[i] {
			continue
		}

		update := fmt.Sprintf("UPDATE records SET %s = ?, updated_at = ? WHERE id = ?", spec.field)
		if _, err := r.db.Conn().ExecContext(ctx, update, actual, time.Now().UTC().Format(time.RFC3339), recordID); err != nil {
			return nil, fmt.Errorf("repair %s on %s: %w", spec.field, recordID, err)
		}

		corrections = append(corrections, Correction{
			RecordID: recordID,
			Field:    spec.field,
			Stored:   stored[i],
			Actual:   actual,
		})
		r.logger.Info("Repaired counter drift", map[string]interface{}{
			"recordId": recordID,
			"field":    spec.field,
			"stored":   stored[i],
			"actual":   actual,
		})
	}

	if len(corrections) > 0 {
		r.invalidator.OnMutation(ctx, tenant, "records", cache.MutationUpdate, cache.MutationOpts{})
	}
	return corrections, nil
}

// ReconcileTenant reconciles every record of a tenant in cursor-paginated
// batches. Per-record failures are counted and logged, never abort the
// run.
func (r *Reconciler) ReconcileTenant(ctx context.Context, tenant string) (*Summary, error) {
	return r.reconcileWhere(ctx, tenant,
		`SELECT id FROM records WHERE (tenant_id = ? OR tenant_id IS NULL) AND id > ? ORDER BY id LIMIT ?`,
		func(cursor string) []interface{} { return []interface{}{tenant, cursor, r.batchSize} })
}

// ReconcileSince reconciles only records modified at or after the given
// instant.
func (r *Reconciler) ReconcileSince(ctx context.Context, tenant string, since time.Time) (*Summary, error) {
	sinceText := since.UTC().Format(time.RFC3339)
	return r.reconcileWhere(ctx, tenant,
		`SELECT id FROM records WHERE (tenant_id = ? OR tenant_id IS NULL) AND updated_at >= ? AND id > ? ORDER BY id LIMIT ?`,
		func(cursor string) []interface{} { return []interface{}{tenant, sinceText, cursor, r.batchSize} })
}

func (r *Reconciler) reconcileWhere(ctx context.Context, tenant, query string, args func(cursor string) []interface{}) (*Summary, error) {
	summary := &Summary{Corrections: []Correction{}}
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		ids, err := r.fetchIDs(ctx, query, args(cursor))
		if err != nil {
			return summary, err
		}
		if len(ids) == 0 {
			return summary, nil
		}

		for _, id := range ids {
			summary.Scanned++
			corrections, err := r.ReconcileRecord(ctx, tenant, id)
			if err != nil {
				summary.Failed++
				r.logger.Warn("Record reconciliation failed", map[string]interface{}{
					"recordId": id,
					"error":    err.Error(),
				})
				continue
			}
			summary.Corrections = append(summary.Corrections, corrections...)
		}
		cursor = ids[len(ids)-1]
	}
}

func (r *Reconciler) fetchIDs(ctx context.Context, query string, args []interface{}) ([]string, error) {
	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch record batch: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Tenants lists the distinct tenant ids present in records. Legacy NULL
// rows ride along with whichever tenant reconciles them.
func (r *Reconciler) Tenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM records WHERE tenant_id IS NOT NULL ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
