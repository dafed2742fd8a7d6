package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"propsift/internal/cache"
	"propsift/internal/compiler"
	"propsift/internal/errors"
	"propsift/internal/executor"
)

// widgetQueryRequest is the body of POST /api/widgets/query. The caller's
// identity rides in headers; effective permissions, when the gateway
// forwards them, ride in the body.
type widgetQueryRequest struct {
	Query       compiler.WidgetQueryInput      `json:"query"`
	Permissions map[string]compiler.Permission `json:"permissions,omitempty"`
	ScopeKey    string                         `json:"scopeKey,omitempty"`
}

type widgetQueryResponse struct {
	executor.Outcome
	Cached   bool       `json:"cached"`
	CachedAt *time.Time `json:"cachedAt,omitempty"`
}

// drilldownRequest is the body of POST /api/widgets/drilldown.
type drilldownRequest struct {
	widgetQueryRequest
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Search   string `json:"search,omitempty"`
}

type drilldownResponse struct {
	Rows       []map[string]interface{} `json:"rows"`
	Total      int64                    `json:"total"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"pageSize"`
	TotalPages int                      `json:"totalPages"`
}

// invalidateRequest is the body of POST /api/invalidate, posted by
// mutation paths that live outside this service.
type invalidateRequest struct {
	TenantID    string `json:"tenantId"`
	Entity      string `json:"entity"`
	Mutation    string `json:"mutation"`
	LabelChange bool   `json:"labelChange,omitempty"`
}

func (s *Server) handleWidgetQuery(w http.ResponseWriter, r *http.Request) {
	if !s.requirePost(w, r) {
		return
	}

	var req widgetQueryRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cctx, err := s.compileCtx(r, &req)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	cq, err := s.compiler.Compile(&req.Query, cctx)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	result, err := s.widgets.Fetch(r.Context(), cctx.TenantID, cq.Deps, cctx.PermissionHash, cq.Hash,
		func(ctx context.Context) (json.RawMessage, error) {
			out, runErr := s.executor.Run(ctx, cq, &req.Query)
			if runErr != nil {
				return nil, runErr
			}
			return json.Marshal(out)
		})
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	var resp widgetQueryResponse
	if err := json.Unmarshal(result.Data, &resp.Outcome); err != nil {
		WriteError(w, s.logger, errors.Wrap(errors.InternalError, err, "corrupt widget payload"))
		return
	}
	resp.Cached = result.Cached
	if result.Cached && !result.CachedAt.IsZero() {
		at := result.CachedAt
		resp.CachedAt = &at
	}

	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDrilldown(w http.ResponseWriter, r *http.Request) {
	if !s.requirePost(w, r) {
		return
	}

	var req drilldownRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cctx, err := s.compileCtx(r, &req.widgetQueryRequest)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	cq, err := s.compiler.Compile(&req.Query, cctx)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	// Drilldown rows are never cached; they page over live data.
	page, err := s.executor.Drilldown(r.Context(), cq, req.Page, req.PageSize, req.Search)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	pageNum, pageSize := clampPaging(req.Page, req.PageSize)
	WriteJSON(w, http.StatusOK, drilldownResponse{
		Rows:       page.Rows,
		Total:      page.Total,
		Page:       pageNum,
		PageSize:   pageSize,
		TotalPages: executor.TotalPages(page.Total, pageSize),
	})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if !s.requirePost(w, r) {
		return
	}

	var req invalidateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.TenantID == "" || req.Entity == "" {
		WriteError(w, s.logger, errors.New(errors.InvalidRequest, "tenantId and entity are required"))
		return
	}

	mutation := cache.Mutation(req.Mutation)
	switch mutation {
	case cache.MutationCreate, cache.MutationUpdate, cache.MutationDelete,
		cache.MutationBulkCreate, cache.MutationBulkDelete:
	default:
		WriteError(w, s.logger, errors.New(errors.InvalidRequest, "unknown mutation %q", req.Mutation))
		return
	}

	s.invalidator.OnMutation(r.Context(), req.TenantID, req.Entity, mutation, cache.MutationOpts{
		LabelChange: req.LabelChange,
	})

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"related": cache.AffectedEntities(req.Entity),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
			Code:    string(errors.InvalidRequest),
			Message: "method not allowed",
		})
		return
	}

	type segmentInfo struct {
		Key      string `json:"key"`
		Label    string `json:"label"`
		Category string `json:"category,omitempty"`
	}
	type dimensionInfo struct {
		Key           string   `json:"key"`
		Label         string   `json:"label"`
		Granularities []string `json:"granularities,omitempty"`
	}
	type metricInfo struct {
		Key           string `json:"key"`
		Type          string `json:"type"`
		Format        string `json:"format,omitempty"`
		RequiresField bool   `json:"requiresField"`
	}
	type entityInfo struct {
		Key             string          `json:"key"`
		Label           string          `json:"label"`
		LabelPlural     string          `json:"labelPlural"`
		DateModes       []string        `json:"dateModes"`
		DefaultDateMode string          `json:"defaultDateMode"`
		Segments        []segmentInfo   `json:"segments"`
		Dimensions      []dimensionInfo `json:"dimensions"`
		Metrics         []metricInfo    `json:"metrics"`
	}

	entities := make([]entityInfo, 0)
	for _, key := range s.catalog.EntityKeys() {
		e, _ := s.catalog.Entity(key)
		info := entityInfo{
			Key:             e.Key,
			Label:           e.Label,
			LabelPlural:     e.LabelPlural,
			DateModes:       e.DateModes,
			DefaultDateMode: e.DefaultDateMode,
			Segments:        []segmentInfo{},
			Dimensions:      []dimensionInfo{},
			Metrics:         []metricInfo{},
		}
		for _, seg := range s.catalog.SegmentsForEntity(key) {
			info.Segments = append(info.Segments, segmentInfo{Key: seg.Key, Label: seg.Label, Category: seg.Category})
		}
		for _, d := range s.catalog.DimensionsForEntity(key) {
			info.Dimensions = append(info.Dimensions, dimensionInfo{Key: d.Key, Label: d.Label, Granularities: d.Granularities})
		}
		for _, m := range s.catalog.MetricsForEntity(key) {
			info.Metrics = append(info.Metrics, metricInfo{
				Key:           m.Key,
				Type:          string(m.Type),
				Format:        m.Format,
				RequiresField: m.RequiresField(),
			})
		}
		entities = append(entities, info)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"entities": entities})
}

// compileCtx assembles the compilation context from identity headers and
// the forwarded permission set.
func (s *Server) compileCtx(r *http.Request, req *widgetQueryRequest) (*compiler.CompileCtx, error) {
	tenant := r.Header.Get("X-Tenant-ID")
	if tenant == "" {
		return nil, errors.New(errors.InvalidRequest, "X-Tenant-ID header is required")
	}

	cctx := &compiler.CompileCtx{
		TenantID:    tenant,
		UserID:      r.Header.Get("X-User-ID"),
		Role:        r.Header.Get("X-Role"),
		Timezone:    r.Header.Get("X-Timezone"),
		Permissions: req.Permissions,
		ScopeKey:    req.ScopeKey,
	}
	cctx.PermissionHash = compiler.HashPermissions(cctx.Permissions, cctx.Role, cctx.ScopeKey)
	return cctx, nil
}

func (s *Server) requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		WriteJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
			Code:    string(errors.InvalidRequest),
			Message: "method not allowed",
		})
		return false
	}
	return true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, s.logger, errors.Wrap(errors.InvalidRequest, err, "invalid request body"))
		return false
	}
	return true
}

// clampPaging mirrors the executor's bounds so the response echoes the
// page actually served.
func clampPaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
