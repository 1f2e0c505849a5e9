// Package http exposes a live Config, a data tree and stored snapshots
// over HTTP.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/dataforge/adapters/metrics"
	"github.com/artpar/dataforge/core/data"
	"github.com/artpar/dataforge/core/descriptors"
	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/core/metacodec"
	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
	"github.com/artpar/dataforge/ports"
)

// ErrorResponseBody is the body of every error response.
type ErrorResponseBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an error.
type ErrorDetail struct {
	Code       string                  `json:"code"`
	Message    string                  `json:"message"`
	Violations []descriptors.Violation `json:"violations,omitempty"`
}

// ValueResponse is the body of GET /meta/{name} for a value.
type ValueResponse struct {
	Name  names.Name `json:"name"`
	Type  string     `json:"type"`
	Value any        `json:"value"`
}

// DataEntry describes one leaf of the data tree.
type DataEntry struct {
	Name     names.Name     `json:"name"`
	Type     string         `json:"type"`
	Complete bool           `json:"complete"`
	Meta     map[string]any `json:"meta,omitempty"`
	Value    any            `json:"value,omitempty"`
}

// RouterConfig holds the collaborators served by the router. Config is
// required; the rest are optional.
type RouterConfig struct {
	Config     *meta.Config
	Descriptor *descriptors.NodeDescriptor // validates PUT and DELETE when set
	Tree       data.Tree[any]
	Store      ports.MetaStore
	Metrics    *metrics.Collector
	Gatherer   prometheus.Gatherer // serves /metrics when set
	Timeout    time.Duration
}

// Handler serves the meta, data and snapshot endpoints.
type Handler struct {
	cfg    RouterConfig
	logger zerolog.Logger
}

// NewRouter creates the main HTTP router.
func NewRouter(cfg RouterConfig, logger zerolog.Logger) chi.Router {
	h := &Handler{cfg: cfg, logger: logger}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	r.Get("/health", Health)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/meta", func(r chi.Router) {
		r.Get("/", h.GetMeta)
		r.Get("/*", h.GetMeta)
		r.Put("/*", h.PutMeta)
		r.Delete("/*", h.DeleteMeta)
	})

	if cfg.Tree != nil {
		r.Route("/data", func(r chi.Router) {
			r.Get("/", h.ListData)
			r.Get("/*", h.GetData)
		})
	}

	if cfg.Store != nil {
		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", h.ListSnapshots)
			r.Post("/", h.SaveSnapshot)
			r.Get("/{id}", h.GetSnapshot)
			r.Delete("/{id}", h.DeleteSnapshot)
		})
	}

	return r
}

// Health returns a simple liveness check.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathName reads the name from the wildcard. Both "a.b" and "a/b" work.
func pathName(r *http.Request) (names.Name, error) {
	raw := strings.Trim(chi.URLParam(r, "*"), "/")
	return names.Parse(strings.ReplaceAll(raw, "/", "."))
}

// GetMeta returns the item at the name. Nodes are encoded with the codec
// named by ?format (json by default); values as a ValueResponse.
func (h *Handler) GetMeta(w http.ResponseWriter, r *http.Request) {
	name, err := pathName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_name", err.Error())
		return
	}

	var item meta.Item = meta.Node(h.cfg.Config)
	if !name.IsEmpty() {
		item = h.cfg.Config.Get(name)
	}
	switch it := item.(type) {
	case nil:
		writeError(w, http.StatusNotFound, "not_found", "no item at "+name.String())
	case meta.ValueItem:
		writeJSON(w, http.StatusOK, ValueResponse{
			Name:  name,
			Type:  string(it.Value.Type()),
			Value: values.Native(it.Value),
		})
	case meta.NodeItem:
		h.writeMeta(w, r, it.Node)
	}
}

// PutMeta stores the JSON body at the name. Objects become nodes, anything
// else a value.
func (h *Handler) PutMeta(w http.ResponseWriter, r *http.Request) {
	name, err := pathName(r)
	if err != nil || name.IsEmpty() {
		writeError(w, http.StatusBadRequest, "invalid_name", "a non-empty name is required")
		return
	}

	item, err := decodeItem(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if !h.apply(w, func(c *meta.Config) { c.Set(name, item) }) {
		return
	}
	h.logger.Debug().Stringer("name", name).Msg("meta item set")
	w.WriteHeader(http.StatusNoContent)
}

// DeleteMeta removes the item at the name.
func (h *Handler) DeleteMeta(w http.ResponseWriter, r *http.Request) {
	name, err := pathName(r)
	if err != nil || name.IsEmpty() {
		writeError(w, http.StatusBadRequest, "invalid_name", "a non-empty name is required")
		return
	}
	if h.cfg.Config.Get(name) == nil {
		writeError(w, http.StatusNotFound, "not_found", "no item at "+name.String())
		return
	}
	if !h.apply(w, func(c *meta.Config) { c.Remove(name) }) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apply runs change on the live config, after checking it against the
// descriptor on a copy.
func (h *Handler) apply(w http.ResponseWriter, change func(*meta.Config)) bool {
	if d := h.cfg.Descriptor; d != nil {
		trial := h.cfg.Config.Copy()
		change(trial)
		if res := descriptors.Validate(d, trial); !res.Valid() {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponseBody{Error: ErrorDetail{
				Code:       "validation_failed",
				Message:    res.Err().Error(),
				Violations: res.Violations,
			}})
			return false
		}
	}
	change(h.cfg.Config)
	return true
}

func decodeItem(r io.Reader) (meta.Item, error) {
	return metacodec.DecodeJSONItem(r)
}

func (h *Handler) writeMeta(w http.ResponseWriter, r *http.Request, m meta.Meta) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	c, err := metacodec.ByName(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_format", err.Error())
		return
	}
	var buf bytes.Buffer
	if err := c.Encode(&buf, m); err != nil {
		h.logger.Error().Err(err).Msg("encode meta")
		writeError(w, http.StatusInternalServerError, "internal", "failed to encode meta")
		return
	}
	w.Header().Set("Content-Type", contentType(c.Name()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func contentType(codec string) string {
	switch codec {
	case "yaml":
		return "application/yaml"
	case "cbor":
		return "application/cbor"
	default:
		return "application/json"
	}
}

// ListData lists the leaves of the data tree without computing them.
func (h *Handler) ListData(w http.ResponseWriter, r *http.Request) {
	var out []DataEntry
	for nd, err := range data.Flow(r.Context(), h.cfg.Tree) {
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		out = append(out, DataEntry{
			Name:     nd.Name,
			Type:     metrics.TypeLabel(nd.Data.Type()),
			Complete: nd.Data.IsComplete(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "data": out})
}

// GetData awaits the data at the name and returns its value and meta.
func (h *Handler) GetData(w http.ResponseWriter, r *http.Request) {
	name, err := pathName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_name", err.Error())
		return
	}
	d, err := data.GetData(r.Context(), h.cfg.Tree, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "not_found", "no data at "+name.String())
		return
	}

	ctx := r.Context()
	if h.cfg.Metrics != nil {
		ctx = data.WithObserver(ctx, h.cfg.Metrics)
	}
	v, err := d.Await(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Stringer("name", name).Msg("data computation failed")
		writeError(w, http.StatusBadGateway, "computation_failed", err.Error())
		return
	}
	if m, ok := v.(meta.Meta); ok {
		v = meta.ToMap(m)
	}
	writeJSON(w, http.StatusOK, DataEntry{
		Name:     name,
		Type:     metrics.TypeLabel(d.Type()),
		Complete: true,
		Meta:     meta.ToMap(d.Meta()),
		Value:    v,
	})
}

// SaveSnapshot stores the current config under ?name.
func (h *Handler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}
	snap, err := h.cfg.Store.Save(r.Context(), name, h.cfg.Config)
	if err != nil {
		h.logger.Error().Err(err).Msg("save snapshot")
		writeError(w, http.StatusInternalServerError, "internal", "failed to save snapshot")
		return
	}
	snap.Meta = nil
	writeJSON(w, http.StatusCreated, snapshotJSON(snap))
}

// ListSnapshots lists stored snapshots, optionally filtered by ?name.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.cfg.Store.List(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	out := make([]map[string]any, len(snaps))
	for i, s := range snaps {
		out[i] = snapshotJSON(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "data": out})
}

// GetSnapshot returns a stored snapshot's meta.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.cfg.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ports.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "snapshot not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	h.writeMeta(w, r, snap.Meta)
}

// DeleteSnapshot removes a stored snapshot.
func (h *Handler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	err := h.cfg.Store.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ports.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "snapshot not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func snapshotJSON(s ports.Snapshot) map[string]any {
	out := map[string]any{
		"id":         s.ID,
		"name":       s.Name,
		"values":     s.Values,
		"created_at": s.CreatedAt.Format(time.RFC3339Nano),
	}
	if s.Meta != nil {
		out["meta"] = meta.ToMap(s.Meta)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponseBody{Error: ErrorDetail{Code: code, Message: message}})
}

// NewMetricsMiddleware creates middleware that records request metrics.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip metrics for internal endpoints
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.RecordRequest(r.Method, route, ww.Status(), time.Since(start))
		})
	}
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLogger := logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			r = r.WithContext(reqLogger.WithContext(r.Context()))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				return
			}

			reqLogger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
