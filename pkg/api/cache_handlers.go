package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/coursemetrics/pkg/cache"
	"github.com/platinummonkey/coursemetrics/pkg/httputil"
)

// maxInvalidateBody bounds the body of an invalidation request
const maxInvalidateBody = 4 << 10

// CacheHandlers exposes cache invalidation for the write path and cache
// statistics for operators
type CacheHandlers struct {
	manager *cache.Manager
	log     logrus.FieldLogger
}

// NewCacheHandlers creates cache handlers over manager
func NewCacheHandlers(manager *cache.Manager, log logrus.FieldLogger) *CacheHandlers {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CacheHandlers{manager: manager, log: log}
}

// InvalidateRequest names the entity a write touched
type InvalidateRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// InvalidateResponse reports how many entries were dropped
type InvalidateResponse struct {
	Removed int `json:"removed"`
}

// RegisterRoutes registers cache API routes
func (h *CacheHandlers) RegisterRoutes(r *mux.Router) {
	r.Handle("/api/v1/cache/invalidate",
		httputil.MaxBytesMiddleware(maxInvalidateBody)(http.HandlerFunc(h.invalidate))).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/cache/stats", h.stats).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/cache/{namespace}", h.clear).Methods(http.MethodDelete)
}

// invalidate handles POST /api/v1/cache/invalidate
func (h *CacheHandlers) invalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.EntityType == "" || req.EntityID == "" {
		httputil.WriteBadRequest(w, "entity_type and entity_id are required")
		return
	}

	removed, err := h.manager.InvalidateRelated(r.Context(), cache.EntityType(req.EntityType), req.EntityID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, InvalidateResponse{Removed: removed})
}

// clear handles DELETE /api/v1/cache/{namespace}
func (h *CacheHandlers) clear(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "namespace")
	if !ok {
		return
	}
	ns := cache.Namespace(name)
	if !ns.Valid() {
		httputil.WriteNotFoundError(w, fmt.Sprintf("unknown cache namespace: %s", name))
		return
	}

	h.manager.Clear(r.Context(), ns)
	h.log.WithField("namespace", ns).Info("Cleared cache namespace")
	w.WriteHeader(http.StatusNoContent)
}

// stats handles GET /api/v1/cache/stats
func (h *CacheHandlers) stats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.manager.Stats())
}
