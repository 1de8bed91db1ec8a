// Activity handlers read the audit trail. They never touch the desk's
// session or cache state.
package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/accountdesk/internal/activity"
	"github.com/matthewbaird/accountdesk/internal/auth"
	"github.com/matthewbaird/accountdesk/internal/logger"
	"github.com/matthewbaird/accountdesk/internal/types"
)

// Roles resolves an actor to a role.
type Roles interface {
	Role(actor string) auth.Role
}

// ActivityHandler implements HTTP handlers for the activity feed.
type ActivityHandler struct {
	store activity.Store
	roles Roles
	log   *logger.Logger
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(store activity.Store, roles Roles, log *logger.Logger) *ActivityHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ActivityHandler{store: store, roles: roles, log: log.With("component", "http")}
}

// Routes registers the activity routes on r.
func (h *ActivityHandler) Routes(r chi.Router) {
	r.Get("/v1/accounts/{id}/activity", h.HandleGetAccountActivity)
	r.Post("/v1/activity/search", h.HandleSearchActivity)
}

func (h *ActivityHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := actorFrom(h.log, w, r)
	if !ok {
		return false
	}
	if !h.roles.Role(actor).CanRead() {
		writeError(h.log, w, http.StatusForbidden, "FORBIDDEN", "not authorized")
		return false
	}
	return true
}

// HandleGetAccountActivity returns the activity feed of one account, newest
// first.
// GET /v1/accounts/{id}/activity
func (h *ActivityHandler) HandleGetAccountActivity(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	id := chi.URLParam(r, "id")

	q := r.URL.Query()
	opts := activity.DefaultQueryOptions()
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(h.log, w, http.StatusBadRequest, "INVALID_SINCE", "since must be RFC 3339")
			return
		}
		opts.Since = &t
	}
	if u := q.Get("until"); u != "" {
		t, err := time.Parse(time.RFC3339, u)
		if err != nil {
			writeError(h.log, w, http.StatusBadRequest, "INVALID_UNTIL", "until must be RFC 3339")
			return
		}
		opts.Until = &t
	}
	if cats := q.Get("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	if mw := q.Get("min_weight"); mw != "" {
		opts.MinWeight = mw
	}
	opts.Actor = q.Get("actor")
	opts.Limit = min(queryInt(r, "limit", opts.Limit), 500)
	opts.Cursor = q.Get("cursor")

	entries, nextCursor, totalCount, err := h.store.QueryByEntity(r.Context(), types.EntityAccount, id, opts)
	if err != nil {
		h.log.Error("activity query failed", "id", id, "error", err)
		writeError(h.log, w, http.StatusInternalServerError, "QUERY_FAILED", "activity query failed")
		return
	}
	if entries == nil {
		entries = []types.ActivityEntry{}
	}
	writeJSON(h.log, w, http.StatusOK, struct {
		Activities []types.ActivityEntry `json:"activities"`
		NextCursor string                `json:"next_cursor,omitempty"`
		TotalCount int                   `json:"total_count"`
	}{entries, nextCursor, totalCount})
}

// HandleSearchActivity searches activity summaries.
// POST /v1/activity/search
func (h *ActivityHandler) HandleSearchActivity(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	var req struct {
		Query      string   `json:"query"`
		Since      string   `json:"since,omitempty"`
		Categories []string `json:"categories,omitempty"`
		Limit      int      `json:"limit,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(h.log, w, http.StatusBadRequest, "MISSING_PARAMS", "query is required")
		return
	}

	opts := activity.DefaultSearchOptions()
	opts.EntityType = types.EntityAccount
	opts.Categories = req.Categories
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.Since != "" {
		t, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			writeError(h.log, w, http.StatusBadRequest, "INVALID_SINCE", "since must be RFC 3339")
			return
		}
		opts.Since = &t
	}

	entries, total, err := h.store.Search(r.Context(), req.Query, opts)
	if err != nil {
		h.log.Error("activity search failed", "error", err)
		writeError(h.log, w, http.StatusInternalServerError, "SEARCH_FAILED", "activity search failed")
		return
	}
	if entries == nil {
		entries = []types.ActivityEntry{}
	}
	writeJSON(h.log, w, http.StatusOK, struct {
		Results    []types.ActivityEntry `json:"results"`
		TotalCount int                   `json:"total_count"`
	}{entries, total})
}
