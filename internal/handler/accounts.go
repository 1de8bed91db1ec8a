package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/accountdesk/internal/auth"
	"github.com/matthewbaird/accountdesk/internal/command"
	"github.com/matthewbaird/accountdesk/internal/desk"
	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/logger"
	"github.com/matthewbaird/accountdesk/internal/templates"
)

// Desk is the command surface the HTTP handlers drive.
type Desk interface {
	Handle(ctx context.Context, actor, conversation string, cmd command.Command) desk.Reply
	HandleText(ctx context.Context, actor, conversation, line string) desk.Reply
	Role(actor string) auth.Role
	Templates() *templates.Registry
}

// AccountHandler implements the REST surface over the desk. Every route
// funnels into Desk.Handle so authorization, caching and auditing match
// the chat console.
type AccountHandler struct {
	desk Desk
	log  *logger.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(d Desk, log *logger.Logger) *AccountHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &AccountHandler{desk: d, log: log.With("component", "http")}
}

// Routes registers the account routes on r.
func (h *AccountHandler) Routes(r chi.Router) {
	r.Post("/v1/conversations/{conversation}/commands", h.HandleCommand)
	r.Get("/v1/accounts", h.ListAccounts)
	r.Post("/v1/accounts/bulk", h.BulkAction)
	r.Get("/v1/accounts/{id}", h.GetAccount)
	r.Delete("/v1/accounts/{id}", h.DeleteAccount)
	r.Get("/v1/accounts/{id}/devices", h.ListDevices)
	r.Post("/v1/accounts/{id}/devices", h.AddDevice)
	r.Delete("/v1/accounts/{id}/devices/{hwid}", h.DeleteDevice)
	r.Get("/v1/accounts/{id}/stats", h.GetStats)
	r.Post("/v1/accounts/{id}/{action}", h.ApplyAction)
	r.Get("/v1/templates", h.ListTemplates)
}

type commandRequest struct {
	Line string `json:"line,omitempty"`
	command.Command
}

// HandleCommand runs one conversational command, given either as a typed
// line or as a structured command.
// POST /v1/conversations/{conversation}/commands
func (h *AccountHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.log, w, r)
	if !ok {
		return
	}
	var req commandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}
	conversation := chi.URLParam(r, "conversation")
	if line := strings.TrimSpace(req.Line); line != "" {
		writeReply(h.log, w, h.desk.HandleText(r.Context(), actor, conversation, line))
		return
	}
	if req.Verb == "" {
		writeError(h.log, w, http.StatusBadRequest, "INVALID_COMMAND", "line or verb is required")
		return
	}
	writeReply(h.log, w, h.desk.Handle(r.Context(), actor, conversation, req.Command))
}

// ListAccounts returns one page of accounts, or search results when q is
// given.
// GET /v1/accounts?page=N or GET /v1/accounts?q=term
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.log, w, r)
	if !ok {
		return
	}
	cmd := command.Command{Verb: command.List}
	if q, found := r.URL.Query()["q"]; found {
		cmd = command.Command{Verb: command.Search, Text: q[0]}
	} else if p := r.URL.Query().Get("page"); p != "" {
		cmd.Args = []string{p}
	}
	writeReply(h.log, w, h.desk.Handle(r.Context(), actor, "", cmd))
}

// GetAccount returns one account.
// GET /v1/accounts/{id}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	h.targeted(w, r, command.View)
}

// DeleteAccount deletes one account.
// DELETE /v1/accounts/{id}
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	h.targeted(w, r, command.Delete)
}

// ApplyAction runs enable, disable, reset or revoke on one account.
// POST /v1/accounts/{id}/{action}
func (h *AccountHandler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "action")
	action, ok := directory.ParseAction(raw)
	if !ok || action.ChangesMembership() {
		writeError(h.log, w, http.StatusNotFound, "UNKNOWN_ACTION", "unknown action "+strconv.Quote(raw))
		return
	}
	h.targeted(w, r, command.Verb(action))
}

func (h *AccountHandler) targeted(w http.ResponseWriter, r *http.Request, verb command.Verb) {
	actor, ok := actorFrom(h.log, w, r)
	if !ok {
		return
	}
	cmd := command.Command{Verb: verb, TargetID: chi.URLParam(r, "id")}
	writeReply(h.log, w, h.desk.Handle(r.Context(), actor, "", cmd))
}

// ListDevices returns the hardware ids bound to one account.
// GET /v1/accounts/{id}/devices
func (h *AccountHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	h.targeted(w, r, command.Devices)
}

// AddDevice binds a hardware id to one account.
// POST /v1/accounts/{id}/devices
func (h *AccountHandler) AddDevice(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.log, w, r)
	if !ok {
		return
	}
	var req struct {
		HWID string `json:"hwid"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}
	if strings.TrimSpace(req.HWID) == "" {
		writeError(h.log, w, http.StatusBadRequest, "MISSING_PARAMS", "hwid is required")
		return
	}
	cmd := command.Command{Verb: command.AddDevice, TargetID: chi.URLParam(r, "id"), Args: []string{strings.TrimSpace(req.HWID)}}
	writeReply(h.log, w, h.desk.Handle(r.Context(), actor, "", cmd))
}

// DeleteDevice unbinds a hardware id from one account.
// DELETE /v1/accounts/{id}/devices/{hwid}
func (h *AccountHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.log, w, r)
	if !ok {
		return
	}
	cmd := command.Command{Verb: command.DelDevice, TargetID: chi.URLParam(r, "id"), Args: []string{chi.URLParam(r, "hwid")}}
	writeReply(h.log, w, h.desk.Handle(r.Context(), actor, "", cmd))
}

// GetStats returns the account's traffic over the last 30 days by node.
// GET /v1/accounts/{id}/stats
func (h *AccountHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.targeted(w, r, command.Stats)
}

type bulkRequest struct {
	Action string   `json:"action"`
	IDs    []string `json:"ids"`
}

// BulkAction applies one action to many accounts.
// POST /v1/accounts/bulk
func (h *AccountHandler) BulkAction(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.log, w, r)
	if !ok {
		return
	}
	var req bulkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}
	if req.Action == "" || len(req.IDs) == 0 {
		writeError(h.log, w, http.StatusBadRequest, "MISSING_PARAMS", "action and ids are required")
		return
	}
	cmd := command.Command{Verb: command.Bulk, Args: append([]string{req.Action}, req.IDs...)}
	writeReply(h.log, w, h.desk.Handle(r.Context(), actor, "", cmd))
}

// ListTemplates returns every configured template with its presets.
// GET /v1/templates
func (h *AccountHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.log, w, r)
	if !ok {
		return
	}
	if !h.desk.Role(actor).CanRead() {
		writeError(h.log, w, http.StatusForbidden, "FORBIDDEN", "not authorized")
		return
	}
	tpls := h.desk.Templates().All()
	if tpls == nil {
		tpls = []templates.Template{}
	}
	writeJSON(h.log, w, http.StatusOK, map[string]any{"templates": tpls})
}
