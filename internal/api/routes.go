package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/khanglvm/tetris/internal/commands"
	"github.com/khanglvm/tetris/internal/search"
	"github.com/khanglvm/tetris/internal/storage"
	"go.uber.org/zap"
)

type interpretRequest struct {
	Text string `json:"text"`
}

// Interpret runs one utterance through the engine.
func (h *Handler) Interpret(w http.ResponseWriter, r *http.Request) {
	var req interpretRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	JSON(w, http.StatusOK, h.engine.InterpretDetailed(r.Context(), req.Text))
}

type commandRequest struct {
	Trigger    string `json:"trigger"`
	Response   string `json:"response"`
	ActionType string `json:"action_type"`
	Parameters string `json:"parameters"`
}

func (req commandRequest) command() (storage.CustomCommand, error) {
	action, err := storage.ParseActionType(req.ActionType)
	if err != nil {
		return storage.CustomCommand{}, err
	}
	return storage.CustomCommand{
		Trigger:    req.Trigger,
		Response:   req.Response,
		ActionType: action,
		Parameters: req.Parameters,
	}, nil
}

// ListCommands returns every custom command, most used first.
func (h *Handler) ListCommands(w http.ResponseWriter, r *http.Request) {
	cmds, err := h.engine.Resolver().List(r.Context())
	if err != nil {
		storageError(w, err)
		return
	}
	if cmds == nil {
		cmds = []storage.CustomCommand{}
	}
	JSON(w, http.StatusOK, map[string]any{"commands": commands.ByUsage(cmds)})
}

// CreateCommand teaches a new custom command.
func (h *Handler) CreateCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cmd, err := req.command()
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.engine.Resolver().Add(r.Context(), cmd)
	if err != nil {
		storageError(w, err)
		return
	}
	JSON(w, http.StatusCreated, created)
}

// UpdateCommand edits the command named in the path. A trigger in the body
// is ignored.
func (h *Handler) UpdateCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Trigger = chi.URLParam(r, "trigger")
	cmd, err := req.command()
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.engine.Resolver()
	if err := res.Update(r.Context(), cmd); err != nil {
		storageError(w, err)
		return
	}
	updated, err := res.Get(r.Context(), cmd.Trigger)
	if err != nil {
		storageError(w, err)
		return
	}
	JSON(w, http.StatusOK, updated)
}

// DeleteCommand forgets a custom command.
func (h *Handler) DeleteCommand(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Resolver().Remove(r.Context(), chi.URLParam(r, "trigger")); err != nil {
		storageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Suggest completes ?q= from built-in phrases and custom triggers.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	suggestions := h.suggester.Suggest(r.Context(), r.URL.Query().Get("q"), limit)
	if suggestions == nil {
		suggestions = []string{}
	}
	JSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// SearchHistory runs a full-text query over conversation memory.
func (h *Handler) SearchHistory(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		Error(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	results, err := search.SearchHistory(r.Context(), h.history, q, r.URL.Query().Get("context"), limit, h.logger)
	if err != nil {
		storageError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"results": results})
}

// GetLearning reports learning mode and pattern statistics.
func (h *Handler) GetLearning(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.Learner().Status(r.Context())
	if err != nil {
		h.logger.Warn("learning status incomplete", zap.Error(err))
	}
	JSON(w, http.StatusOK, status)
}

type learningRequest struct {
	Enabled *bool `json:"enabled"`
}

// PutLearning switches learning mode and persists the choice.
func (h *Handler) PutLearning(w http.ResponseWriter, r *http.Request) {
	var req learningRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		Error(w, http.StatusBadRequest, "missing field enabled")
		return
	}

	l := h.engine.Learner()
	if err := l.SetEnabled(r.Context(), *req.Enabled); err != nil {
		// The switch still applies to this process.
		h.logger.Warn("learning mode not persisted", zap.Error(err))
	}
	status, _ := l.Status(r.Context())
	JSON(w, http.StatusOK, status)
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		Error(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}
