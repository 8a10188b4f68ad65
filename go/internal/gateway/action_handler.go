package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordparty/go/internal/room"
)

const maxActionBody = 4 << 10

// SubmitRequest is the body of POST /api/rooms/{id}/submissions.
type SubmitRequest struct {
	Phrase string `json:"phrase"`
}

// VoteRequest is the body of POST /api/rooms/{id}/votes.
type VoteRequest struct {
	VotedFor string `json:"voted_for"`
}

// ErrorResponse is the body of a rejected action.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ActionHandler carries out the local player's writes on a watched room.
type ActionHandler struct {
	rooms RoomLookup
}

func NewActionHandler(rooms RoomLookup) *ActionHandler {
	return &ActionHandler{rooms: rooms}
}

// HandleSubmit handles POST /api/rooms/{id}/submissions
func (h *ActionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	session, ok := h.prepare(w, r, &req)
	if !ok {
		return
	}
	if err := session.Submit(r.Context(), req.Phrase); err != nil {
		writeActionError(w, session.RoomID(), err)
		return
	}
	writeJSON(w, http.StatusOK, session.View())
}

// HandleVote handles POST /api/rooms/{id}/votes
func (h *ActionHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	session, ok := h.prepare(w, r, &req)
	if !ok {
		return
	}
	if req.VotedFor == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "voted_for is required"})
		return
	}
	if err := session.Vote(r.Context(), req.VotedFor); err != nil {
		writeActionError(w, session.RoomID(), err)
		return
	}
	writeJSON(w, http.StatusOK, session.View())
}

// RegisterRoutes registers the action routes
func (h *ActionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/rooms/{id}/submissions", h.HandleSubmit)
	mux.HandleFunc("POST /api/rooms/{id}/votes", h.HandleVote)
}

func (h *ActionHandler) prepare(w http.ResponseWriter, r *http.Request, body any) (*room.Session, bool) {
	session, err := h.rooms.Get(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "room is not being watched"})
		return nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxActionBody)
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return nil, false
	}
	return session, true
}

// writeActionError maps session errors to statuses. Backend failures are
// reported with the generic action error only.
func writeActionError(w http.ResponseWriter, roomID string, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, room.ErrActionFailed):
		status = http.StatusBadGateway
		msg = room.ErrActionFailed.Error()
	case errors.Is(err, room.ErrNoPlayer):
		status = http.StatusForbidden
	case errors.Is(err, room.ErrWrongPhase),
		errors.Is(err, room.ErrAlreadySubmitted),
		errors.Is(err, room.ErrAlreadyVoted):
		status = http.StatusConflict
	case errors.Is(err, room.ErrEmptyPhrase),
		errors.Is(err, room.ErrSelfVote),
		errors.Is(err, room.ErrUnknownCandidate):
		status = http.StatusBadRequest
	default:
		log.Error().Err(err).Str("room_id", roomID).Msg("unexpected action error")
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}
