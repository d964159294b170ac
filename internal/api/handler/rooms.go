package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/triviasync/internal/api/request"
	"github.com/mcoot/triviasync/internal/api/response"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/rooms"
)

// RoomHandler handles room endpoints
type RoomHandler struct {
	rooms *rooms.Service
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms *rooms.Service) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

func roomID(r *http.Request) model.RoomID {
	return model.RoomID(mux.Vars(r)["id"])
}

// Create handles POST /api/v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateRoomRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	room, err := h.rooms.CreateRoom(r.Context(), req.Settings(), req.CreatorName)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.RoomResponse{Envelope: response.OK(), Room: *room})
}

// List handles GET /api/v1/rooms?status=
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.RoomStatus(r.URL.Query().Get("status"))

	list, err := h.rooms.ListRooms(r.Context(), status)
	if err != nil {
		WriteError(w, err)
		return
	}

	out := make([]model.Room, len(list))
	for i, room := range list {
		out[i] = *room
	}
	response.JSON(w, http.StatusOK, response.RoomsResponse{Envelope: response.OK(), Rooms: out})
}

// Get handles GET /api/v1/rooms/{id}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.rooms.GetRoom(r.Context(), roomID(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RoomDetailResponse{
		Envelope:     response.OK(),
		Room:         *detail.Room,
		Participants: detail.Participants,
		Questions:    detail.Questions,
	})
}

// Join handles POST /api/v1/rooms/{id}/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req request.JoinRoomRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	room, participant, participants, err := h.rooms.JoinRoom(r.Context(), roomID(r), req.PlayerName)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.JoinRoomResponse{
		Envelope:     response.OK(),
		Room:         *room,
		Participant:  *participant,
		Participants: participants,
	})
}

// Start handles POST /api/v1/rooms/{id}/start
func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req request.GuestRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.rooms.StartRoom(r.Context(), roomID(r), req.GuestID); err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.OK())
}

// Progress handles GET /api/v1/rooms/{id}/progress
func (h *RoomHandler) Progress(w http.ResponseWriter, r *http.Request) {
	snap, message, err := h.rooms.GetProgress(r.Context(), roomID(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ProgressResponse{
		Envelope:         response.OK(),
		ProgressSnapshot: snap,
		Message:          message,
	})
}

// Answer handles POST /api/v1/rooms/{id}/answers
func (h *RoomHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitAnswerRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.QuestionID == "" {
		WriteError(w, NewInvalidRequestError("questionId is required"))
		return
	}
	if req.TimeTakenSeconds < 0 {
		WriteError(w, NewInvalidRequestError("timeTakenSeconds must not be negative"))
		return
	}

	taken := time.Duration(req.TimeTakenSeconds * float64(time.Second))
	answer, err := h.rooms.SubmitAnswer(r.Context(), roomID(r), req.GuestID, req.QuestionID, req.SelectedAnswer, taken)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.AnswerResponse{Envelope: response.OK(), Answer: *answer})
}

// Finish handles POST /api/v1/rooms/{id}/finish
func (h *RoomHandler) Finish(w http.ResponseWriter, r *http.Request) {
	var req request.GuestRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.rooms.MarkFinished(r.Context(), roomID(r), req.GuestID); err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.OK())
}

// RegisterFinished handles POST /api/v1/rooms/{id}/finished
func (h *RoomHandler) RegisterFinished(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterFinishedRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.rooms.RegisterFinished(r.Context(), roomID(r), req.GuestID, req.PlayerName); err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.OK())
}

// Finished handles GET /api/v1/rooms/{id}/finished
func (h *RoomHandler) Finished(w http.ResponseWriter, r *http.Request) {
	finished, total, err := h.rooms.FinishedPlayers(r.Context(), roomID(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.FinishedPlayersResponse{
		Envelope:        response.OK(),
		FinishedPlayers: finished,
		Total:           total,
	})
}

// ForceComplete handles POST /api/v1/rooms/{id}/force-complete
func (h *RoomHandler) ForceComplete(w http.ResponseWriter, r *http.Request) {
	var req request.GuestRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.rooms.ForceComplete(r.Context(), roomID(r), req.GuestID); err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.OK())
}

// Results handles GET /api/v1/rooms/{id}/results
func (h *RoomHandler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.rooms.Results(r.Context(), roomID(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ResultsResponse{Envelope: response.OK(), Results: *results})
}

// Leave handles POST /api/v1/rooms/{id}/leave
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var req request.LeaveRoomRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Reason == "" {
		req.Reason = model.LeaveExplicit
	}

	if err := h.rooms.LeaveRoom(r.Context(), roomID(r), req.GuestID, req.Reason); err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.OK())
}

// DeleteMessage handles DELETE /api/v1/rooms/{id}/messages/{messageId}?guestId=
func (h *RoomHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	guestID, err := strconv.Atoi(r.URL.Query().Get("guestId"))
	if err != nil {
		WriteError(w, NewInvalidRequestError("guestId is required"))
		return
	}

	messageID := mux.Vars(r)["messageId"]
	if err := h.rooms.DeleteMessage(r.Context(), roomID(r), messageID, model.GuestID(guestID)); err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.OK())
}
