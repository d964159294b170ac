package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mcoot/triviasync/internal/api/request"
	"github.com/mcoot/triviasync/internal/api/response"
	"github.com/mcoot/triviasync/internal/model"
)

func roomPath(roomID model.RoomID, suffix string) string {
	return "/rooms/" + url.PathEscape(string(roomID)) + suffix
}

// CreateRoom creates a room with the caller as creator (guest 0)
func (c *Client) CreateRoom(ctx context.Context, req request.CreateRoomRequest) (*model.Room, error) {
	var resp response.RoomResponse
	if err := c.Do(ctx, http.MethodPost, "/rooms", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Room, nil
}

// JoinRoom takes the next free seat in a room
func (c *Client) JoinRoom(ctx context.Context, roomID model.RoomID, playerName string) (*response.JoinRoomResponse, error) {
	var resp response.JoinRoomResponse
	req := request.JoinRoomRequest{PlayerName: playerName}
	if err := c.Do(ctx, http.MethodPost, roomPath(roomID, "/join"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartRoom asks the server to start generating questions
func (c *Client) StartRoom(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error {
	var resp response.Envelope
	return c.Do(ctx, http.MethodPost, roomPath(roomID, "/start"), request.GuestRequest{GuestID: guestID}, &resp)
}

// GetRoom fetches the room, its participants and, once playing, its questions
func (c *Client) GetRoom(ctx context.Context, roomID model.RoomID) (*response.RoomDetailResponse, error) {
	var resp response.RoomDetailResponse
	if err := c.Do(ctx, http.MethodGet, roomPath(roomID, ""), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetProgress fetches question generation progress
func (c *Client) GetProgress(ctx context.Context, roomID model.RoomID) (*response.ProgressResponse, error) {
	var resp response.ProgressResponse
	if err := c.Do(ctx, http.MethodGet, roomPath(roomID, "/progress"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitAnswer records an answer and returns the server's scoring of it
func (c *Client) SubmitAnswer(ctx context.Context, roomID model.RoomID, req request.SubmitAnswerRequest) (*model.Answer, error) {
	var resp response.AnswerResponse
	if err := c.Do(ctx, http.MethodPost, roomPath(roomID, "/answers"), req, &resp); err != nil {
		return nil, err
	}
	return &resp.Answer, nil
}

// MarkFinished flags the participant's score as final. Idempotent.
func (c *Client) MarkFinished(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error {
	var resp response.Envelope
	return c.Do(ctx, http.MethodPost, roomPath(roomID, "/finish"), request.GuestRequest{GuestID: guestID}, &resp)
}

// RegisterFinished adds the participant to the room's finished set
func (c *Client) RegisterFinished(ctx context.Context, roomID model.RoomID, guestID model.GuestID, playerName string) error {
	var resp response.Envelope
	req := request.RegisterFinishedRequest{GuestID: guestID, PlayerName: playerName}
	return c.Do(ctx, http.MethodPost, roomPath(roomID, "/finished"), req, &resp)
}

// GetFinishedPlayers fetches the room's finished set
func (c *Client) GetFinishedPlayers(ctx context.Context, roomID model.RoomID) (*response.FinishedPlayersResponse, error) {
	var resp response.FinishedPlayersResponse
	if err := c.Do(ctx, http.MethodGet, roomPath(roomID, "/finished"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForceComplete completes the room without waiting for stragglers
func (c *Client) ForceComplete(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error {
	var resp response.Envelope
	return c.Do(ctx, http.MethodPost, roomPath(roomID, "/force-complete"), request.GuestRequest{GuestID: guestID}, &resp)
}

// GetResults fetches the ranked leaderboard
func (c *Client) GetResults(ctx context.Context, roomID model.RoomID) (*model.Results, error) {
	var resp response.ResultsResponse
	if err := c.Do(ctx, http.MethodGet, roomPath(roomID, "/results"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Results, nil
}

// LeaveRoom gives up the participant's seat
func (c *Client) LeaveRoom(ctx context.Context, roomID model.RoomID, guestID model.GuestID, reason model.LeaveReason) error {
	var resp response.Envelope
	req := request.LeaveRoomRequest{GuestID: guestID, Reason: reason}
	return c.Do(ctx, http.MethodPost, roomPath(roomID, "/leave"), req, &resp)
}

// ListWaitingRooms lists rooms accepting joiners
func (c *Client) ListWaitingRooms(ctx context.Context) ([]model.Room, error) {
	var resp response.RoomsResponse
	path := "/rooms?status=" + string(model.RoomStatusWaiting)
	if err := c.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// DeleteMessage removes a chat message. Deleting an already-deleted message
// succeeds.
func (c *Client) DeleteMessage(ctx context.Context, roomID model.RoomID, messageID string, guestID model.GuestID) error {
	var resp response.Envelope
	path := roomPath(roomID, "/messages/"+url.PathEscape(messageID)) + fmt.Sprintf("?guestId=%d", guestID)
	return c.Do(ctx, http.MethodDelete, path, nil, &resp)
}

// Health checks the server is up
func (c *Client) Health(ctx context.Context) (*response.HealthResponse, error) {
	var resp response.HealthResponse
	if err := c.Do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
