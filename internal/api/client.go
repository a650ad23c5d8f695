// Package api is the client for the external meeting-metadata service:
// join/leave meetings, persist participant changes, host moderation.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meshmeet/meshmeet/internal/config"
	"github.com/meshmeet/meshmeet/internal/signaling"
)

var (
	// ErrUnauthorized means the bearer token was rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means the meeting or participant does not exist.
	ErrNotFound = errors.New("not found")
)

// Client talks to the meeting-metadata REST API with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.APIBaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// JoinResponse is the local participant record issued by the server.
type JoinResponse struct {
	Participant signaling.ParticipantPayload `json:"participant"`
	MeetingID   string                       `json:"meeting_id"`
}

// JoinMeeting registers this client in the meeting and returns the local
// participant record, including the server-assigned role.
func (c *Client) JoinMeeting(ctx context.Context, meetingID, displayName string) (*JoinResponse, error) {
	body := map[string]string{"display_name": displayName}
	var out JoinResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/meetings/%s/join", meetingID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LeaveMeeting removes this client's participant record.
func (c *Client) LeaveMeeting(ctx context.Context, meetingID, participantID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/meetings/%s/leave", meetingID), map[string]string{"participant_id": participantID}, nil)
}

// PatchParticipant persists partial participant state (peer id, media
// flags). Only non-nil fields are sent.
func (c *Client) PatchParticipant(ctx context.Context, meetingID, participantID string, update signaling.UpdatePayload) error {
	update.ParticipantID = participantID
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/meetings/%s/participants/%s", meetingID, participantID), update, nil)
}

// RemoveParticipant ejects another participant. Host/co-host only.
func (c *Client) RemoveParticipant(ctx context.Context, meetingID, participantID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/meetings/%s/participants/%s", meetingID, participantID), nil, nil)
}

// EndMeeting ends the meeting for everyone. Host only.
func (c *Client) EndMeeting(ctx context.Context, meetingID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/meetings/%s/end", meetingID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
