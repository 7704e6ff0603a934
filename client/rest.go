package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/platebook/chat/internal/protocol"
)

// REST wraps the backend's request/response operations consumed by the chat
// core: conversation listing, history snapshots, sends, read receipts, and
// group administration. The backend owns authorization; errors come back as
// its human-readable messages.
type REST struct {
	base  string
	token string
	http  *http.Client
}

// NewREST creates a REST collaborator for the backend at baseURL. token, if
// non-empty, is sent as a bearer token on every request.
func NewREST(baseURL, token string) *REST {
	return &REST{
		base:  baseURL,
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Conversations fetches the current user's conversation list.
func (r *REST) Conversations(ctx context.Context) ([]protocol.Conversation, error) {
	var out []protocol.Conversation
	if err := r.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History fetches a conversation's messages in ascending order.
func (r *REST) History(ctx context.Context, conversationID string) ([]protocol.Message, error) {
	var out []protocol.Message
	path := fmt.Sprintf("/conversations/%s/messages", conversationID)
	if err := r.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendRequest is the REST send payload. ClientMsgID carries the same
// idempotency ID used on the socket path so either path confirms a pending
// send.
type SendRequest struct {
	ClientMsgID string                `json:"client_msg_id"`
	Content     string                `json:"content"`
	MessageType string                `json:"message_type"`
	Recipe      *protocol.RecipeShare `json:"recipe,omitempty"`
}

// Send posts a message over REST and returns the backend's echoed Message.
func (r *REST) Send(ctx context.Context, conversationID string, req SendRequest) (protocol.Message, error) {
	var out protocol.Message
	path := fmt.Sprintf("/conversations/%s/messages", conversationID)
	if err := r.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return protocol.Message{}, err
	}
	return out, nil
}

// MarkRead zeroes the conversation's unread counter for the current user.
func (r *REST) MarkRead(ctx context.Context, conversationID string) error {
	path := fmt.Sprintf("/conversations/%s/read", conversationID)
	return r.do(ctx, http.MethodPost, path, nil, nil)
}

// CreateGroup creates a group conversation and returns it.
func (r *REST) CreateGroup(ctx context.Context, name, description string, participantIDs []string) (protocol.Conversation, error) {
	req := struct {
		Name           string   `json:"name"`
		Description    string   `json:"description,omitempty"`
		ParticipantIDs []string `json:"participant_ids"`
	}{name, description, participantIDs}
	var out protocol.Conversation
	if err := r.do(ctx, http.MethodPost, "/groups", req, &out); err != nil {
		return protocol.Conversation{}, err
	}
	return out, nil
}

// AddParticipant adds a user to a group.
func (r *REST) AddParticipant(ctx context.Context, groupID, userID string) error {
	path := fmt.Sprintf("/groups/%s/participants/%s", groupID, userID)
	return r.do(ctx, http.MethodPut, path, nil, nil)
}

// RemoveParticipant removes a user from a group.
func (r *REST) RemoveParticipant(ctx context.Context, groupID, userID string) error {
	path := fmt.Sprintf("/groups/%s/participants/%s", groupID, userID)
	return r.do(ctx, http.MethodDelete, path, nil, nil)
}

// GroupSettings carries a partial group update; zero values are left
// untouched by the backend.
type GroupSettings struct {
	Name              string `json:"name,omitempty"`
	ImageURL          string `json:"image_url,omitempty"`
	OnlyAdminsCanPost bool   `json:"only_admins_can_post,omitempty"`
}

// UpdateGroup applies group settings changes.
func (r *REST) UpdateGroup(ctx context.Context, groupID string, settings GroupSettings) error {
	path := fmt.Sprintf("/groups/%s", groupID)
	return r.do(ctx, http.MethodPut, path, settings, nil)
}

// LeaveGroup removes the current user from a group.
func (r *REST) LeaveGroup(ctx context.Context, groupID string) error {
	path := fmt.Sprintf("/groups/%s/members/me", groupID)
	return r.do(ctx, http.MethodDelete, path, nil, nil)
}

// do performs one request. A non-2xx response decodes the backend's
// `{"error": "..."}` body into the returned error.
func (r *REST) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.base+path, body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("client: %s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("client: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
