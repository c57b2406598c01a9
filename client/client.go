package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/campusmarket/internal/model"
)

// API is a thin request/response client for the chat service. It carries the
// bearer token on every call; the push channel is handled separately by
// Stream.
type API struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// apiError is a non-2xx response decoded into the server's error shape.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server. A Forbidden or
// NotFound on an open chat both mean "chat no longer available" to the UI.
func IsNotFound(err error) bool {
	var ae *apiError
	if asAPIError(err, &ae) {
		return ae.Status == http.StatusNotFound
	}
	return false
}

// IsForbidden reports whether err is a 403 from the server.
func IsForbidden(err error) bool {
	var ae *apiError
	if asAPIError(err, &ae) {
		return ae.Status == http.StatusForbidden
	}
	return false
}

// IsConflict reports whether err is a 409, i.e. a deal transition the state
// machine rejected.
func IsConflict(err error) bool {
	var ae *apiError
	if asAPIError(err, &ae) {
		return ae.Status == http.StatusConflict
	}
	return false
}

func asAPIError(err error, target **apiError) bool {
	for err != nil {
		if ae, ok := err.(*apiError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateChat opens (or returns the existing) chat for a listing.
func (a *API) CreateChat(ctx context.Context, productID string) (*model.Chat, error) {
	var chat model.Chat
	err := a.do(ctx, http.MethodPost, "/api/chats", map[string]string{"product_id": productID}, &chat)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// Chats pulls the full chat list with previews.
func (a *API) Chats(ctx context.Context) ([]model.ChatPreview, error) {
	var previews []model.ChatPreview
	if err := a.do(ctx, http.MethodGet, "/api/chats", nil, &previews); err != nil {
		return nil, err
	}
	return previews, nil
}

// UnreadSummary pulls the recomputed unread badge view.
func (a *API) UnreadSummary(ctx context.Context) (*model.UnreadSummary, error) {
	var s model.UnreadSummary
	if err := a.do(ctx, http.MethodGet, "/api/chats/unread-summary", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Chat pulls a single chat.
func (a *API) Chat(ctx context.Context, chatID string) (*model.Chat, error) {
	var chat model.Chat
	if err := a.do(ctx, http.MethodGet, "/api/chats/"+chatID, nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// Messages pulls a chat's full history, oldest first.
func (a *API) Messages(ctx context.Context, chatID string) ([]model.Message, error) {
	var msgs []model.Message
	if err := a.do(ctx, http.MethodGet, "/api/chats/"+chatID+"/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage posts a message and returns the stored row, whose id replaces
// the optimistic entry via Timeline.Confirm.
func (a *API) SendMessage(ctx context.Context, chatID, body string) (*model.Message, error) {
	var m model.Message
	err := a.do(ctx, http.MethodPost, "/api/chats/"+chatID+"/messages", map[string]string{"message": body}, &m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkRead explicitly clears unread state for a chat. Opening a chat view
// always calls this; push events alone are never trusted to clear unread
// state because they can be missed during a disconnect window.
func (a *API) MarkRead(ctx context.Context, chatID string) error {
	return a.do(ctx, http.MethodPost, "/api/chats/"+chatID+"/read", nil, nil)
}

// CompletePayment applies the complete-payment action for the current user.
func (a *API) CompletePayment(ctx context.Context, chatID string) (*model.Chat, bool, error) {
	var res struct {
		Chat      *model.Chat `json:"chat"`
		Completed bool        `json:"completed"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/chats/"+chatID+"/complete-payment", nil, &res); err != nil {
		return nil, false, err
	}
	return res.Chat, res.Completed, nil
}

// CancelChat cancels the deal, deleting the chat and its history.
func (a *API) CancelChat(ctx context.Context, chatID string) error {
	return a.do(ctx, http.MethodDelete, "/api/chats/"+chatID, nil, nil)
}

// SendHelpMessage posts into the user's support thread.
func (a *API) SendHelpMessage(ctx context.Context, body string) (*model.HelpMessage, error) {
	var m model.HelpMessage
	err := a.do(ctx, http.MethodPost, "/api/help-messages", map[string]string{"body": body}, &m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// HelpThread pulls the user's own support thread, oldest first.
func (a *API) HelpThread(ctx context.Context) ([]model.HelpMessage, error) {
	var msgs []model.HelpMessage
	if err := a.do(ctx, http.MethodGet, "/api/help-messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Send performs the full optimistic send flow against a timeline: provisional
// insert, network call, then confirm or rollback. On failure the typed text
// is returned so the UI can put it back in the input box.
func (a *API) Send(ctx context.Context, t *Timeline, chatID, body string) (restore string, err error) {
	e := t.SendOptimistic(body)
	stored, err := a.SendMessage(ctx, chatID, body)
	if err != nil {
		restore, _ = t.Rollback(e.ID)
		return restore, err
	}
	t.Confirm(e.ID, *stored)
	return "", nil
}
