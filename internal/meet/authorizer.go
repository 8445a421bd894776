package meet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Rudra9905/Studify/internal/meetings"
)

// Authorizer resolves a meeting code to an attendance grant before any
// signaling happens, and asks the backend to end a meeting on behalf of its
// host. Joining never proceeds without a grant.
type Authorizer interface {
	Authorize(ctx context.Context, code, userID string) (*meetings.Grant, error)
	End(ctx context.Context, code, userID string) error
}

// HTTPAuthorizer talks to the meetings REST API.
type HTTPAuthorizer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAuthorizer(baseURL string) *HTTPAuthorizer {
	return &HTTPAuthorizer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *HTTPAuthorizer) Authorize(ctx context.Context, code, userID string) (*meetings.Grant, error) {
	var grant meetings.Grant
	if err := a.post(ctx, "/meetings/join", joinBody{Code: code, UserID: userID}, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

func (a *HTTPAuthorizer) End(ctx context.Context, code, userID string) error {
	path := "/meetings/end?meetingCode=" + url.QueryEscape(code) + "&userId=" + url.QueryEscape(userID)
	return a.post(ctx, path, struct{}{}, nil)
}

type joinBody struct {
	Code   string `json:"meetingCode"`
	UserID string `json:"userId"`
}

func (a *HTTPAuthorizer) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", ErrAuthorization, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthorization, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthorization, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrAuthorization, meetings.ErrMeetingNotFound)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrAuthorization, meetings.ErrNotHost)
	case resp.StatusCode >= 300:
		return fmt.Errorf("%w: %s returned %d", ErrAuthorization, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrAuthorization, err)
		}
	}
	return nil
}
