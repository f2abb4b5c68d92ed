package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client talks to a hosted GoTrue-style authentication API. It keeps the
// current session in memory and emits state change events for its own
// operations, the way hosted-auth SDKs do.
type Client struct {
	emitter

	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu      sync.Mutex
	current *Session
}

// NewClient constructs a Client for the given API base URL and anon key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type tokenResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    int64           `json:"expires_in"`
	User         accountResponse `json:"user"`
}

type accountResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (r accountResponse) toAccount() (Account, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return Account{}, fmt.Errorf("identity: parse account id: %w", err)
	}
	return Account{
		ID:        id,
		Email:     r.Email,
		Metadata:  r.UserMetadata,
		CreatedAt: r.CreatedAt,
	}, nil
}

// SignInWithPassword performs the password grant and caches the session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	payload := map[string]string{"email": email, "password": password}
	var body tokenResponse
	status, err := c.post(ctx, "/token?grant_type=password", "", payload, &body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return nil, ErrInvalidCredentials
	}
	if status >= 400 {
		return nil, fmt.Errorf("identity: sign in returned status %d", status)
	}
	session, err := c.sessionFromToken(body)
	if err != nil {
		return nil, err
	}
	c.setCurrent(session)
	c.emit(EventSignedIn, session)
	return session, nil
}

// SignUp registers a new account. It does not establish a session; callers
// sign in explicitly afterwards.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Account, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	}
	var body accountResponse
	status, err := c.post(ctx, "/signup", "", payload, &body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnprocessableEntity || status == http.StatusConflict {
		return nil, ErrEmailTaken
	}
	if status >= 400 {
		return nil, fmt.Errorf("identity: sign up returned status %d", status)
	}
	account, err := body.toAccount()
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// SignOut revokes the current session server-side and drops the local copy.
func (c *Client) SignOut(ctx context.Context) error {
	session := c.currentSession()
	if session == nil {
		return nil
	}
	status, err := c.post(ctx, "/logout", session.AccessToken, nil, nil)
	if err != nil {
		return err
	}
	if status >= 400 && status != http.StatusUnauthorized {
		return fmt.Errorf("identity: sign out returned status %d", status)
	}
	c.setCurrent(nil)
	c.emit(EventSignedOut, nil)
	return nil
}

// Session returns the cached session, refreshing it when expired.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	session := c.currentSession()
	if session == nil {
		return nil, ErrNoSession
	}
	if !session.Expired() {
		return session, nil
	}
	refreshed, err := c.refresh(ctx, session.RefreshToken)
	if err != nil {
		return nil, err
	}
	c.setCurrent(refreshed)
	c.emit(EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// Account fetches the account behind the current session from the API.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	session := c.currentSession()
	if session == nil {
		return nil, ErrNoSession
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		return nil, err
	}
	c.decorate(req, session.AccessToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrNoSession
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("identity: get user returned status %d", resp.StatusCode)
	}
	var body accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	account, err := body.toAccount()
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrNoSession
	}
	payload := map[string]string{"refresh_token": refreshToken}
	var body tokenResponse
	status, err := c.post(ctx, "/token?grant_type=refresh_token", "", payload, &body)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, ErrNoSession
	}
	return c.sessionFromToken(body)
}

func (c *Client) sessionFromToken(body tokenResponse) (*Session, error) {
	account, err := body.User.toAccount()
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
		Account:      account,
	}, nil
}

func (c *Client) post(ctx context.Context, path, token string, payload, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.decorate(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if out != nil && resp.StatusCode < 400 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) decorate(req *http.Request, token string) {
	req.Header.Set("apikey", c.apiKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) currentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Client) setCurrent(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = s
}

var _ Provider = (*Client)(nil)
