package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"accwatch/internal/accounts"
	apierr "accwatch/internal/errors"
)

const (
	loginPath   = "/auth/login"
	profilePath = "/auth/profile"
	logoutPath  = "/auth/logout"

	defaultTimeout = 30 * time.Second
)

// Session is an authenticated session handle issued by the auth service.
type Session struct {
	Token string `json:"token"`
}

// Option customizes Client creation.
type Option func(*Client)

// Client performs login → profile → logout verification cycles against the
// external authentication service. Each cycle is isolated: a failure for one
// credential never leaks session state into the next.
type Client struct {
	baseURL    string
	region     string
	httpClient *http.Client
}

// New creates a verification client for the given service base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// WithHTTPClient overrides the HTTP client used for outbound calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRegion sets the region forwarded on login requests.
func WithRegion(region string) Option {
	return func(c *Client) { c.region = region }
}

// WithTimeout overrides the per-call HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// Verify runs one full verification cycle for the pair and classifies the
// outcome. All failures are captured into the result; Verify never returns
// an error to the caller.
func (c *Client) Verify(ctx context.Context, pair accounts.CredentialPair) accounts.VerificationResult {
	session, err := c.Login(ctx, pair)
	if err != nil {
		return resultFromError(err)
	}
	// Logout failures must never turn a successful login+profile into a
	// failure, and the session must not survive this cycle either way.
	defer c.logoutQuietly(ctx, session, pair.Identity)

	profile, err := c.Profile(ctx, session)
	if err != nil {
		return resultFromError(err)
	}

	// The service sometimes reports an auth failure inside a 200 payload.
	if code := profileErrorCode(profile); code != "" {
		return accounts.VerificationResult{OK: false, ErrorCode: code}
	}
	return accounts.VerificationResult{OK: true, DisplayName: ExtractDisplayName(profile)}
}

// Login acquires a session for the credential pair.
func (c *Client) Login(ctx context.Context, pair accounts.CredentialPair) (*Session, error) {
	body, err := json.Marshal(map[string]string{
		"identity": pair.Identity,
		"secret":   pair.Secret,
		"region":   c.region,
	})
	if err != nil {
		return nil, err
	}
	payload, err := c.post(ctx, loginPath, "", body)
	if err != nil {
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, apierr.NewVerifyError(apierr.CodeAuthError, "malformed login response")
	}
	if session.Token == "" {
		if code := profileErrorCode(payload); code != "" {
			return nil, apierr.NewVerifyError(code, "login rejected")
		}
		return nil, apierr.NewVerifyError(apierr.CodeAuthError, "login response missing token")
	}
	return &session, nil
}

// Profile fetches the raw profile payload for an authenticated session.
func (c *Client) Profile(ctx context.Context, session *Session) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+profilePath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+session.Token)
	return c.do(req)
}

// Logout releases the session. Errors are returned for logging but the
// verification outcome never depends on them.
func (c *Client) Logout(ctx context.Context, session *Session) error {
	_, err := c.post(ctx, logoutPath, session.Token, nil)
	return err
}

func (c *Client) logoutQuietly(ctx context.Context, session *Session, identity string) {
	if session == nil {
		return
	}
	if err := c.Logout(ctx, session); err != nil {
		log.WithFields(log.Fields{"identity": identity}).WithError(err).Debug("logout failed; ignoring")
	}
}

func (c *Client) post(ctx context.Context, path, token string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.MapNetworkError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apierr.MapNetworkError(err)
	}
	if resp.StatusCode >= 400 {
		if code := profileErrorCode(payload); code != "" {
			return nil, apierr.NewVerifyError(code, fmt.Sprintf("HTTP %d", resp.StatusCode))
		}
		return nil, apierr.NewVerifyError(apierr.CodeAuthError, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
	return payload, nil
}

// resultFromError classifies an error into a terminal verification result.
// The error's code is preferred; the message is the fallback.
func resultFromError(err error) accounts.VerificationResult {
	if ve, ok := err.(*apierr.VerifyError); ok {
		return accounts.VerificationResult{OK: false, ErrorCode: ve.Code}
	}
	return accounts.VerificationResult{OK: false, ErrorCode: err.Error()}
}

// profileErrorCode returns the error code embedded in a payload, if any.
// Checks the field spellings the service is known to use.
func profileErrorCode(payload []byte) string {
	if !gjson.ValidBytes(payload) {
		return ""
	}
	for _, path := range []string{"errorCode", "error_code", "error.code", "error"} {
		v := gjson.GetBytes(payload, path)
		if v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
