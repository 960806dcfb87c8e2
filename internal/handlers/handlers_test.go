package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"accwatch/internal/accounts"
	"accwatch/internal/cache"
	"accwatch/internal/runner"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	text  string
}

func (f *stubFetcher) Fetch(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, nil
}

type stubVerifier struct {
	mu      sync.Mutex
	results map[string]accounts.VerificationResult
	calls   []string
}

func (v *stubVerifier) Verify(ctx context.Context, pair accounts.CredentialPair) accounts.VerificationResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, pair.Identity)
	if res, ok := v.results[pair.Identity]; ok {
		return res
	}
	return accounts.VerificationResult{OK: true, DisplayName: "stub"}
}

func immediatePolicy() runner.Policy {
	return runner.Policy{Kind: runner.PolicySequential, Delay: time.Millisecond}
}

func newTestRouter(t *testing.T, verifier *stubVerifier, refreshKey string) (*gin.Engine, *cache.Cache) {
	t.Helper()
	c := cache.New(&stubFetcher{}, verifier, cache.WithPolicy(immediatePolicy()))
	t.Cleanup(c.Close)

	h := New(c, func(region string) cache.Verifier { return verifier }, immediatePolicy(), refreshKey)
	r := gin.New()
	r.GET("/v1/accounts", h.GetAccounts)
	r.GET("/v1/accounts/:id", h.GetAccount)
	r.POST("/v1/accounts/refresh", h.ForceRefresh)
	r.POST("/v1/verify", h.BatchVerify)
	r.GET("/health", h.Health)
	return r, c
}

func seedSnapshot(c *cache.Cache) accounts.Account {
	acct := accounts.NewAccount(1, accounts.CredentialPair{Identity: "bar@x.com", Secret: "hunter2"})
	acct.Status = accounts.StatusValid
	acct.DisplayName = "Bar"
	now := time.Now()
	c.Seed(accounts.Snapshot{Accounts: []accounts.Account{acct}, LastRefreshedAt: &now})
	return acct
}

func TestGetAccountsOmitsSecrets(t *testing.T) {
	r, c := newTestRouter(t, &stubVerifier{}, "")
	seedSnapshot(c)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "hunter2")

	var body struct {
		Accounts          []accounts.Account `json:"accounts"`
		RefreshInProgress bool               `json:"refresh_in_progress"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Accounts, 1)
	require.Equal(t, "bar@x.com", body.Accounts[0].Identity)
	require.Equal(t, "Bar", body.Accounts[0].DisplayName)
}

func TestGetAccountsEmptyCache(t *testing.T) {
	r, _ := newTestRouter(t, &stubVerifier{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"accounts":[]`)
}

func TestGetAccountDetailIncludesSecret(t *testing.T) {
	r, c := newTestRouter(t, &stubVerifier{}, "")
	acct := seedSnapshot(c)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/"+acct.ID, nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "hunter2")
	require.Contains(t, w.Body.String(), `"label":"Acc1"`)
}

func TestGetAccountNotFound(t *testing.T) {
	r, _ := newTestRouter(t, &stubVerifier{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/nope", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestForceRefreshRequiresKey(t *testing.T) {
	r, _ := newTestRouter(t, &stubVerifier{}, "sekrit")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/accounts/refresh", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/accounts/refresh", nil)
	req.Header.Set("X-Refresh-Key", "sekrit")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Contains(t, w.Body.String(), `"refresh_in_progress":true`)
}

func TestForceRefreshBearerKey(t *testing.T) {
	r, _ := newTestRouter(t, &stubVerifier{}, "sekrit")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/accounts/refresh", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestBatchVerifyOrderedResults(t *testing.T) {
	verifier := &stubVerifier{results: map[string]accounts.VerificationResult{
		"a@x.com": {OK: true, DisplayName: "Alice"},
		"b@x.com": {OK: false, ErrorCode: "invalid_auth_token"},
	}}
	r, _ := newTestRouter(t, verifier, "")

	body := `{"accounts":[{"identity":"a@x.com","secret":"p1"},{"identity":"b@x.com","secret":"p2"}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Results []verifyResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	require.Equal(t, "a@x.com", resp.Results[0].Identity)
	require.True(t, resp.Results[0].OK)
	require.Equal(t, "Alice", resp.Results[0].DisplayName)
	require.Equal(t, "b@x.com", resp.Results[1].Identity)
	require.False(t, resp.Results[1].OK)
	require.Equal(t, "invalid_auth_token", resp.Results[1].ErrorCode)
}

func TestBatchVerifyRejectsBadPolicy(t *testing.T) {
	r, _ := newTestRouter(t, &stubVerifier{}, "")

	body := `{"accounts":[{"identity":"a@x.com","secret":"p1"}],"policy":"warp"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchVerifyEmptyBody(t *testing.T) {
	r, _ := newTestRouter(t, &stubVerifier{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, &stubVerifier{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}
