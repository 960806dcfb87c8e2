package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"accwatch/internal/accounts"
	"accwatch/internal/cache"
	"accwatch/internal/runner"
)

// VerifierFactory builds a verifier for a request-scoped region override.
// An empty region returns the default verifier.
type VerifierFactory func(region string) cache.Verifier

// Handler serves the snapshot API. It never performs verification on the
// request path; reads are O(1) against cache state.
type Handler struct {
	cache      *cache.Cache
	verifiers  VerifierFactory
	policy     runner.Policy
	refreshKey string
}

// New creates the API handler around the cache.
func New(c *cache.Cache, verifiers VerifierFactory, policy runner.Policy, refreshKey string) *Handler {
	return &Handler{cache: c, verifiers: verifiers, policy: policy, refreshKey: refreshKey}
}

// GetAccounts returns the current snapshot. Secrets are never included in
// the list response.
func (h *Handler) GetAccounts(c *gin.Context) {
	snap := h.cache.Read(c.Request.Context())
	if snap.Accounts == nil {
		snap.Accounts = []accounts.Account{}
	}
	c.JSON(http.StatusOK, gin.H{
		"accounts":            snap.Accounts,
		"last_refreshed_at":   snap.LastRefreshedAt,
		"refresh_in_progress": snap.RefreshInProgress,
	})
}

// GetAccount returns one account's detail, the only response that carries
// the secret.
func (h *Handler) GetAccount(c *gin.Context) {
	id := c.Param("id")
	acct, ok := h.cache.Account(id)
	if !ok {
		respondError(c, http.StatusNotFound, "Account not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":              acct.ID,
		"label":           acct.Label,
		"identity":        acct.Identity,
		"secret":          acct.Secret,
		"status":          acct.Status,
		"display_name":    acct.DisplayName,
		"error_code":      acct.ErrorCode,
		"last_checked_at": acct.LastCheckedAt,
	})
}

// ForceRefresh triggers a refresh cycle. Redundant calls while one is in
// flight collapse into the single-flight guard and are not an error.
func (h *Handler) ForceRefresh(c *gin.Context) {
	if !h.authorized(c) {
		respondError(c, http.StatusUnauthorized, "Invalid or missing refresh key")
		return
	}
	started := h.cache.StartRefresh(c.Request.Context())
	if !started {
		log.Debug("force refresh ignored; cycle already in flight")
	}
	c.JSON(http.StatusAccepted, gin.H{
		"started":             started,
		"refresh_in_progress": true,
	})
}

type verifyRequest struct {
	Accounts []accounts.CredentialPair `json:"accounts" binding:"required"`
	Region   string                    `json:"region"`
	Policy   string                    `json:"policy"`
}

type verifyResult struct {
	Identity    string `json:"identity"`
	OK          bool   `json:"ok"`
	DisplayName string `json:"display_name,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
}

// BatchVerify verifies the submitted credentials directly, without touching
// the cache. Results come back one per input, in input order.
func (h *Handler) BatchVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if len(req.Accounts) == 0 {
		c.JSON(http.StatusOK, gin.H{"results": []verifyResult{}})
		return
	}

	policy := h.policy
	if req.Policy != "" {
		kind, err := runner.ParseKind(req.Policy)
		if err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		policy.Kind = kind
	}
	verifier := h.verifiers(req.Region)

	results := make([]verifyResult, len(req.Accounts))
	var mu sync.Mutex
	runner.Run(c.Request.Context(), len(req.Accounts), policy, func(ctx context.Context, i int) {
		pair := req.Accounts[i]
		res := verifier.Verify(ctx, pair)
		mu.Lock()
		results[i] = verifyResult{
			Identity:    pair.Identity,
			OK:          res.OK,
			DisplayName: res.DisplayName,
			ErrorCode:   res.ErrorCode,
		}
		mu.Unlock()
	})

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Health is a liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) authorized(c *gin.Context) bool {
	if h.refreshKey == "" {
		return true
	}
	key := c.GetHeader("X-Refresh-Key")
	if key == "" {
		auth := c.GetHeader("Authorization")
		key = strings.TrimPrefix(auth, "Bearer ")
	}
	return key == h.refreshKey
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"message": message,
		},
	})
}
