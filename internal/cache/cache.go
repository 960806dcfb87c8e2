package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"accwatch/internal/accounts"
	"accwatch/internal/parser"
	"accwatch/internal/runner"
	"accwatch/internal/source"
)

// Verifier runs one verification cycle for a credential pair.
type Verifier interface {
	Verify(ctx context.Context, pair accounts.CredentialPair) accounts.VerificationResult
}

// Option customizes Cache creation.
type Option func(*Cache)

// Cache owns the current account snapshot and coordinates refresh cycles.
// Reads are stale-while-revalidate: they return the current snapshot
// immediately and, when the TTL has elapsed, fire an asynchronous refresh.
// At most one refresh cycle runs against a cache instance at any time.
type Cache struct {
	fetcher  source.Fetcher
	verifier Verifier

	mu         sync.RWMutex
	snapshot   accounts.Snapshot
	refreshing bool
	generation string
	ttl        time.Duration
	policy     runner.Policy

	onCycleDone func(accounts.Snapshot)

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// New creates a cache around the given source fetcher and verifier.
func New(fetcher source.Fetcher, verifier Verifier, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		fetcher:  fetcher,
		verifier: verifier,
		ttl:      15 * time.Minute,
		policy:   runner.DefaultPolicy(),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// WithTTL sets the refresh interval. Deployments that invalidate on every
// client poll use a seconds-scale TTL here instead of the 15m default.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPolicy sets the verification pacing policy for refresh cycles.
func WithPolicy(p runner.Policy) Option {
	return func(c *Cache) { c.policy = p }
}

// WithCycleDoneHook registers a callback invoked with the final snapshot
// after each completed refresh cycle (used for persistence).
func WithCycleDoneHook(fn func(accounts.Snapshot)) Option {
	return func(c *Cache) { c.onCycleDone = fn }
}

// SetTTL updates the TTL at runtime (config hot reload).
func (c *Cache) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}

// SetPolicy updates the pacing policy for subsequent cycles.
func (c *Cache) SetPolicy(p runner.Policy) {
	c.mu.Lock()
	c.policy = p
	c.mu.Unlock()
}

// Seed installs a previously persisted snapshot. Only applies when the
// cache is still empty; live data always wins over restored state.
func (c *Cache) Seed(snap accounts.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot.Accounts == nil && c.snapshot.LastRefreshedAt == nil {
		c.snapshot = snap.Clone()
		c.generation = snap.Generation
	}
}

// Read returns the current snapshot without ever waiting on verification
// I/O. If the snapshot is empty or older than the TTL and no refresh is in
// flight, an asynchronous refresh is started first.
func (c *Cache) Read(ctx context.Context) accounts.Snapshot {
	if c.refreshDue() {
		c.StartRefresh(ctx)
	}
	c.mu.RLock()
	snap := c.snapshot.Clone()
	snap.RefreshInProgress = c.refreshing
	c.mu.RUnlock()
	return snap
}

// Account returns the account with the given id from the current snapshot,
// including its secret. Used only by the single-account detail endpoint.
func (c *Cache) Account(id string) (accounts.Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.snapshot.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return accounts.Account{}, false
}

func (c *Cache) refreshDue() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.refreshing {
		return false
	}
	if c.snapshot.LastRefreshedAt == nil {
		return true
	}
	return c.now().Sub(*c.snapshot.LastRefreshedAt) >= c.ttl
}

// StartRefresh begins a refresh cycle unless one is already in flight, in
// which case it is a silent no-op. Returns whether a cycle was started.
func (c *Cache) StartRefresh(ctx context.Context) bool {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		log.Debug("refresh already in flight; skipping")
		return false
	}
	c.refreshing = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("refresh cycle panicked")
				c.mu.Lock()
				c.refreshing = false
				c.mu.Unlock()
			}
		}()
		c.runCycle(c.ctx)
	}()
	return true
}

// Refreshing reports whether a cycle is currently in flight.
func (c *Cache) Refreshing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshing
}

// RunPeriodic drives refresh cycles on a fixed interval until the context
// is canceled. Intended to run under the task manager.
func (c *Cache) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if c.refreshDue() {
				c.StartRefresh(ctx)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Close stops background work and waits for any in-flight cycle to land.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

// runCycle executes one full refresh: fetch → parse → dedup → publish
// pending snapshot → drive verifications. On fetch failure the prior
// snapshot stays authoritative and the cycle retries at the next due read.
func (c *Cache) runCycle(ctx context.Context) {
	started := c.now()

	text, err := c.fetcher.Fetch(ctx)
	if err != nil {
		log.WithError(err).Warn("refresh aborted: source fetch failed")
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
		return
	}

	pairs := parser.Dedup(parser.Parse(text))
	gen := uuid.NewString()
	accts := make([]accounts.Account, len(pairs))
	for i, p := range pairs {
		accts[i] = accounts.NewAccount(i+1, p)
	}

	// Publish the new generation immediately so readers see the fresh
	// identities at pending status while verification proceeds.
	refreshedAt := c.now()
	c.mu.Lock()
	policy := c.policy
	c.generation = gen
	c.snapshot = accounts.Snapshot{
		Accounts:        accts,
		LastRefreshedAt: &refreshedAt,
		Generation:      gen,
	}
	c.mu.Unlock()

	log.WithFields(log.Fields{
		"generation": gen,
		"accounts":   len(accts),
		"policy":     string(policy.Kind),
	}).Info("refresh cycle started")

	runner.Run(ctx, len(pairs), policy, func(ctx context.Context, i int) {
		pair := pairs[i]
		c.markChecking(gen, i, pair.Identity)
		res := c.verifier.Verify(ctx, pair)
		c.applyResult(gen, i, pair.Identity, res)
	})

	c.mu.Lock()
	c.refreshing = false
	done := c.snapshot.Clone()
	c.mu.Unlock()

	log.WithFields(log.Fields{
		"generation":  gen,
		"accounts":    len(accts),
		"duration_ms": c.now().Sub(started).Milliseconds(),
	}).Info("refresh cycle finished")

	if c.onCycleDone != nil {
		c.onCycleDone(done)
	}
}

// markChecking flips the account to checking, guarded the same way results
// are so a superseded cycle cannot touch a newer generation's slot.
func (c *Cache) markChecking(gen string, index int, identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.slotMatches(gen, index, identity) {
		return
	}
	c.snapshot.Accounts[index].Status = accounts.StatusChecking
}

// applyResult writes a verification outcome into the snapshot slot it was
// issued for. Results whose generation or identity no longer match the
// current slot are discarded: they belong to a superseded cycle.
func (c *Cache) applyResult(gen string, index int, identity string, res accounts.VerificationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.slotMatches(gen, index, identity) {
		log.WithFields(log.Fields{
			"generation": gen,
			"index":      index,
			"identity":   identity,
		}).Debug("discarding stale verification result")
		return
	}
	acct := &c.snapshot.Accounts[index]
	checkedAt := c.now()
	acct.LastCheckedAt = &checkedAt
	if res.OK {
		acct.Status = accounts.StatusValid
		acct.DisplayName = res.DisplayName
		if acct.DisplayName == "" {
			acct.DisplayName = acct.Label
		}
		acct.ErrorCode = ""
	} else {
		acct.Status = accounts.StatusInvalid
		acct.ErrorCode = res.ErrorCode
	}
}

func (c *Cache) slotMatches(gen string, index int, identity string) bool {
	if c.generation != gen {
		return false
	}
	if index < 0 || index >= len(c.snapshot.Accounts) {
		return false
	}
	return c.snapshot.Accounts[index].Identity == identity
}
