package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// PolicyKind selects how verification calls are paced across a batch.
type PolicyKind string

const (
	// PolicySequential verifies one credential at a time with a fixed
	// inter-call delay; used when the auth service tolerates no concurrency.
	PolicySequential PolicyKind = "sequential"
	// PolicyBatched verifies in order, pausing after every BatchSize
	// completions; a coarse throttle for quota-limited services.
	PolicyBatched PolicyKind = "batched"
	// PolicyParallel submits all verifications concurrently, bounded by
	// MaxParallel; completions land out of order.
	PolicyParallel PolicyKind = "parallel"
)

// Policy is the deployment-time pacing choice for one verification batch.
type Policy struct {
	Kind        PolicyKind
	Delay       time.Duration
	BatchSize   int
	MaxParallel int
}

// DefaultPolicy paces verifications sequentially at 1.5s intervals.
func DefaultPolicy() Policy {
	return Policy{Kind: PolicySequential, Delay: 1500 * time.Millisecond, BatchSize: 3, MaxParallel: 8}
}

// ParseKind maps a config string onto a policy kind.
func ParseKind(s string) (PolicyKind, error) {
	switch PolicyKind(strings.ToLower(strings.TrimSpace(s))) {
	case PolicySequential, "":
		return PolicySequential, nil
	case PolicyBatched:
		return PolicyBatched, nil
	case PolicyParallel:
		return PolicyParallel, nil
	default:
		return "", fmt.Errorf("unknown verification policy %q", s)
	}
}

func (p Policy) normalized() Policy {
	if p.Kind == "" {
		p.Kind = PolicySequential
	}
	if p.Delay <= 0 {
		p.Delay = 1500 * time.Millisecond
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 3
	}
	if p.MaxParallel <= 0 {
		p.MaxParallel = 8
	}
	return p
}

// VerifyFunc verifies the credential at index i of the batch. The caller's
// closure is responsible for applying the result; the runner only drives
// scheduling and never touches account state itself.
type VerifyFunc func(ctx context.Context, index int)

// Run drives verify over n credentials under the policy. It returns once
// every verification has completed or the context is canceled. Per-index
// failures are the closure's concern and never abort the batch.
func Run(ctx context.Context, n int, policy Policy, verify VerifyFunc) {
	if n <= 0 {
		return
	}
	p := policy.normalized()
	log.WithFields(log.Fields{
		"count":  n,
		"policy": string(p.Kind),
	}).Debug("verification batch started")

	switch p.Kind {
	case PolicyParallel:
		runParallel(ctx, n, p, verify)
	case PolicyBatched:
		runBatched(ctx, n, p, verify)
	default:
		runSequential(ctx, n, p, verify)
	}
}

func runSequential(ctx context.Context, n int, p Policy, verify VerifyFunc) {
	lim := rate.NewLimiter(rate.Every(p.Delay), 1)
	for i := 0; i < n; i++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		verify(ctx, i)
	}
}

func runBatched(ctx context.Context, n int, p Policy, verify VerifyFunc) {
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return
		}
		verify(ctx, i)
		atBoundary := (i+1)%p.BatchSize == 0
		if atBoundary && i+1 < n {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.Delay):
			}
		}
	}
}

func runParallel(ctx context.Context, n int, p Policy, verify VerifyFunc) {
	sem := make(chan struct{}, p.MaxParallel)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			verify(ctx, idx)
		}(i)
	}
	wg.Wait()
}
