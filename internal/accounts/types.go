package accounts

import (
	"fmt"
	"time"
)

// Status is the verification lifecycle state of an account.
type Status string

const (
	StatusPending  Status = "pending"
	StatusChecking Status = "checking"
	StatusValid    Status = "valid"
	StatusInvalid  Status = "invalid"
)

// Terminal reports whether the status is a final verification outcome.
func (s Status) Terminal() bool {
	return s == StatusValid || s == StatusInvalid
}

// CredentialPair is an identity/secret tuple extracted from source text.
// Immutable once created.
type CredentialPair struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

// Account is one credential pair plus its verification state within a
// snapshot generation. ID and Label are assigned by position when the
// generation is built and stay stable for its lifetime.
type Account struct {
	ID            string     `json:"id"`
	Label         string     `json:"label"`
	Identity      string     `json:"identity"`
	Secret        string     `json:"-"`
	Status        Status     `json:"status"`
	DisplayName   string     `json:"display_name,omitempty"`
	ErrorCode     string     `json:"error_code,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}

// NewAccount builds an account at pending status for position n (1-based).
func NewAccount(n int, pair CredentialPair) Account {
	label := fmt.Sprintf("Acc%d", n)
	return Account{
		ID:       label,
		Label:    label,
		Identity: pair.Identity,
		Secret:   pair.Secret,
		Status:   StatusPending,
	}
}

// VerificationResult is the classified outcome of one verification cycle.
// It is applied to an account atomically, never field by field.
type VerificationResult struct {
	OK          bool   `json:"ok"`
	DisplayName string `json:"display_name,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
}

// Snapshot is the externally visible view of the cache. Readers receive a
// copy; the accounts slice is never shared with cache internals.
type Snapshot struct {
	Accounts          []Account  `json:"accounts"`
	LastRefreshedAt   *time.Time `json:"last_refreshed_at"`
	RefreshInProgress bool       `json:"refresh_in_progress"`
	Generation        string     `json:"generation,omitempty"`
}

// Clone deep-copies the snapshot so callers can use it without holding
// any cache lock.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Accounts != nil {
		out.Accounts = make([]Account, len(s.Accounts))
		copy(out.Accounts, s.Accounts)
	}
	if s.LastRefreshedAt != nil {
		t := *s.LastRefreshedAt
		out.LastRefreshedAt = &t
	}
	return out
}
