package parser

import (
	"regexp"

	"accwatch/internal/accounts"
)

// credentialRe matches an email-like identity immediately followed by a
// colon or whitespace separator and a non-whitespace secret. Surrounding
// text is ignored; malformed fragments simply yield no pair.
var credentialRe = regexp.MustCompile(`([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})[:\s]+(\S+)`)

// Parse extracts credential pairs from unstructured source text in
// encounter order. Duplicates are preserved; Dedup is a separate step.
// Parse is pure and never fails.
func Parse(text string) []accounts.CredentialPair {
	matches := credentialRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	pairs := make([]accounts.CredentialPair, 0, len(matches))
	for _, m := range matches {
		pairs = append(pairs, accounts.CredentialPair{Identity: m[1], Secret: m[2]})
	}
	return pairs
}

// Dedup keeps the first occurrence of each distinct identity, discarding
// later ones even when the secret differs. First-seen order is preserved
// and determines subsequent label assignment.
func Dedup(pairs []accounts.CredentialPair) []accounts.CredentialPair {
	if len(pairs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(pairs))
	out := make([]accounts.CredentialPair, 0, len(pairs))
	for _, p := range pairs {
		if seen[p.Identity] {
			continue
		}
		seen[p.Identity] = true
		out = append(out, p)
	}
	return out
}
