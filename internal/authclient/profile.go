package authclient

import (
	"strings"

	"github.com/tidwall/gjson"
)

// displayNameFields is the priority order for direct display-name lookup.
var displayNameFields = []string{
	"username",
	"Username",
	"name",
	"displayName",
	"display_name",
	"account_id",
	"email",
}

// maxScanDepth caps the recursive fallback scan so pathological payloads
// cannot pin a verification goroutine.
const maxScanDepth = 5

// ExtractDisplayName picks a human-readable name out of a profile payload.
// Direct priority fields win; otherwise nested objects are scanned for any
// string value whose key contains "username" or "name". Returns "" when
// nothing usable is found; the caller falls back to the account label.
func ExtractDisplayName(payload []byte) string {
	if !gjson.ValidBytes(payload) {
		return ""
	}
	root := gjson.ParseBytes(payload)
	for _, field := range displayNameFields {
		if v := root.Get(field); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return scanForName(root, 0)
}

func scanForName(node gjson.Result, depth int) string {
	if depth > maxScanDepth || !node.IsObject() {
		return ""
	}
	var found string
	node.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String && value.Str != "" {
			lk := strings.ToLower(key.Str)
			if strings.Contains(lk, "username") || strings.Contains(lk, "name") {
				found = value.Str
				return false
			}
		}
		return true
	})
	if found != "" {
		return found
	}
	node.ForEach(func(key, value gjson.Result) bool {
		if value.IsObject() {
			if name := scanForName(value, depth+1); name != "" {
				found = name
				return false
			}
		}
		return true
	})
	return found
}
