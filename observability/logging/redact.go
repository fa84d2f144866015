package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces masked attribute values.
const RedactedValue = "[REDACTED]"

// tokenTailLen is how much of a bearer token MaskBearer keeps.
const tokenTailLen = 6

// ledgerKeys are the attribute keys stakingd logs in clear. Addresses and
// amounts are public ledger data; anything else is masked.
var ledgerKeys = map[string]struct{}{
	"service":      {},
	"env":          {},
	"message":      {},
	"severity":     {},
	"timestamp":    {},
	"error":        {},
	"component":    {},
	"action":       {},
	"outcome":      {},
	"caller":       {},
	"addr":         {},
	"amount":       {},
	"strategy":     {},
	"stake_token":  {},
	"reward_token": {},
	"transfer_ref": {},
}

// IsAllowlisted reports whether key is logged without masking.
func IsAllowlisted(key string) bool {
	_, ok := ledgerKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactionAllowlist returns the clear-text keys in sorted order.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(ledgerKeys))
	for key := range ledgerKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns an attribute whose value is masked unless key is
// allowlisted. Blank values pass through.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskBearer masks a bearer token but keeps the tail of its signature so a
// rejected token can be matched against the one stakectl issued.
func MaskBearer(key, token string) slog.Attr {
	token = strings.TrimSpace(token)
	if token == "" {
		return slog.String(key, token)
	}
	if len(token) <= 2*tokenTailLen {
		return slog.String(key, RedactedValue)
	}
	return slog.String(key, RedactedValue+"..."+token[len(token)-tokenTailLen:])
}
