package dataset

import (
	"errors"
	"regexp"
	"sort"
	"strings"
)

// ErrNoAddress indicates a recipient record carries no usable email
// address. The caller records the recipient as failed and moves on; this
// never aborts a batch.
var ErrNoAddress = errors.New("no email address found")

// emailPattern is the strict address shape: local@domain.tld, no embedded
// whitespace.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// addressVocabulary is the set of header names that identify an address
// column outright, compared case-insensitively.
var addressVocabulary = map[string]bool{
	"email":         true,
	"e-mail":        true,
	"mailto":        true,
	"recipient":     true,
	"to":            true,
	"address":       true,
	"email address": true,
}

// detectionSampleRows bounds how many rows value-based column detection
// inspects.
const detectionSampleRows = 10

// DetectAddressColumn infers which column holds recipient addresses. The
// layers run in order and the first hit wins: exact vocabulary match on a
// header name, then a header name containing "email" or "mail", then the
// first column where any of the first ten rows holds a value shaped like
// an email address. Returns ("", false) when no column qualifies.
func DetectAddressColumn(headers []string, rows []Record) (string, bool) {
	for _, h := range headers {
		if addressVocabulary[strings.ToLower(strings.TrimSpace(h))] {
			return h, true
		}
	}

	for _, h := range headers {
		lower := strings.ToLower(h)
		if strings.Contains(lower, "email") || strings.Contains(lower, "mail") {
			return h, true
		}
	}

	sample := rows
	if len(sample) > detectionSampleRows {
		sample = sample[:detectionSampleRows]
	}
	for _, h := range headers {
		for _, rec := range sample {
			if IsEmailAddress(rec.String(h)) {
				return h, true
			}
		}
	}

	return "", false
}

// ResolveAddress finds the destination address for a single recipient
// record. It is deliberately more permissive than column detection since
// rows may be heterogeneous or hand-edited after ingestion: an "email" or
// "Email" field wins, then any value shaped like an address, then any
// field whose name mentions email or mail. Keys are scanned in sorted
// order so the fallback layers are deterministic.
func ResolveAddress(rec Record) (string, error) {
	for _, key := range []string{"email", "Email"} {
		if v, ok := rec[key]; ok {
			if addr := strings.TrimSpace(FormatValue(v)); addr != "" {
				return addr, nil
			}
		}
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if v := strings.TrimSpace(rec.String(k)); IsEmailAddress(v) {
			return v, nil
		}
	}

	for _, k := range keys {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "email") || strings.Contains(lower, "mail") {
			if v := strings.TrimSpace(rec.String(k)); v != "" {
				return v, nil
			}
		}
	}

	return "", ErrNoAddress
}

// IsEmailAddress reports whether the value matches the strict address
// pattern used by detection and resolution.
func IsEmailAddress(v string) bool {
	return emailPattern.MatchString(v)
}
