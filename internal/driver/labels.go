package driver

import (
	"strings"
	"sync"
	"unicode"
)

// SanitizeLabel rewrites a raw type string into a label legal for the graph
// backend: separators and punctuation collapse to underscores, leading digits
// get a prefix. The mapping is deterministic, so two semantically-equal raw
// strings always sanitize to the same label.
func SanitizeLabel(raw string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	label := strings.Trim(b.String(), "_")
	if label == "" {
		return "Unknown"
	}
	if unicode.IsDigit(rune(label[0])) {
		label = "T_" + label
	}
	return label
}

// LabelRegistry keeps the bijection between raw entity-type strings and their
// sanitized storage labels, so two different raw strings that sanitize
// identically are treated consistently and illegal characters are caught
// before any write.
type LabelRegistry struct {
	mu        sync.RWMutex
	rawToSafe map[string]string
	safeToRaw map[string]string
}

func NewLabelRegistry() *LabelRegistry {
	return &LabelRegistry{
		rawToSafe: make(map[string]string),
		safeToRaw: make(map[string]string),
	}
}

// Label returns the sanitized label for raw, registering it on first use.
// When two raw strings collide on the same sanitized form, the first raw
// string registered stays the canonical spelling.
func (r *LabelRegistry) Label(raw string) string {
	r.mu.RLock()
	if safe, ok := r.rawToSafe[raw]; ok {
		r.mu.RUnlock()
		return safe
	}
	r.mu.RUnlock()

	safe := SanitizeLabel(raw)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rawToSafe[raw]; ok {
		return existing
	}
	r.rawToSafe[raw] = safe
	if _, ok := r.safeToRaw[safe]; !ok {
		r.safeToRaw[safe] = raw
	}
	return safe
}

// Raw returns the first raw string registered for a sanitized label.
func (r *LabelRegistry) Raw(label string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	raw, ok := r.safeToRaw[label]
	return raw, ok
}
