package resolve

import "strings"

// NameKey reduces a name to its deduplication key: lower-cased, punctuation
// stripped, whitespace collapsed. "Crohn's Disease" and "CROHN'S DISEASE"
// share a key. Deterministic and independent of the resolution pipeline.
func NameKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '-' || r == '_':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// TitleCase capitalizes the first letter of each word. Generic casing treats
// an apostrophe as a word boundary ("Crohn'S"), so possessive and contraction
// suffixes are normalized back explicitly afterwards: "crohn's disease"
// becomes "Crohn's Disease", never "Crohn'S Disease". Names like "O'Brien"
// keep the capital after the apostrophe.
func TitleCase(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	prev := ' '
	for _, r := range lower {
		if r >= 'a' && r <= 'z' && !isLetterOrDigit(prev) {
			r = r - 'a' + 'A'
		}
		b.WriteRune(r)
		prev = r
	}

	s := strings.Join(strings.Fields(b.String()), " ")
	s = strings.ReplaceAll(s, "'S ", "'s ")
	s = strings.ReplaceAll(s, "'T ", "'t ")
	if strings.HasSuffix(s, "'S") {
		s = strings.TrimSuffix(s, "'S") + "'s"
	}
	if strings.HasSuffix(s, "'T") {
		s = strings.TrimSuffix(s, "'T") + "'t"
	}
	return s
}

func isLetterOrDigit(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

// NormalizeName produces the canonical display form used by the normalized
// match strategy: abbreviations expanded via the injected synonym table,
// apostrophe variants unified, then title-cased.
func NormalizeName(name string, synonyms map[string]string) string {
	trimmed := strings.TrimSpace(name)
	// Unify typographic apostrophes before any comparison.
	trimmed = strings.ReplaceAll(trimmed, "’", "'")

	if expanded, ok := lookupSynonym(trimmed, synonyms); ok {
		trimmed = expanded
	}
	return TitleCase(trimmed)
}

func lookupSynonym(name string, synonyms map[string]string) (string, bool) {
	for abbr, full := range synonyms {
		if strings.EqualFold(abbr, name) {
			return full, true
		}
	}
	return "", false
}
