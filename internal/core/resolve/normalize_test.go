package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameKey(t *testing.T) {
	assert.Equal(t, "crohns disease", NameKey("Crohn's Disease"))
	assert.Equal(t, "crohns disease", NameKey("CROHN'S   DISEASE"))
	assert.Equal(t, "crohns disease", NameKey("crohn's-disease"))
	assert.Equal(t, "type 2 diabetes", NameKey("Type_2  Diabetes"))
	assert.Equal(t, "", NameKey("  ... "))
}

func TestTitleCasePossessives(t *testing.T) {
	// The generic pass alone would yield "Crohn'S Disease".
	assert.Equal(t, "Crohn's Disease", TitleCase("crohn's disease"))
	assert.Equal(t, "Crohn's Disease", TitleCase("CROHN'S DISEASE"))
	assert.Equal(t, "Alzheimer's", TitleCase("alzheimer's"))
	assert.Equal(t, "Don't Panic", TitleCase("don't panic"))
}

func TestTitleCaseKeepsIrishNames(t *testing.T) {
	assert.Equal(t, "O'Brien", TitleCase("o'brien"))
	assert.Equal(t, "O'Connor Syndrome", TitleCase("O'CONNOR syndrome"))
}

func TestTitleCaseCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "Irritable Bowel Syndrome", TitleCase("  irritable   bowel syndrome "))
}

func TestNormalizeNameExpandsAbbreviations(t *testing.T) {
	synonyms := map[string]string{"IBD": "inflammatory bowel disease"}

	assert.Equal(t, "Inflammatory Bowel Disease", NormalizeName("IBD", synonyms))
	assert.Equal(t, "Inflammatory Bowel Disease", NormalizeName("ibd", synonyms))
	// Non-abbreviations pass through untouched by the table.
	assert.Equal(t, "Ulcerative Colitis", NormalizeName("ulcerative colitis", synonyms))
}

func TestNormalizeNameUnifiesApostrophes(t *testing.T) {
	assert.Equal(t, "Crohn's Disease", NormalizeName("Crohn’s disease", nil))
}

func TestNormalizedVariantsShareAKey(t *testing.T) {
	synonyms := map[string]string{"CD": "crohn's disease"}
	variants := []string{"Crohn's Disease", "crohns disease", "CROHN'S DISEASE", "CD"}

	want := NameKey(NormalizeName(variants[0], synonyms))
	for _, v := range variants[1:] {
		assert.Equal(t, want, NameKey(NormalizeName(v, synonyms)), "variant %q", v)
	}
}
