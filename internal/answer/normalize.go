// Package answer implements transcript normalization and the fuzzy match
// policy used to score spoken answers against a question's reference answer.
//
// Speech recognition output is noisy: casing is arbitrary, punctuation
// appears and disappears between runs, and short phoneme-level errors are
// common ("ankaraa" for "ankara"). The package canonicalizes both sides with
// a locale-aware case fold and then accepts transcripts within a small
// Levenshtein edit distance of the reference.
package answer

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// punctuation is the fixed set of characters removed during normalization.
// It mirrors what recognition engines typically inject or omit between runs.
const punctuation = ".,/#!$%^&*;:{}=-_`~()"

// Normalizer canonicalizes free-form text for comparison using a
// locale-aware lowercase fold. The zero value folds with the default
// (language-neutral) casing rules; use [NewNormalizer] to bind a specific
// language so that e.g. Turkish "İ" folds to "i" and "I" to "ı".
//
// Normalizer is safe for concurrent use.
type Normalizer struct {
	tag language.Tag
}

// NewNormalizer returns a Normalizer that folds case according to tag.
func NewNormalizer(tag language.Tag) Normalizer {
	return Normalizer{tag: tag}
}

// Normalize returns the canonical comparison form of text: locale-aware
// lowercase, punctuation removed, whitespace runs collapsed to a single
// space, and no leading or trailing whitespace.
//
// Normalize is total over all inputs, deterministic, and idempotent.
func (n Normalizer) Normalize(text string) string {
	lowered := cases.Lower(n.tag).String(text)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if strings.ContainsRune(punctuation, r) {
			continue
		}
		b.WriteRune(r)
	}

	// Fields collapses interior whitespace runs and drops the outer ones in
	// a single pass.
	return strings.Join(strings.Fields(b.String()), " ")
}
