package answer

import (
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/language"
)

const (
	// defaultMaxDistance is the Levenshtein distance up to which a
	// normalized transcript is still accepted as the reference answer.
	// The tolerance is fixed rather than scaled by answer length, covering
	// single typo or phoneme-level recognition errors.
	defaultMaxDistance = 2

	// minFuzzyRunes is the minimum normalized reference length (in runes)
	// for which fuzzy acceptance applies. Below this, a distance-2
	// tolerance would accept almost any input, so only identical
	// transcripts count.
	minFuzzyRunes = 3
)

// Distance returns the Levenshtein edit distance between a and b: the
// minimum number of single-character insertions, deletions, and
// substitutions transforming one into the other. It is symmetric,
// Distance(a, a) == 0, and Distance("", s) equals the length of s.
func Distance(a, b string) int {
	return matchr.Levenshtein(a, b)
}

// Result describes one evaluation of a spoken transcript against a
// reference answer.
type Result struct {
	// Transcript is the normalized form of the spoken input.
	Transcript string

	// Reference is the normalized form of the expected answer.
	Reference string

	// Distance is the Levenshtein distance between the normalized forms.
	Distance int

	// Correct reports whether the transcript is accepted as the answer.
	Correct bool
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithMaxDistance overrides the accepted Levenshtein distance. The default
// is 2.
func WithMaxDistance(d int) Option {
	return func(m *Matcher) {
		m.maxDistance = d
	}
}

// Matcher evaluates spoken transcripts against reference answers using the
// normalize-then-compare policy. Matcher is safe for concurrent use.
type Matcher struct {
	norm        Normalizer
	maxDistance int
}

// NewMatcher returns a Matcher whose normalization folds case according to
// tag.
func NewMatcher(tag language.Tag, opts ...Option) *Matcher {
	m := &Matcher{
		norm:        NewNormalizer(tag),
		maxDistance: defaultMaxDistance,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Evaluate normalizes both transcript and reference and applies the match
// policy: the transcript is accepted when the normalized forms are
// identical, or when their edit distance is within the configured maximum.
// References shorter than three runes after normalization accept identical
// transcripts only.
func (m *Matcher) Evaluate(transcript, reference string) Result {
	r := Result{
		Transcript: m.norm.Normalize(transcript),
		Reference:  m.norm.Normalize(reference),
	}
	r.Distance = Distance(r.Transcript, r.Reference)

	if r.Transcript == r.Reference {
		r.Correct = true
		return r
	}
	if utf8.RuneCountInString(r.Reference) < minFuzzyRunes {
		return r
	}
	r.Correct = r.Distance <= m.maxDistance
	return r
}

// Matches reports whether transcript is accepted as reference under the
// match policy. See [Matcher.Evaluate].
func (m *Matcher) Matches(transcript, reference string) bool {
	return m.Evaluate(transcript, reference).Correct
}

// PhoneticallyClose reports whether the two normalized strings sound alike:
// they share a Double Metaphone code, or their Jaro-Winkler similarity is at
// least 0.85. It never affects scoring; the turn controller logs it to
// explain near misses.
func PhoneticallyClose(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	if ap != "" && (ap == bp || ap == bs) {
		return true
	}
	if as != "" && (as == bp || as == bs) {
		return true
	}
	return matchr.JaroWinkler(a, b, false) >= 0.85
}
