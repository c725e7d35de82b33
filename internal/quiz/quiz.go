// Package quiz defines the immutable question-set model and its JSON
// loader.
//
// A Set is loaded wholesale from a JSON document and never mutated
// afterwards; reloading replaces the entire set. Question order within a
// set is significant — it determines play order.
package quiz

// Question is a single quiz question. Immutable once loaded.
type Question struct {
	// ID is unique within a set.
	ID int `json:"id"`

	// Category is informational only; it is never matched against.
	Category string `json:"category"`

	// Question is the text spoken to the player.
	Question string `json:"question"`

	// Answer is the reference text the spoken answer is matched against.
	Answer string `json:"answer"`
}

// Set is an ordered quiz question set.
type Set struct {
	Title       string     `json:"quiz_title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

// Len returns the number of questions in the set. Safe on a nil Set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Questions)
}
