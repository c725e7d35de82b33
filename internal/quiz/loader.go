package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNoQuestions is returned when the document has no questions array.
var ErrNoQuestions = errors.New("quiz: document has no questions array")

// Load reads the JSON question set at path. It is a convenience wrapper
// around [LoadFromReader].
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("quiz: open %q: %w", path, err)
	}
	defer f.Close()

	s, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("quiz: parse %q: %w", path, err)
	}
	return s, nil
}

// LoadFromReader decodes a JSON question set from r.
//
// The only structural requirement is that a questions array is present;
// malformed individual entries decode to zero values and surface later as
// runtime behavior, not load errors. On any error the caller's state is
// untouched — no partial set is ever returned.
func LoadFromReader(r io.Reader) (*Set, error) {
	set := &Set{}
	dec := json.NewDecoder(r)
	if err := dec.Decode(set); err != nil {
		return nil, fmt.Errorf("quiz: decode json: %w", err)
	}
	if set.Questions == nil {
		return nil, ErrNoQuestions
	}
	return set, nil
}
