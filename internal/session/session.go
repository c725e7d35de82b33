// Package session holds the quiz session state machine.
//
// A State value is owned by a single dispatch loop and mutated only through
// [Reduce]: given the current state and one action, Reduce returns the next
// state. No partial updates, no concurrent application — the owner applies
// actions strictly sequentially.
package session

import (
	"slices"

	"github.com/ogulcanz/sesquiz/internal/quiz"
)

// Phase is the lifecycle phase of a quiz session.
type Phase string

const (
	// PhaseIdle means no playthrough is active. A question set may or may
	// not be loaded.
	PhaseIdle Phase = "idle"

	// PhasePlaying means a playthrough is in progress and Position is
	// valid.
	PhasePlaying Phase = "playing"

	// PhaseFinished means the last question has been advanced past.
	PhaseFinished Phase = "finished"
)

// State is the complete quiz session state.
//
// Invariant: Position < Set.Len() while Phase is PhasePlaying. Score never
// exceeds the number of answered questions. Answers grows by exactly one
// entry per answered question and is cleared only on restart or reset.
type State struct {
	// ID identifies the current playthrough. Regenerated on every start
	// and restart.
	ID string

	// Set is the loaded question set, or nil when none is loaded.
	Set *quiz.Set

	Phase    Phase
	Position int
	Score    int

	// Answers records each answered question's correctness in play order.
	// Skipped questions do not append an entry.
	Answers []bool
}

// Initial returns the empty idle state with no set loaded.
func Initial() State {
	return State{Phase: PhaseIdle}
}

// Current returns the question at the session's position. ok is false when
// the session is not playing or the position is out of range.
func (s State) Current() (quiz.Question, bool) {
	if s.Phase != PhasePlaying || s.Set == nil || s.Position >= s.Set.Len() {
		return quiz.Question{}, false
	}
	return s.Set.Questions[s.Position], true
}

// Answered returns the number of answered (not skipped) questions.
func (s State) Answered() int {
	return len(s.Answers)
}

// Skipped returns the number of questions passed without an answer. It is
// exact once the session is finished.
func (s State) Skipped() int {
	if s.Set == nil {
		return 0
	}
	played := s.Position
	if s.Phase == PhaseFinished {
		played = s.Set.Len()
	}
	n := played - len(s.Answers)
	if n < 0 {
		return 0
	}
	return n
}

// Percentage returns the final score as a share of the total question
// count, 0–100. Skipped questions count toward the denominator.
func (s State) Percentage() int {
	if s.Set.Len() == 0 {
		return 0
	}
	return s.Score * 100 / s.Set.Len()
}

// Action is one discrete session state transition request.
type Action interface {
	action()
}

// LoadSet attaches a freshly loaded question set, fully resetting the
// session to idle.
type LoadSet struct {
	Set *quiz.Set
}

// StartQuiz begins a playthrough of the loaded set. The dispatcher supplies
// the playthrough ID so that Reduce stays deterministic.
type StartQuiz struct {
	SessionID string
}

// AnswerQuestion records the current question's evaluation outcome.
type AnswerQuestion struct {
	Correct bool
}

// NextQuestion advances past the current question, finishing the session
// when none remain.
type NextQuestion struct{}

// RestartQuiz replays the loaded set from the beginning with score and
// answer history cleared.
type RestartQuiz struct {
	SessionID string
}

// ResetHome discards everything, including the loaded set.
type ResetHome struct{}

func (LoadSet) action()        {}
func (StartQuiz) action()      {}
func (AnswerQuestion) action() {}
func (NextQuestion) action()   {}
func (RestartQuiz) action()    {}
func (ResetHome) action()      {}

// Reduce applies a to s and returns the resulting state. Unknown or
// inapplicable actions (e.g. StartQuiz with no set loaded) leave the state
// unchanged.
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case LoadSet:
		next := Initial()
		next.Set = act.Set
		return next

	case StartQuiz:
		if s.Set.Len() == 0 {
			return s
		}
		s.ID = act.SessionID
		s.Phase = PhasePlaying
		s.Position = 0
		s.Score = 0
		s.Answers = nil
		return s

	case AnswerQuestion:
		if s.Phase != PhasePlaying {
			return s
		}
		if act.Correct {
			s.Score++
		}
		s.Answers = append(slices.Clone(s.Answers), act.Correct)
		return s

	case NextQuestion:
		if s.Phase != PhasePlaying {
			return s
		}
		if s.Position+1 >= s.Set.Len() {
			s.Phase = PhaseFinished
			return s
		}
		s.Position++
		return s

	case RestartQuiz:
		if s.Set.Len() == 0 {
			return s
		}
		s.ID = act.SessionID
		s.Phase = PhasePlaying
		s.Position = 0
		s.Score = 0
		s.Answers = nil
		return s

	case ResetHome:
		return Initial()

	default:
		return s
	}
}
