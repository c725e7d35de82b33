package session

import (
	"testing"

	"github.com/ogulcanz/sesquiz/internal/quiz"
)

func twoQuestionSet() *quiz.Set {
	return &quiz.Set{
		Title: "Meyveler",
		Questions: []quiz.Question{
			{ID: 1, Question: "Kırmızı meyve?", Answer: "elma"},
			{ID: 2, Question: "Sarı meyve?", Answer: "armut"},
		},
	}
}

func TestReduceStart(t *testing.T) {
	t.Parallel()

	s := Reduce(Initial(), LoadSet{Set: twoQuestionSet()})
	if s.Phase != PhaseIdle || s.Set == nil {
		t.Fatalf("after LoadSet: %+v", s)
	}

	s = Reduce(s, StartQuiz{SessionID: "run-1"})
	if s.Phase != PhasePlaying {
		t.Fatalf("Phase = %q, want playing", s.Phase)
	}
	if s.Position != 0 || s.Score != 0 || len(s.Answers) != 0 {
		t.Fatalf("start state not clean: %+v", s)
	}
	if s.ID != "run-1" {
		t.Fatalf("ID = %q", s.ID)
	}

	q, ok := s.Current()
	if !ok || q.ID != 1 {
		t.Fatalf("Current = %+v, ok=%v", q, ok)
	}
}

func TestReduceStartWithoutSet(t *testing.T) {
	t.Parallel()

	s := Reduce(Initial(), StartQuiz{SessionID: "run-1"})
	if s.Phase != PhaseIdle {
		t.Fatalf("StartQuiz without a set must be a no-op, got %+v", s)
	}

	empty := Reduce(Initial(), LoadSet{Set: &quiz.Set{}})
	empty = Reduce(empty, StartQuiz{SessionID: "run-2"})
	if empty.Phase != PhaseIdle {
		t.Fatalf("StartQuiz with an empty set must be a no-op, got %+v", empty)
	}
}

func TestReduceFullPlaythrough(t *testing.T) {
	t.Parallel()

	s := Reduce(Initial(), LoadSet{Set: twoQuestionSet()})
	s = Reduce(s, StartQuiz{SessionID: "run-1"})

	s = Reduce(s, AnswerQuestion{Correct: true})
	s = Reduce(s, NextQuestion{})
	if s.Phase != PhasePlaying || s.Position != 1 {
		t.Fatalf("after first question: %+v", s)
	}

	s = Reduce(s, AnswerQuestion{Correct: true})
	s = Reduce(s, NextQuestion{})
	if s.Phase != PhaseFinished {
		t.Fatalf("Phase = %q, want finished", s.Phase)
	}
	if s.Score != 2 {
		t.Fatalf("Score = %d, want 2", s.Score)
	}
	if s.Percentage() != 100 {
		t.Fatalf("Percentage = %d, want 100", s.Percentage())
	}
	if got := []bool{true, true}; len(s.Answers) != 2 || s.Answers[0] != got[0] || s.Answers[1] != got[1] {
		t.Fatalf("Answers = %v", s.Answers)
	}
}

func TestReduceSkipKeepsAnswersShort(t *testing.T) {
	t.Parallel()

	s := Reduce(Initial(), LoadSet{Set: twoQuestionSet()})
	s = Reduce(s, StartQuiz{SessionID: "run-1"})

	// Skip the first question: advance with no AnswerQuestion.
	s = Reduce(s, NextQuestion{})
	s = Reduce(s, AnswerQuestion{Correct: false})
	s = Reduce(s, NextQuestion{})

	if s.Phase != PhaseFinished {
		t.Fatalf("Phase = %q", s.Phase)
	}
	if s.Answered() != 1 || s.Skipped() != 1 {
		t.Fatalf("Answered = %d, Skipped = %d", s.Answered(), s.Skipped())
	}
	// Skipped questions still count toward the percentage denominator.
	if s.Percentage() != 0 {
		t.Fatalf("Percentage = %d, want 0", s.Percentage())
	}
}

func TestReduceRestart(t *testing.T) {
	t.Parallel()

	s := Reduce(Initial(), LoadSet{Set: twoQuestionSet()})
	s = Reduce(s, StartQuiz{SessionID: "run-1"})
	s = Reduce(s, AnswerQuestion{Correct: true})
	s = Reduce(s, NextQuestion{})
	s = Reduce(s, AnswerQuestion{Correct: false})
	s = Reduce(s, NextQuestion{})

	restarted := Reduce(s, RestartQuiz{SessionID: "run-2"})
	if restarted.Phase != PhasePlaying {
		t.Fatalf("Phase = %q, want playing", restarted.Phase)
	}
	if restarted.Position != 0 || restarted.Score != 0 || len(restarted.Answers) != 0 {
		t.Fatalf("restart did not clear state: %+v", restarted)
	}
	if restarted.Set != s.Set {
		t.Fatal("restart must retain the question set")
	}
	if restarted.ID == s.ID {
		t.Fatal("restart must use the new session ID")
	}
}

func TestReduceReset(t *testing.T) {
	t.Parallel()

	s := Reduce(Initial(), LoadSet{Set: twoQuestionSet()})
	s = Reduce(s, StartQuiz{SessionID: "run-1"})

	s = Reduce(s, ResetHome{})
	if s.Phase != PhaseIdle || s.Set != nil || s.ID != "" {
		t.Fatalf("ResetHome left residue: %+v", s)
	}
}

func TestReduceLoadReplacesEverything(t *testing.T) {
	t.Parallel()

	s := Reduce(Initial(), LoadSet{Set: twoQuestionSet()})
	s = Reduce(s, StartQuiz{SessionID: "run-1"})
	s = Reduce(s, AnswerQuestion{Correct: true})

	replacement := &quiz.Set{Questions: []quiz.Question{{ID: 9, Answer: "x"}}}
	s = Reduce(s, LoadSet{Set: replacement})
	if s.Phase != PhaseIdle || s.Score != 0 || s.Set != replacement {
		t.Fatalf("LoadSet must fully reset: %+v", s)
	}
}

func TestReduceAnswerAppendDoesNotAliasHistory(t *testing.T) {
	t.Parallel()

	s := Reduce(Initial(), LoadSet{Set: twoQuestionSet()})
	s = Reduce(s, StartQuiz{SessionID: "run-1"})
	first := Reduce(s, AnswerQuestion{Correct: true})

	// Two divergent futures from the same predecessor must not share
	// backing storage.
	a := Reduce(first, AnswerQuestion{Correct: true})
	b := Reduce(first, AnswerQuestion{Correct: false})
	if a.Answers[1] == b.Answers[1] {
		t.Fatal("divergent reductions alias the answer history")
	}
	if first.Answers[0] != true || len(first.Answers) != 1 {
		t.Fatalf("predecessor mutated: %v", first.Answers)
	}
}

func TestReduceGuards(t *testing.T) {
	t.Parallel()

	idle := Reduce(Initial(), LoadSet{Set: twoQuestionSet()})

	if got := Reduce(idle, AnswerQuestion{Correct: true}); got.Score != 0 {
		t.Fatal("AnswerQuestion while idle must be a no-op")
	}
	if got := Reduce(idle, NextQuestion{}); got.Position != 0 || got.Phase != PhaseIdle {
		t.Fatal("NextQuestion while idle must be a no-op")
	}
}
