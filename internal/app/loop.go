package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanz/sesquiz/internal/quiz"
	"github.com/ogulcanz/sesquiz/internal/session"
	"github.com/ogulcanz/sesquiz/internal/ui"
)

// Dispatch queues an action for the reducer loop. Safe for concurrent use;
// this is the function handed to the turn controller.
func (a *App) Dispatch(action session.Action) {
	a.actions <- action
}

// loop is the single owner of session state. It serialises player intents
// and turn controller actions, applies them through the reducer, and reacts
// to the resulting state. Returns nil when the player quits or the command
// stream ends.
func (a *App) loop(ctx context.Context) error {
	intents := a.reader.Intents(ctx)

	a.render.Home(a.state.Set)
	a.render.Help()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case action := <-a.actions:
			a.apply(ctx, action)

		case intent, ok := <-intents:
			if !ok {
				slog.Info("command stream ended")
				return nil
			}
			if intent == ui.IntentQuit {
				slog.Info("player quit")
				return nil
			}
			a.handleIntent(ctx, intent)
		}
	}
}

// handleIntent reacts to a player command given the current phase. Commands
// that make no sense in the current phase are ignored with a status line.
func (a *App) handleIntent(ctx context.Context, intent ui.Intent) {
	switch intent {
	case ui.IntentStart:
		switch a.state.Phase {
		case session.PhaseIdle:
			a.apply(ctx, session.StartQuiz{SessionID: uuid.NewString()})
		case session.PhaseFinished:
			a.apply(ctx, session.RestartQuiz{SessionID: uuid.NewString()})
		default:
			a.render.Status("quiz zaten devam ediyor")
		}

	case ui.IntentSkip:
		if a.state.Phase != session.PhasePlaying {
			a.render.Status("atlanacak soru yok")
			return
		}
		a.metrics.RecordSkip(ctx)
		a.turns.Skip()

	case ui.IntentMic:
		if a.state.Phase != session.PhasePlaying {
			a.render.Status("mikrofon sadece soru sırasında açılır")
			return
		}
		a.turns.ReopenMic(ctx)

	case ui.IntentHome:
		a.goHome(ctx)
	}
}

// goHome abandons any running quiz and returns to the start screen. The
// question set is reloaded from disk so edits to the quiz file take effect;
// if the reload fails the old set stays loaded and an error is shown.
func (a *App) goHome(ctx context.Context) {
	a.turns.Reset()
	a.turnStart = time.Time{}
	if a.state.Phase == session.PhasePlaying {
		a.metrics.ActiveSessions.Add(ctx, -1)
	}

	set, err := quiz.Load(a.cfg.Quiz.File)
	if err != nil {
		slog.Warn("question set reload failed", "file", a.cfg.Quiz.File, "err", err)
		a.render.Status(fmt.Sprintf("soru dosyası yüklenemedi: %v", err))
		set = a.state.Set
	}

	a.state = session.Reduce(a.state, session.ResetHome{})
	a.state = session.Reduce(a.state, session.LoadSet{Set: set})
	a.render.Home(a.state.Set)
}

// apply runs one action through the reducer and reacts to the transition.
func (a *App) apply(ctx context.Context, action session.Action) {
	prev := a.state
	a.state = session.Reduce(prev, action)

	switch act := action.(type) {
	case session.StartQuiz, session.RestartQuiz:
		if a.state.Phase != session.PhasePlaying {
			a.render.Status("soru seti boş, quiz başlatılamadı")
			return
		}
		a.metrics.ActiveSessions.Add(ctx, 1)
		a.notifier.QuizStarted(a.state.Set.Title, a.state.Set.Len())
		slog.Info("quiz started", "session", a.state.ID, "questions", a.state.Set.Len())
		a.beginQuestion(ctx)

	case session.AnswerQuestion:
		a.metrics.RecordAnswer(ctx, act.Correct)
		if q, ok := prev.Current(); ok {
			a.render.Feedback(act.Correct, q.Answer)
		}

	case session.NextQuestion:
		if !a.turnStart.IsZero() {
			a.metrics.TurnDuration.Record(ctx, time.Since(a.turnStart).Seconds())
			a.turnStart = time.Time{}
		}
		switch a.state.Phase {
		case session.PhasePlaying:
			a.beginQuestion(ctx)
		case session.PhaseFinished:
			a.finishQuiz(ctx)
		}
	}
}

// beginQuestion renders the current question and hands it to the turn
// controller.
func (a *App) beginQuestion(ctx context.Context) {
	q, ok := a.state.Current()
	if !ok {
		slog.Error("no current question in playing phase", "position", a.state.Position)
		return
	}
	a.turnStart = time.Now()
	a.render.Question(a.state)
	a.turns.Begin(ctx, q)
}

// finishQuiz announces the final score on screen, by voice, and via desktop
// notification.
func (a *App) finishQuiz(ctx context.Context) {
	score, total := a.state.Score, a.state.Set.Len()
	a.metrics.ActiveSessions.Add(ctx, -1)
	a.render.Finished(a.state)
	a.notifier.QuizFinished(score, total)
	slog.Info("quiz finished", "session", a.state.ID, "score", score, "total", total)

	a.speaker.Speak(ctx, fmt.Sprintf("Quiz bitti. Skorunuz: %d, %d üzerinden.", score, total), nil)
}
