// Package ui provides the terminal presentation layer and the stdin command
// reader for the quiz.
//
// The renderer is write-only and never blocks on user input; the command
// reader runs in its own goroutine and converts typed lines into [Intent]
// values consumed by the application loop.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ogulcanz/sesquiz/internal/quiz"
	"github.com/ogulcanz/sesquiz/internal/session"
)

// Intent is a user command parsed from terminal input.
type Intent int

const (
	// IntentStart begins the quiz from the start screen, or restarts it
	// from the results screen.
	IntentStart Intent = iota

	// IntentSkip advances past the current question without scoring it.
	IntentSkip

	// IntentMic reopens the microphone for another answer attempt.
	IntentMic

	// IntentHome abandons the current run and returns to the start screen.
	IntentHome

	// IntentQuit exits the application.
	IntentQuit
)

// String returns the command word for the intent.
func (i Intent) String() string {
	switch i {
	case IntentStart:
		return "start"
	case IntentSkip:
		return "skip"
	case IntentMic:
		return "mic"
	case IntentHome:
		return "home"
	case IntentQuit:
		return "quit"
	}
	return fmt.Sprintf("Intent(%d)", int(i))
}

// commands maps accepted input lines to intents. Single-letter aliases match
// the first letter of each command.
var commands = map[string]Intent{
	"start": IntentStart, "s": IntentStart,
	"skip": IntentSkip, "k": IntentSkip,
	"mic": IntentMic, "m": IntentMic,
	"home": IntentHome, "h": IntentHome,
	"quit": IntentQuit, "q": IntentQuit, "exit": IntentQuit,
}

// ParseIntent parses a single input line. The boolean is false for empty or
// unrecognised input.
func ParseIntent(line string) (Intent, bool) {
	in, ok := commands[strings.ToLower(strings.TrimSpace(line))]
	return in, ok
}

// Reader reads lines from an input stream and emits parsed intents.
type Reader struct {
	r io.Reader
}

// NewReader creates a Reader over r (normally os.Stdin).
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Intents starts a goroutine scanning input lines and returns the channel of
// parsed intents. The channel closes when the input stream ends or ctx is
// cancelled. Unrecognised lines are dropped.
func (rd *Reader) Intents(ctx context.Context) <-chan Intent {
	out := make(chan Intent)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(rd.r)
		for sc.Scan() {
			in, ok := ParseIntent(sc.Text())
			if !ok {
				continue
			}
			select {
			case out <- in:
			case <-ctx.Done():
				return
			}
			if in == IntentQuit {
				return
			}
		}
	}()
	return out
}

// Renderer writes quiz screens to a terminal.
type Renderer struct {
	w io.Writer
}

// NewRenderer creates a Renderer writing to w (normally os.Stdout).
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Home draws the start screen for a loaded question set.
func (r *Renderer) Home(set *quiz.Set) {
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "═══ %s ═══\n", set.Title)
	if set.Description != "" {
		fmt.Fprintln(r.w, set.Description)
	}
	fmt.Fprintf(r.w, "%d soru. Başlamak için \"start\" yazın.\n", len(set.Questions))
}

// Question draws the current question of a running session.
func (r *Renderer) Question(st session.State) {
	q := st.Set.Questions[st.Position]
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "── Soru %d/%d", st.Position+1, len(st.Set.Questions))
	if q.Category != "" {
		fmt.Fprintf(r.w, " · %s", q.Category)
	}
	fmt.Fprintln(r.w, " ──")
	fmt.Fprintln(r.w, q.Question)
}

// Listening shows the live microphone status. interim may be empty.
func (r *Renderer) Listening(interim string) {
	if interim == "" {
		fmt.Fprintln(r.w, "🎤 dinleniyor…")
		return
	}
	fmt.Fprintf(r.w, "🎤 %s\n", interim)
}

// Transcript shows the final transcript captured for this question.
func (r *Renderer) Transcript(final string) {
	fmt.Fprintf(r.w, "Cevabınız: %q\n", final)
}

// Feedback shows the evaluation outcome for the current question.
func (r *Renderer) Feedback(correct bool, answer string) {
	if correct {
		fmt.Fprintln(r.w, "✔ Doğru!")
		return
	}
	fmt.Fprintf(r.w, "✘ Yanlış. Doğru cevap: %s\n", answer)
}

// Finished draws the results screen. Skipped questions count toward the
// score denominator and are reported separately.
func (r *Renderer) Finished(st session.State) {
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "═══ Quiz bitti ═══")
	fmt.Fprintf(r.w, "Skor: %d/%d (%%%d)\n", st.Score, st.Set.Len(), st.Percentage())
	if skipped := st.Skipped(); skipped > 0 {
		fmt.Fprintf(r.w, "%d cevaplandı, %d atlandı.\n", st.Answered(), skipped)
	}
	fmt.Fprintln(r.w, "\"start\" yeniden başlatır, \"home\" başa döner.")
}

// Status prints a transient status line, such as a recognition error.
func (r *Renderer) Status(msg string) {
	fmt.Fprintf(r.w, "• %s\n", msg)
}

// Help prints the command reference.
func (r *Renderer) Help() {
	fmt.Fprintln(r.w, "Komutlar: start, skip, mic, home, quit")
}
