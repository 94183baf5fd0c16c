package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"fun-with-ai/internal/controller"
)

const help = `Type a prompt and press enter. Commands:
  /engines        list available engines (* marks the selected one)
  /engine <id>    select an engine
  /history        show all interactions, newest first
  /clear          clear the history
  /quit           exit`

// Dispatcher is the part of the controller the console drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd controller.Command) error
	State() controller.State
}

// REPL reads one command or prompt per line. Prompts run synchronously, so input
// is effectively disabled while a request is outstanding.
type REPL struct {
	ctrl Dispatcher
	out  io.Writer
}

func New(ctrl Dispatcher, out io.Writer) *REPL {
	return &REPL{ctrl: ctrl, out: out}
}

// Notify prints the generic notice; pass the REPL as the controller's Notifier.
func (r *REPL) Notify(notice string) {
	fmt.Fprintf(r.out, "! %s\n", notice)
}

// Bind lets the REPL be constructed before the controller it drives.
func (r *REPL) Bind(ctrl Dispatcher) { r.ctrl = ctrl }

func (r *REPL) Run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, help)
	r.printEngine()

	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "> ")
		if !s.Scan() {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if quit := r.handleLine(ctx, s.Text()); quit {
			return nil
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func (r *REPL) handleLine(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "/quit" || trimmed == "/exit":
		return true
	case trimmed == "/help":
		fmt.Fprintln(r.out, help)
	case trimmed == "/engines":
		st := r.ctrl.State()
		if len(st.Catalog) == 0 {
			fmt.Fprintln(r.out, "no engines available")
		}
		for _, id := range st.Catalog {
			mark := " "
			if id == st.Engine {
				mark = "*"
			}
			fmt.Fprintf(r.out, "%s %s\n", mark, id)
		}
	case trimmed == "/engine":
		fmt.Fprintln(r.out, "usage: /engine <id>, see /engines")
	case strings.HasPrefix(trimmed, "/engine "):
		id := strings.TrimSpace(strings.TrimPrefix(trimmed, "/engine "))
		err := r.ctrl.Dispatch(ctx, controller.SelectEngine{EngineID: id})
		if errors.Is(err, controller.ErrUnknownEngine) {
			fmt.Fprintf(r.out, "unknown engine %q, see /engines\n", id)
			return false
		}
		r.printEngine()
	case trimmed == "/history":
		h := r.ctrl.State().History
		if len(h) == 0 {
			fmt.Fprintln(r.out, "history is empty")
		}
		for _, it := range h {
			printInteraction(r.out, it.Prompt, it.Response, it.Engine)
		}
	case trimmed == "/clear":
		if err := r.ctrl.Dispatch(ctx, controller.ClearHistory{}); err == nil {
			fmt.Fprintln(r.out, "history cleared")
		}
	default:
		// the raw line is the prompt; only whitespace commands above are trimmed
		if err := r.ctrl.Dispatch(ctx, controller.SubmitPrompt{Text: line}); err != nil {
			return false
		}
		h := r.ctrl.State().History
		if len(h) > 0 {
			printInteraction(r.out, h[0].Prompt, h[0].Response, h[0].Engine)
		}
	}
	return false
}

func (r *REPL) printEngine() {
	fmt.Fprintf(r.out, "engine: %s\n", r.ctrl.State().Engine)
}

func printInteraction(w io.Writer, prompt, response, engine string) {
	fmt.Fprintf(w, "Prompt:\n%s\nResponse:\n%s\nEngine:\n%s\n\n", prompt, strings.TrimSpace(response), engine)
}
