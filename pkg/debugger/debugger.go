// Package debugger implements an interactive console that drives a
// tutorial session by hand: navigation, simulated host events and
// context changes, target resolution and state dumps.
package debugger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/overlay/pkg/kernel/completion"
	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	"github.com/ormasoftchile/overlay/pkg/kernel/hostctx"
)

// Host receives the input typed at the console. A Navigator is a Host.
type Host interface {
	Next() error
	Prev() error
	GoTo(i int) error
	Replay()
	Completion(ev completion.Event) []completion.Transition
	UpdateContext(c hostctx.Context) error
	Skip() error
	Accept() error
}

// Debugger is a REPL over a Navigator.
type Debugger struct {
	nav    *engine.Navigator
	host   Host
	output io.Writer
	rl     *readline.Instance
	title  string
}

// Option configures a Debugger.
type Option func(*Debugger)

// WithOutput sets where command output goes. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(d *Debugger) { d.output = w }
}

// WithTitle sets the banner title.
func WithTitle(title string) Option {
	return func(d *Debugger) { d.title = title }
}

// WithHost routes input through h instead of straight to the navigator,
// e.g. to record it.
func WithHost(h Host) Option {
	return func(d *Debugger) { d.host = h }
}

// New creates a debugger over nav. The session must already be started.
func New(nav *engine.Navigator, opts ...Option) *Debugger {
	d := &Debugger{nav: nav, host: nav, output: os.Stdout}
	for _, o := range opts {
		o(d)
	}
	return d
}

var commands = []string{"next", "prev", "goto", "replay", "event", "ctx",
	"skip", "accept", "resolve", "checklist", "state", "help", "quit"}

// Run starts the interactive loop. It returns on quit, EOF or interrupt.
func (d *Debugger) Run() error {
	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          d.buildPrompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	d.rl = rl
	defer rl.Close()

	m := d.nav.Machine()
	fmt.Fprintf(d.output, "overlay console: %s, %d steps, guidance=%s\n", d.title, m.Total(), d.nav.Guidance())
	fmt.Fprintf(d.output, "Type 'help' for available commands.\n\n")

	for {
		rl.SetPrompt(d.buildPrompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}
		if d.Exec(line) {
			return nil
		}
	}
}

// Exec runs one command line and reports whether it was quit.
func (d *Debugger) Exec(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}

	var err error
	switch parts[0] {
	case "next", "n":
		err = d.host.Next()
	case "prev", "p":
		err = d.host.Prev()
	case "goto", "g":
		err = d.handleGoto(parts)
	case "replay", "r":
		d.host.Replay()
	case "event", "e":
		d.handleEvent(parts)
	case "ctx":
		err = d.handleContext(parts)
	case "skip", "s":
		err = d.host.Skip()
	case "accept", "a":
		err = d.host.Accept()
	case "resolve":
		d.handleResolve(parts)
	case "checklist", "cl":
		d.handleChecklist()
	case "state":
		d.handleState()
	case "help", "?":
		d.handleHelp()
	case "quit", "q":
		fmt.Fprintf(d.output, "Exiting console.\n")
		return true
	default:
		fmt.Fprintf(d.output, "Unknown command: %q. Type 'help' for available commands.\n", parts[0])
	}
	if err != nil {
		fmt.Fprintf(d.output, "Error: %v\n", err)
	}
	return false
}

// buildPrompt creates the prompt: overlay[N/total | stepId]> while
// normal, overlay[redirect → N/total]> while redirecting.
func (d *Debugger) buildPrompt() string {
	st := d.nav.Machine().Snapshot()
	if st.Mode == engine.ModeRedirecting {
		return fmt.Sprintf("overlay[redirect → %d/%d]> ", st.PendingIndex+1, st.Total)
	}
	id := st.Step.StepID
	if id == "" {
		id = st.Step.Title
	}
	return fmt.Sprintf("overlay[%d/%d | %s]> ", st.Index+1, st.Total, id)
}

// Printer is an engine.Sink that writes one line per notice. It is safe
// for the concurrent notifies of a running machine.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Notify implements engine.Sink.
func (p *Printer) Notify(n engine.Notice) {
	line := describe(n)
	if line == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "  ▸ %s\n", line)
}

func describe(n engine.Notice) string {
	switch d := n.Data.(type) {
	case engine.StepLoaded:
		if d.Redirect {
			return fmt.Sprintf("redirect step %q (pending %d)", d.Step.Title, d.PendingIndex+1)
		}
		return fmt.Sprintf("step %d/%d %q", d.Index+1, d.Total, d.Step.Title)
	case engine.ChecklistChanged:
		if len(d.Transitions) == 0 {
			return ""
		}
		var parts []string
		for _, t := range d.Transitions {
			parts = append(parts, fmt.Sprintf("%q %s→%s", t.Text, t.From, t.To))
		}
		return "checklist " + strings.Join(parts, ", ")
	case engine.RedirectStarted:
		return fmt.Sprintf("redirecting before step %d: %s", d.PendingIndex+1, d.Step.Instruction)
	case engine.RedirectResolved:
		return fmt.Sprintf("redirect resolved, loading step %d", d.PendingIndex+1)
	case engine.ContextIssue:
		verb := "warning"
		if n.Kind == engine.NoticeRedirectAsk {
			verb = "redirect? (accept/skip)"
		}
		return fmt.Sprintf("%s for step %d: %s", verb, d.TargetIndex+1, d.Reason)
	}
	if n.Kind == engine.NoticeContextCleared {
		return "context warning cleared"
	}
	return ""
}
