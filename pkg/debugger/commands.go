package debugger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ormasoftchile/overlay/pkg/kernel/completion"
)

// handleGoto jumps to a 1-based step number.
func (d *Debugger) handleGoto(parts []string) error {
	if len(parts) < 2 {
		fmt.Fprintf(d.output, "Usage: goto <step number>\n")
		return nil
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		fmt.Fprintf(d.output, "Invalid step number: %q\n", parts[1])
		return nil
	}
	return d.host.GoTo(n - 1)
}

// handleEvent simulates a host completion event: event TYPE [COMMAND_ID].
func (d *Debugger) handleEvent(parts []string) {
	if len(parts) < 2 {
		fmt.Fprintf(d.output, "Usage: event <semanticType> [commandId]\n")
		return
	}
	ev := completion.Event{SemanticType: completion.EventType(parts[1])}
	if len(parts) > 2 {
		ev.CommandID = parts[2]
	}
	if ev.Class() == completion.ClassNone {
		fmt.Fprintf(d.output, "  %s does not move checklist items\n", ev.SemanticType)
	}
	ts := d.host.Completion(ev)
	if len(ts) == 0 {
		fmt.Fprintf(d.output, "  No checklist item matched.\n")
	}
}

// handleContext updates the simulated host context from key=value pairs.
// Unset keys keep their last value.
func (d *Debugger) handleContext(parts []string) error {
	c := d.nav.Context()
	if len(parts) < 2 {
		fmt.Fprintf(d.output, "  workspace=%s environment=%s document=%t sketch=%t\n",
			c.Workspace, c.Environment, c.HasActiveDocument, c.HasActiveSketch)
		return nil
	}
	for _, kv := range parts[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			fmt.Fprintf(d.output, "Invalid pair %q: expected key=value\n", kv)
			return nil
		}
		switch strings.ToLower(key) {
		case "workspace", "ws":
			c.Workspace = value
		case "environment", "env":
			c.Environment = value
		case "document", "doc":
			b, err := strconv.ParseBool(value)
			if err != nil {
				fmt.Fprintf(d.output, "Invalid bool for %s: %q\n", key, value)
				return nil
			}
			c.HasActiveDocument = b
		case "sketch":
			b, err := strconv.ParseBool(value)
			if err != nil {
				fmt.Fprintf(d.output, "Invalid bool for %s: %q\n", key, value)
				return nil
			}
			c.HasActiveSketch = b
		case "name":
			c.DocumentName = value
		default:
			fmt.Fprintf(d.output, "Unknown context key %q (workspace, environment, document, sketch, name)\n", key)
			return nil
		}
	}
	return d.host.UpdateContext(c)
}

// handleResolve resolves a target path in the active environment.
func (d *Debugger) handleResolve(parts []string) {
	if len(parts) < 2 {
		fmt.Fprintf(d.output, "Usage: resolve <path>\n")
		return
	}
	res := d.nav.Machine().Resolver()
	t, ok := res.Resolve(parts[1])
	if !ok {
		fmt.Fprintf(d.output, "  %s: unresolved in %q\n", parts[1], res.Active())
		return
	}
	fmt.Fprintf(d.output, "  %s → %s [%s] (%g,%g %gx%g) image %d via %s\n",
		parts[1], t.Key, t.Label, t.Rect.X, t.Rect.Y, t.Rect.Width, t.Rect.Height, t.ImageIndex, t.Strategy)
}

// handleChecklist lists the current step's items.
func (d *Debugger) handleChecklist() {
	st := d.nav.Machine().Snapshot()
	if len(st.Checklist) == 0 {
		fmt.Fprintf(d.output, "No checklist on this step.\n")
		return
	}
	for i, it := range st.Checklist {
		fmt.Fprintf(d.output, "  %s %d. %s\n", glyph(it.State), i+1, it.Text)
	}
	if completion.Done(st.Checklist) {
		fmt.Fprintf(d.output, "  Step complete.\n")
	}
}

func glyph(s completion.State) string {
	switch s {
	case completion.StateCompleted:
		return "✓"
	case completion.StateChecking:
		return "…"
	case completion.StateFailed:
		return "✗"
	default:
		return "○"
	}
}

// handleState outputs the machine snapshot as JSON.
func (d *Debugger) handleState() {
	data, err := json.MarshalIndent(d.nav.Machine().Snapshot(), "", "  ")
	if err != nil {
		fmt.Fprintf(d.output, "  Error marshaling state: %v\n", err)
		return
	}
	fmt.Fprintln(d.output, string(data))
}

// handleHelp displays available commands.
func (d *Debugger) handleHelp() {
	fmt.Fprintln(d.output, "Available commands:")
	fmt.Fprintln(d.output, "  next (n)             Go to the next step")
	fmt.Fprintln(d.output, "  prev (p)             Go to the previous step")
	fmt.Fprintln(d.output, "  goto (g) <N>         Go to step N")
	fmt.Fprintln(d.output, "  replay (r)           Replay the step animation")
	fmt.Fprintln(d.output, "  event (e) <type> [cmd]  Simulate a host event, e.g. event command_terminated Extrude")
	fmt.Fprintln(d.output, "  ctx [key=value ...]  Show or change the host context (workspace, environment, document, sketch, name)")
	fmt.Fprintln(d.output, "  skip (s)             Skip the redirect or decline the question")
	fmt.Fprintln(d.output, "  accept (a)           Accept the redirect question")
	fmt.Fprintln(d.output, "  resolve <path>       Resolve a target path")
	fmt.Fprintln(d.output, "  checklist (cl)       Show checklist progress")
	fmt.Fprintln(d.output, "  state                Output the machine state as JSON")
	fmt.Fprintln(d.output, "  help (?)             Show this help")
	fmt.Fprintln(d.output, "  quit (q)             Exit the console")
}
