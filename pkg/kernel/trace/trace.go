// Package trace implements the append-only JSONL session trail.
package trace

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all trace event types.
type EventType string

const (
	EventSessionStart        EventType = "session_start"
	EventSessionEnd          EventType = "session_end"
	EventStepLoaded          EventType = "step_loaded"
	EventDirectiveStart      EventType = "directive_start"
	EventTargetResolved      EventType = "target_resolved"
	EventTargetUnresolved    EventType = "target_unresolved"
	EventSequenceAborted     EventType = "sequence_aborted"
	EventChecklistTransition EventType = "checklist_transition"
	EventNavBlocked          EventType = "nav_blocked"
	EventRedirectEnter       EventType = "redirect_enter"
	EventRedirectResolved    EventType = "redirect_resolved"
	EventRedirectSkipped     EventType = "redirect_skipped"
	EventContextChanged      EventType = "context_changed"
	EventQCChecked           EventType = "qc_checked"
)

// Signing keys are read from the environment when a session is sealed
// and when a trace is verified.
const (
	SigningKeyEnv   = "OVERLAY_TRACE_SIGNING_KEY"
	SigningKeyIDEnv = "OVERLAY_TRACE_SIGNING_KEY_ID"
)

// genesisHash is the prev_hash of the first event in a chain.
var genesisHash = strings.Repeat("0", 64)

// Event is a single trace event written to the JSONL stream. PrevHash is
// the SHA-256 of the previous event's JSON line.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	PrevHash  string         `json:"prev_hash"`
	Data      map[string]any `json:"data,omitempty"`
}

// Writer writes trace events to an append-only, hash-chained JSONL
// stream. A nil *Writer discards everything.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	c     io.Closer
	runID string
	last  string
	now   func() time.Time
}

// NewRunID returns a fresh session identifier.
func NewRunID() string {
	return uuid.NewString()
}

// NewWriter creates a trace writer that writes to the given io.Writer.
// An empty runID gets a generated one.
func NewWriter(w io.Writer, runID string) *Writer {
	if runID == "" {
		runID = NewRunID()
	}
	return &Writer{
		w:     w,
		runID: runID,
		last:  genesisHash,
		now:   time.Now,
	}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	tw := NewWriter(f, runID)
	tw.c = f
	return tw, nil
}

// RunID returns the session identifier stamped on every event.
func (tw *Writer) RunID() string {
	if tw == nil {
		return ""
	}
	return tw.runID
}

// Close closes the underlying file, if the writer owns one.
func (tw *Writer) Close() error {
	if tw == nil || tw.c == nil {
		return nil
	}
	return tw.c.Close()
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, data map[string]any) error {
	if tw == nil {
		return nil
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.emitLocked(eventType, data)
}

func (tw *Writer) emitLocked(eventType EventType, data map[string]any) error {
	evt := Event{
		Type:      eventType,
		Timestamp: tw.now().UTC(),
		RunID:     tw.runID,
		PrevHash:  tw.last,
		Data:      data,
	}
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal trace event: %w", err)
	}
	if _, err := tw.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write trace event: %w", err)
	}
	tw.last = hashLine(line)
	return nil
}

func hashLine(line []byte) string {
	h := sha256.Sum256(line)
	return hex.EncodeToString(h[:])
}

func sign(key, chainHash string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(chainHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// EmitSessionEnd seals the chain with a session_end event carrying the
// hash of the previous event, signed with SigningKeyEnv when it is set.
func (tw *Writer) EmitSessionEnd(index int) error {
	if tw == nil {
		return nil
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data := map[string]any{"index": index, "chain_hash": tw.last}
	if key := os.Getenv(SigningKeyEnv); key != "" {
		data["signature"] = sign(key, tw.last)
		if id := os.Getenv(SigningKeyIDEnv); id != "" {
			data["signing_key_id"] = id
		}
	}
	return tw.emitLocked(EventSessionEnd, data)
}

// EmitSessionStart emits a session_start event.
func (tw *Writer) EmitSessionStart(tutorialID string, steps int, environments []string) error {
	return tw.Emit(EventSessionStart, map[string]any{
		"tutorial_id":  tutorialID,
		"steps":        steps,
		"environments": environments,
	})
}

// EmitStepLoaded emits a step_loaded event.
func (tw *Writer) EmitStepLoaded(index int, stepID, title string, redirect bool) error {
	data := map[string]any{
		"index": index,
		"title": title,
	}
	if stepID != "" {
		data["step_id"] = stepID
	}
	if redirect {
		data["redirect"] = true
	}
	return tw.Emit(EventStepLoaded, data)
}

// EmitTarget emits a target_resolved or target_unresolved event.
func (tw *Writer) EmitTarget(path string, resolved bool, key, strategy string) error {
	if !resolved {
		return tw.Emit(EventTargetUnresolved, map[string]any{"path": path})
	}
	return tw.Emit(EventTargetResolved, map[string]any{
		"path":     path,
		"key":      key,
		"strategy": strategy,
	})
}

// EmitChecklistTransition emits a checklist_transition event.
func (tw *Writer) EmitChecklistTransition(index int, text, from, to, rule string) error {
	return tw.Emit(EventChecklistTransition, map[string]any{
		"item": index,
		"text": text,
		"from": from,
		"to":   to,
		"rule": rule,
	})
}

// EmitNavBlocked emits a nav_blocked event.
func (tw *Writer) EmitNavBlocked(action string, pendingIndex int) error {
	return tw.Emit(EventNavBlocked, map[string]any{
		"action":        action,
		"pending_index": pendingIndex,
	})
}

// EmitRedirect emits a redirect_enter, redirect_resolved or redirect_skipped event.
func (tw *Writer) EmitRedirect(eventType EventType, pendingIndex int, title string) error {
	data := map[string]any{"pending_index": pendingIndex}
	if title != "" {
		data["title"] = title
	}
	return tw.Emit(eventType, data)
}

// ReadEvents decodes a JSONL trace stream.
func ReadEvents(r io.Reader) ([]Event, error) {
	var events []Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("trace line %d: %w", line, err)
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return events, nil
}
