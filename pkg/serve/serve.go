// Package serve implements the JSON-RPC bridge between a host add-in and
// the overlay engine. It communicates over stdio (stdin/stdout) using
// newline-delimited JSON messages; diagnostics go to the logger.
package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ormasoftchile/overlay/pkg/kernel/animate"
	"github.com/ormasoftchile/overlay/pkg/kernel/completion"
	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	"github.com/ormasoftchile/overlay/pkg/kernel/eval"
	"github.com/ormasoftchile/overlay/pkg/kernel/hostctx"
	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/resolve"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
	"github.com/ormasoftchile/overlay/pkg/kernel/trace"
	"github.com/ormasoftchile/overlay/pkg/kernel/validate"
	"github.com/ormasoftchile/overlay/pkg/prefs"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeNoSession      = -32000
	CodeNothingPending = -32001
	CodeOutOfRange     = -32002
)

// Message is a JSON-RPC 2.0 message (request, response or notification).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int            `json:"id,omitempty"` // nil for notifications
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// LoadTutorialParams are the parameters for tutorial/load. Either Path or
// an inline Tutorial is required.
type LoadTutorialParams struct {
	Path     string           `json:"path,omitempty"`
	Tutorial *schema.Tutorial `json:"tutorial,omitempty"`
	Resume   bool             `json:"resume,omitempty"`
}

// LoadRegistryParams are the parameters for registry/load.
type LoadRegistryParams struct {
	Path string `json:"path"`
}

// GoToParams are the parameters for nav/goTo.
type GoToParams struct {
	Index int `json:"index"`
}

// ConsentParams are the parameters for consent/set.
type ConsentParams struct {
	Mode         string `json:"mode"`
	ShowWarnings *bool  `json:"showWarnings,omitempty"`
}

// ResolveParams are the parameters for target/resolve. An empty
// Environment uses the session's active one.
type ResolveParams struct {
	Path        string `json:"path"`
	Environment string `json:"environment,omitempty"`
}

// QCParams are the parameters for qc/check. Without Conditions the
// current step's qcChecks are evaluated.
type QCParams struct {
	Conditions []schema.QCCheck `json:"conditions,omitempty"`
	State      eval.DesignState `json:"state"`
}

// NavResult is returned by navigation methods.
type NavResult struct {
	Index        int         `json:"index"`
	Total        int         `json:"total"`
	Mode         engine.Mode `json:"mode"`
	PendingIndex int         `json:"pendingIndex"`
}

// LoadResult is returned by tutorial/load.
type LoadResult struct {
	SessionID  string                      `json:"sessionId"`
	TutorialID string                      `json:"tutorialId"`
	Title      string                      `json:"title"`
	Steps      int                         `json:"steps"`
	Index      int                         `json:"index"`
	Warnings   []*validate.ValidationError `json:"warnings,omitempty"`
}

// Config tunes a Server.
type Config struct {
	// Registry is used until registry/load replaces it.
	Registry *registry.Registry
	// Prefs supplies and records the guidance consent.
	Prefs *prefs.Store
	// TraceDir, when set, receives one JSONL trace per session.
	TraceDir string
	// StateDir, when set, persists step progress for resume.
	StateDir string
	// Sleeper and Speed control animation timing.
	Sleeper animate.Sleeper
	Speed   float64
	// ResolveDelay overrides the redirect success delay when positive.
	ResolveDelay time.Duration
}

// Server is the JSON-RPC server that wraps the overlay engine.
type Server struct {
	reader io.Reader
	writer io.Writer
	wmu    sync.Mutex // serializes writes
	logger *zap.Logger
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex // guards the session fields below
	reg  *registry.Registry
	sess *session
}

// session is one loaded tutorial.
type session struct {
	id       string
	path     string
	tutorial *schema.Tutorial
	machine  *engine.Machine
	nav      *engine.Navigator
	trace    *trace.Writer
}

// Option configures a Server.
type Option func(*Server)

// WithIO sets the transport streams. The defaults are stdin and stdout.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(s *Server) {
		s.reader = r
		s.writer = w
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConfig sets the server configuration.
func WithConfig(cfg Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

// New creates a new server reading from stdin and writing to stdout.
func New(opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		reader: os.Stdin,
		writer: os.Stdout,
		logger: zap.NewNop(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(s)
	}
	if s.cfg.Prefs == nil {
		s.cfg.Prefs, _ = prefs.Open("")
	}
	s.reg = s.cfg.Registry
	if s.reg == nil {
		s.reg = registry.New()
	}
	return s
}

// Run reads messages until EOF or shutdown and dispatches them in order.
func (s *Server) Run() error {
	defer s.cancel()
	defer s.closeSession()

	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.sendError(nil, CodeParseError, fmt.Sprintf("parse error: %v", err))
			continue
		}

		s.dispatch(&msg)
		if s.ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

// dispatch routes a message to the appropriate handler.
func (s *Server) dispatch(msg *Message) {
	s.logger.Debug("request", zap.String("method", msg.Method))
	switch msg.Method {
	case "tutorial/load":
		s.handleLoadTutorial(msg)
	case "registry/load":
		s.handleLoadRegistry(msg)
	case "nav/next":
		s.handleNav(msg, (*engine.Navigator).Next)
	case "nav/prev":
		s.handleNav(msg, (*engine.Navigator).Prev)
	case "nav/goTo":
		var p GoToParams
		if !s.decode(msg, &p) {
			return
		}
		s.handleNav(msg, func(n *engine.Navigator) error { return n.GoTo(p.Index) })
	case "nav/replay":
		s.handleNav(msg, func(n *engine.Navigator) error { n.Replay(); return nil })
	case "host/completion":
		s.handleCompletion(msg)
	case "host/context":
		s.handleContext(msg)
	case "redirect/accept":
		s.handleNav(msg, (*engine.Navigator).Accept)
	case "redirect/skip":
		s.handleNav(msg, (*engine.Navigator).Skip)
	case "consent/get":
		s.sendResult(msg.ID, s.cfg.Prefs.Get())
	case "consent/set":
		s.handleConsent(msg)
	case "target/resolve":
		s.handleResolve(msg)
	case "qc/check":
		s.handleQC(msg)
	case "state/get":
		s.withSession(msg, func(ss *session) {
			s.sendResult(msg.ID, ss.machine.Snapshot())
		})
	case "shutdown":
		s.cancel()
		s.sendResult(msg.ID, map[string]string{"status": "shutting down"})
	default:
		s.sendError(msg.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", msg.Method))
	}
}

func (s *Server) handleLoadTutorial(msg *Message) {
	var p LoadTutorialParams
	if !s.decode(msg, &p) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	opts := validate.Options{Registry: s.reg}
	var (
		t    *schema.Tutorial
		errs []*validate.ValidationError
	)
	switch {
	case p.Path != "":
		t, errs = validate.ValidateFile(p.Path, opts)
	case p.Tutorial != nil:
		t = p.Tutorial
		errs = validate.ValidateTutorial(t, opts)
	default:
		s.sendError(msg.ID, CodeInvalidParams, "tutorial/load needs path or tutorial")
		return
	}
	fatal, warnings := validate.Split(errs)
	if len(fatal) > 0 {
		s.sendError(msg.ID, CodeInvalidParams, fmt.Sprintf("invalid tutorial: %s", fatal[0]))
		return
	}

	start := 0
	if p.Resume {
		start = s.resumeIndex(t)
	}
	if err := s.startSessionLocked(t, p.Path, start); err != nil {
		s.sendError(msg.ID, CodeInternal, err.Error())
		return
	}
	s.sendResult(msg.ID, LoadResult{
		SessionID:  s.sess.id,
		TutorialID: t.TutorialID,
		Title:      t.Title,
		Steps:      len(t.Steps),
		Index:      s.sess.machine.Index(),
		Warnings:   warnings,
	})
}

func (s *Server) handleLoadRegistry(msg *Message) {
	var p LoadRegistryParams
	if !s.decode(msg, &p) {
		return
	}
	doc, errs := validate.ValidateRegistryFile(p.Path)
	if fatal, _ := validate.Split(errs); len(fatal) > 0 {
		s.sendError(msg.ID, CodeInvalidParams, fmt.Sprintf("invalid registry: %s", fatal[0]))
		return
	}
	reg, err := registry.FromDocument(doc)
	if err != nil {
		s.sendError(msg.ID, CodeInvalidParams, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg = reg
	s.logger.Info("registry loaded", zap.String("path", p.Path), zap.Int("components", reg.Len()))

	// A running session is rebuilt over the new registry at the same step.
	if s.sess != nil {
		old := s.sess
		if err := s.startSessionLocked(old.tutorial, old.path, old.machine.Index()); err != nil {
			s.sendError(msg.ID, CodeInternal, err.Error())
			return
		}
	}
	s.sendResult(msg.ID, map[string]any{
		"environments": reg.EnvironmentNames(),
		"components":   reg.Len(),
	})
}

func (s *Server) handleNav(msg *Message, fn func(*engine.Navigator) error) {
	s.withSession(msg, func(ss *session) {
		if err := fn(ss.nav); err != nil {
			s.sendError(msg.ID, errorCode(err), err.Error())
			return
		}
		s.saveProgress(ss)
		st := ss.machine.Snapshot()
		s.sendResult(msg.ID, NavResult{
			Index:        st.Index,
			Total:        st.Total,
			Mode:         st.Mode,
			PendingIndex: st.PendingIndex,
		})
	})
}

func (s *Server) handleCompletion(msg *Message) {
	var ev completion.Event
	if !s.decode(msg, &ev) {
		return
	}
	if ev.SemanticType == "" {
		s.sendError(msg.ID, CodeInvalidParams, "semanticType is required")
		return
	}
	s.withSession(msg, func(ss *session) {
		ts := ss.nav.Completion(ev)
		if ts == nil {
			ts = []completion.Transition{}
		}
		s.sendResult(msg.ID, map[string]any{"transitions": ts})
	})
}

func (s *Server) handleContext(msg *Message) {
	var c hostctx.Context
	if !s.decode(msg, &c) {
		return
	}
	s.withSession(msg, func(ss *session) {
		if err := ss.nav.UpdateContext(c); err != nil {
			s.sendError(msg.ID, errorCode(err), err.Error())
			return
		}
		s.sendResult(msg.ID, map[string]any{"mode": ss.machine.Mode()})
	})
}

func (s *Server) handleConsent(msg *Message) {
	var p ConsentParams
	if !s.decode(msg, &p) {
		return
	}
	g, err := hostctx.ParseGuidance(p.Mode)
	if err != nil {
		s.sendError(msg.ID, CodeInvalidParams, err.Error())
		return
	}
	if err := s.cfg.Prefs.SetGuidance(g); err != nil {
		s.sendError(msg.ID, CodeInternal, err.Error())
		return
	}
	if p.ShowWarnings != nil {
		if err := s.cfg.Prefs.SetShowWarnings(*p.ShowWarnings); err != nil {
			s.sendError(msg.ID, CodeInternal, err.Error())
			return
		}
	}

	s.mu.Lock()
	if s.sess != nil {
		s.sess.nav.SetGuidance(g)
		if p.ShowWarnings != nil {
			s.sess.nav.SetWarnings(*p.ShowWarnings)
		}
	}
	s.mu.Unlock()
	s.logger.Info("guidance changed", zap.String("mode", string(g)))
	s.sendResult(msg.ID, s.cfg.Prefs.Get())
}

func (s *Server) handleResolve(msg *Message) {
	var p ResolveParams
	if !s.decode(msg, &p) {
		return
	}
	s.mu.Lock()
	res := resolve.New(s.reg, resolve.WithLogger(s.logger))
	switch {
	case p.Environment != "":
		res.SetActive(p.Environment)
	case s.sess != nil:
		res.SetActive(s.sess.machine.Resolver().Active())
	}
	s.mu.Unlock()

	t, ok := res.Resolve(p.Path)
	result := map[string]any{"resolved": ok, "environment": res.Active()}
	if ok {
		result["target"] = t
	}
	s.sendResult(msg.ID, result)
}

func (s *Server) handleQC(msg *Message) {
	var p QCParams
	if !s.decode(msg, &p) {
		return
	}
	checks := p.Conditions
	var tw *trace.Writer
	if checks == nil {
		s.mu.Lock()
		if s.sess != nil {
			checks = s.sess.machine.Snapshot().Step.QCChecks
			tw = s.sess.trace
		}
		s.mu.Unlock()
	}
	results := eval.CheckAll(checks, p.State)
	passed := eval.Passed(results)
	tw.Emit(trace.EventQCChecked, map[string]any{"checks": len(results), "passed": passed})
	s.sendResult(msg.ID, map[string]any{"results": results, "passed": passed})
}

// startSessionLocked replaces the running session with one over t and
// loads step start. Caller holds s.mu.
func (s *Server) startSessionLocked(t *schema.Tutorial, path string, start int) error {
	s.closeSessionLocked()

	id := uuid.NewString()
	logger := s.logger.With(zap.String("session", id))
	tw, err := s.openTrace(id)
	if err != nil {
		return err
	}

	opts := []engine.Option{
		engine.WithSink(&rpcSink{s: s}),
		engine.WithTrace(tw),
		engine.WithLogger(logger),
	}
	if s.cfg.Sleeper != nil {
		opts = append(opts, engine.WithSleeper(s.cfg.Sleeper))
	}
	if s.cfg.Speed > 0 {
		opts = append(opts, engine.WithSpeed(s.cfg.Speed))
	}
	if s.cfg.ResolveDelay > 0 {
		opts = append(opts, engine.WithResolveDelay(s.cfg.ResolveDelay))
	}
	res := resolve.New(s.reg, resolve.WithLogger(logger))
	m := engine.New(engine.TutorialSource{Tutorial: t}, res, &rpcSurface{s: s, reg: s.reg}, opts...)

	p := s.cfg.Prefs.Get()
	nav := engine.NewNavigator(m, engine.WithGuidance(p.Guidance), engine.WithWarnings(p.ShowWarnings))
	ss := &session{id: id, path: path, tutorial: t, machine: m, nav: nav, trace: tw}
	s.sess = ss

	if err := nav.Start(); err != nil {
		s.closeSessionLocked()
		return fmt.Errorf("start tutorial: %w", err)
	}
	if start > 0 && start < len(t.Steps) {
		if err := nav.GoTo(start); err != nil {
			logger.Warn("resume failed", zap.Int("index", start), zap.Error(err))
		}
	}
	logger.Info("session started",
		zap.String("tutorial", t.TutorialID),
		zap.Int("steps", len(t.Steps)),
		zap.Int("index", start))
	return nil
}

func (s *Server) openTrace(id string) (*trace.Writer, error) {
	if s.cfg.TraceDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(s.cfg.TraceDir, 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	return trace.NewFileWriter(filepath.Join(s.cfg.TraceDir, id+".jsonl"), id)
}

func (s *Server) closeSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSessionLocked()
}

func (s *Server) closeSessionLocked() {
	if s.sess == nil {
		return
	}
	s.sess.machine.Close()
	s.sess.trace.EmitSessionEnd(s.sess.machine.Index())
	if err := s.sess.trace.Close(); err != nil {
		s.logger.Warn("close trace", zap.Error(err))
	}
	s.sess = nil
}

func (s *Server) withSession(msg *Message, fn func(*session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		s.sendError(msg.ID, CodeNoSession, "no tutorial loaded")
		return
	}
	fn(s.sess)
}

func (s *Server) decode(msg *Message, v any) bool {
	if len(msg.Params) == 0 {
		return true
	}
	if err := json.Unmarshal(msg.Params, v); err != nil {
		s.sendError(msg.ID, CodeInvalidParams, fmt.Sprintf("invalid params: %v", err))
		return false
	}
	return true
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, engine.ErrOutOfRange):
		return CodeOutOfRange
	case errors.Is(err, engine.ErrNothingPending):
		return CodeNothingPending
	case errors.Is(err, engine.ErrNoTutorial):
		return CodeNoSession
	}
	return CodeInternal
}

// --- Message sending ---

func (s *Server) sendResult(id *int, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		s.sendError(id, CodeInternal, fmt.Sprintf("marshal result: %v", err))
		return
	}
	s.send(&Message{JSONRPC: "2.0", ID: id, Result: data})
}

func (s *Server) sendError(id *int, code int, message string) {
	s.logger.Debug("error response", zap.Int("code", code), zap.String("message", message))
	s.send(&Message{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	})
}

func (s *Server) sendEvent(method string, params any) {
	data, err := json.Marshal(params)
	if err != nil {
		s.logger.Warn("marshal event", zap.String("method", method), zap.Error(err))
		return
	}
	s.send(&Message{JSONRPC: "2.0", Method: method, Params: data})
}

func (s *Server) send(msg *Message) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("marshal message", zap.Error(err))
		return
	}
	if _, err := fmt.Fprintf(s.writer, "%s\n", data); err != nil {
		s.logger.Warn("write message", zap.Error(err))
	}
}
