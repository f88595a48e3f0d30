package engine

import (
	"errors"
	"testing"

	"github.com/ormasoftchile/overlay/pkg/kernel/hostctx"
)

var (
	inSolid  = hostctx.Context{Workspace: "Design", Environment: "Solid", HasActiveDocument: true}
	inSketch = hostctx.Context{Workspace: "Design", Environment: "Sketch", HasActiveDocument: true, HasActiveSketch: true}
)

func newNavigator(t *testing.T, opts ...NavigatorOption) (*Navigator, *fixture) {
	t.Helper()
	f := newFixture(t)
	n := NewNavigator(f.m, opts...)
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return n, f
}

func TestNavigator_UnknownContextNavigates(t *testing.T) {
	n, f := newNavigator(t, WithGuidance(hostctx.GuidanceOn))
	if err := n.Next(); err != nil {
		t.Fatal(err)
	}
	if f.m.Mode() != ModeNormal || f.m.Index() != 1 {
		t.Errorf("mode=%s index=%d, want normal/1", f.m.Mode(), f.m.Index())
	}
}

func TestNavigator_GuidanceOn(t *testing.T) {
	n, f := newNavigator(t, WithGuidance(hostctx.GuidanceOn))
	n.UpdateContext(inSolid)

	if err := n.GoTo(1); err != nil {
		t.Fatal(err)
	}
	s := f.m.Snapshot()
	if s.Mode != ModeRedirecting || s.PendingIndex != 1 {
		t.Fatalf("snapshot = %+v", s)
	}
	if s.Step.Title != "Enter Sketch Mode" || s.Step.DetailedText != "Lines are drawn in a sketch" {
		t.Errorf("redirect step = %+v", s.Step)
	}

	// Navigation is held while the user switches.
	n.Next()
	if f.m.Mode() != ModeRedirecting {
		t.Error("Next escaped the redirect")
	}

	n.UpdateContext(inSketch)
	f.m.Settle()
	if s := f.m.Snapshot(); s.Mode != ModeNormal || s.Index != 1 {
		t.Errorf("after resolve: %+v", s)
	}
}

func TestNavigator_GuidanceAskAccept(t *testing.T) {
	n, f := newNavigator(t, WithGuidance(hostctx.GuidanceAsk))
	n.UpdateContext(inSolid)

	n.GoTo(1)
	if f.m.Index() != 0 || f.m.Mode() != ModeNormal {
		t.Fatalf("ASK navigated without an answer: index=%d mode=%s", f.m.Index(), f.m.Mode())
	}
	issue, ok := n.Pending()
	if !ok || issue.TargetIndex != 1 || len(issue.Mismatches) != 1 {
		t.Fatalf("pending = %+v, %v", issue, ok)
	}
	if _, ok := f.sink.Last(NoticeRedirectAsk); !ok {
		t.Error("no redirect/ask notice")
	}

	if err := n.Accept(); err != nil {
		t.Fatal(err)
	}
	if s := f.m.Snapshot(); s.Mode != ModeRedirecting || s.PendingIndex != 1 {
		t.Errorf("after accept: %+v", s)
	}
	if err := n.Accept(); !errors.Is(err, ErrNothingPending) {
		t.Errorf("second Accept = %v", err)
	}
}

func TestNavigator_GuidanceAskSkipWarns(t *testing.T) {
	n, f := newNavigator(t, WithGuidance(hostctx.GuidanceAsk))
	n.UpdateContext(inSolid)
	n.GoTo(1)

	if err := n.Skip(); err != nil {
		t.Fatal(err)
	}
	if f.m.Index() != 1 {
		t.Errorf("index = %d, want 1", f.m.Index())
	}
	w, ok := n.Warning()
	if !ok || w.Mismatches[0].Type != hostctx.MismatchEnvironment {
		t.Fatalf("warning = %+v, %v", w, ok)
	}

	n.UpdateContext(inSketch)
	if _, ok := n.Warning(); ok {
		t.Error("warning not cleared by matching context")
	}
	if _, ok := f.sink.Last(NoticeContextCleared); !ok {
		t.Error("no context/cleared notice")
	}
}

func TestNavigator_SkipActiveRedirect(t *testing.T) {
	n, f := newNavigator(t, WithGuidance(hostctx.GuidanceOn))
	n.UpdateContext(inSolid)
	n.GoTo(1)

	if err := n.Skip(); err != nil {
		t.Fatal(err)
	}
	s := f.m.Snapshot()
	if s.Mode != ModeNormal || s.Index != 1 {
		t.Errorf("after skip: %+v", s)
	}
	if _, ok := f.sink.Last(NoticeContextWarning); !ok {
		t.Error("skip without matching context should warn")
	}
	if err := n.Skip(); !errors.Is(err, ErrNothingPending) {
		t.Errorf("second Skip = %v", err)
	}
}

func TestNavigator_AskResolvedByContext(t *testing.T) {
	n, f := newNavigator(t, WithGuidance(hostctx.GuidanceAsk))
	n.UpdateContext(inSolid)
	n.GoTo(1)

	if err := n.UpdateContext(inSketch); err != nil {
		t.Fatal(err)
	}
	if f.m.Index() != 1 {
		t.Errorf("index = %d, want 1", f.m.Index())
	}
	if _, ok := n.Pending(); ok {
		t.Error("question still pending")
	}
}

func TestNavigator_GuidanceOff(t *testing.T) {
	tests := []struct {
		name       string
		warnings   bool
		wantNotice bool
	}{
		{"warnings shown", true, true},
		{"warnings hidden", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, f := newNavigator(t, WithGuidance(hostctx.GuidanceOff), WithWarnings(tt.warnings))
			n.UpdateContext(inSolid)

			if err := n.Next(); err != nil {
				t.Fatal(err)
			}
			if f.m.Index() != 1 || f.m.Mode() != ModeNormal {
				t.Errorf("index=%d mode=%s", f.m.Index(), f.m.Mode())
			}
			_, got := f.sink.Last(NoticeContextWarning)
			if got != tt.wantNotice {
				t.Errorf("context/warning notice = %v, want %v", got, tt.wantNotice)
			}
			if _, ok := n.Warning(); !ok {
				t.Error("warning should be recorded either way")
			}
		})
	}
}

func TestNavigator_MatchingContextClearsWarningOnNavigate(t *testing.T) {
	n, f := newNavigator(t, WithGuidance(hostctx.GuidanceOff))
	n.UpdateContext(inSolid)
	n.Next()
	n.Prev()

	if _, ok := n.Warning(); ok {
		t.Error("warning kept after navigating to a step without requirements")
	}
	if f.m.Index() != 0 {
		t.Errorf("index = %d", f.m.Index())
	}
}

func TestNavigator_ContextSetsActiveEnvironment(t *testing.T) {
	n, f := newNavigator(t)
	n.UpdateContext(inSketch)
	if got := f.m.Resolver().Active(); got != "sketch" {
		t.Errorf("active = %q, want sketch", got)
	}
	if n.Context().Environment != "Sketch" {
		t.Errorf("context = %+v", n.Context())
	}
}

func TestNavigator_OutOfRange(t *testing.T) {
	n, _ := newNavigator(t)
	if err := n.GoTo(9); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("GoTo(9) = %v", err)
	}
	if err := n.Prev(); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Prev at 0 = %v", err)
	}
}
