package autosubmit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/greetline/autosubmit/backend/memauth"
)

type recordingNotifier struct {
	mu       sync.Mutex
	states   []SessionState
	admitted []string
	receipts []string
	lockouts []time.Duration
	warnings []string
}

func (n *recordingNotifier) OnStateChanged(s SessionState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, s)
}

func (n *recordingNotifier) OnAdmitted(username, receipt string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admitted = append(n.admitted, username)
	n.receipts = append(n.receipts, receipt)
}

func (n *recordingNotifier) OnLockedOut(remaining time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lockouts = append(n.lockouts, remaining)
}

func (n *recordingNotifier) OnBackendWarning(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, msg)
}

func (n *recordingNotifier) admittedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.admitted)
}

func (n *recordingNotifier) lockoutCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.lockouts)
}

func (n *recordingNotifier) warningCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.warnings)
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.ValidationDelay = 15 * time.Millisecond
	cfg.MinPasswordLength = 4
	cfg.MaxAttempts = 3
	cfg.LockoutTime = time.Minute
	cfg.Backend.CallTimeout = 2 * time.Second
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func buildEngine(t *testing.T, cfg Config, be *memauth.Mem, n Notifier) *Engine {
	t.Helper()
	e, err := New().
		WithConfig(cfg).
		WithBackend(be).
		WithNotifier(n).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func typeString(t *testing.T, e *Engine, s string) {
	t.Helper()
	for _, r := range s {
		if _, err := e.HandleKey(KeyEvent{Rune: r}); err != nil {
			t.Fatalf("HandleKey(%q): %v", r, err)
		}
	}
}

func waitForState(t *testing.T, e *Engine, want SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %v after 2s, want %v", e.State(), want)
}

func waitForMetric(t *testing.T, e *Engine, id MetricID, want uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Metrics().Value(id) >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("metric %d = %d after 2s, want >= %d", id, e.Metrics().Value(id), want)
}

func TestShortBufferNeverValidates(t *testing.T) {
	be := memauth.New(map[string]string{"alice": "abc"})
	e := buildEngine(t, testConfig(), be, &recordingNotifier{})

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	typeString(t, e, "abc")

	time.Sleep(80 * time.Millisecond)

	if got := be.BegunConversations(); got != 0 {
		t.Fatalf("backend saw %d conversations for a 3-char buffer, want 0", got)
	}
	if e.State() != StateAwaitingDebounce {
		t.Fatalf("state = %v, want awaiting_debounce", e.State())
	}
}

func TestTypingAdmitsWithoutExplicitSubmit(t *testing.T) {
	be := memauth.New(map[string]string{"alice": "hunter22"})
	n := &recordingNotifier{}
	e := buildEngine(t, testConfig(), be, n)

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	typeString(t, e, "hunter22")

	waitForState(t, e, StateAdmitted)

	if got := n.admittedCount(); got != 1 {
		t.Fatalf("OnAdmitted called %d times, want 1", got)
	}
	if snap := e.Buffer(); snap.Length != 0 {
		t.Fatalf("buffer length = %d after admission, want 0 (wiped)", snap.Length)
	}
	if got := e.Metrics().Value(MetricSessionAdmitted); got != 1 {
		t.Fatalf("session_admitted = %d, want 1", got)
	}
}

func TestAdmittedIsTerminal(t *testing.T) {
	be := memauth.New(map[string]string{"alice": "hunter22"})
	n := &recordingNotifier{}
	e := buildEngine(t, testConfig(), be, n)

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	typeString(t, e, "hunter22")
	waitForState(t, e, StateAdmitted)

	// Further keys and submits are ignored after admission.
	typeString(t, e, "more")
	if err := e.Submit(); err != nil {
		t.Fatalf("Submit after admission: %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	if got := n.admittedCount(); got != 1 {
		t.Fatalf("OnAdmitted called %d times, want exactly 1", got)
	}
	if e.State() != StateAdmitted {
		t.Fatalf("state = %v, want admitted", e.State())
	}
}

func TestDebounceRestartsOnEveryEdit(t *testing.T) {
	cfg := testConfig()
	cfg.ValidationDelay = 60 * time.Millisecond
	be := memauth.New(map[string]string{"alice": "hunter22"})
	e := buildEngine(t, cfg, be, &recordingNotifier{})

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}

	// Keep typing faster than the debounce window; nothing may fire.
	for _, r := range "hunter2" {
		if _, err := e.HandleKey(KeyEvent{Rune: r}); err != nil {
			t.Fatalf("HandleKey: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := be.BegunConversations(); got != 0 {
		t.Fatalf("backend saw %d conversations mid-typing, want 0", got)
	}

	// Final character, then quiet: exactly one validation.
	if _, err := e.HandleKey(KeyEvent{Rune: '2'}); err != nil {
		t.Fatalf("HandleKey: %v", err)
	}
	waitForState(t, e, StateAdmitted)
	if got := be.BegunConversations(); got != 1 {
		t.Fatalf("backend saw %d conversations, want 1", got)
	}
}

func TestStaleOutcomeDiscardedAndLatestWins(t *testing.T) {
	cfg := testConfig()
	be := memauth.New(map[string]string{"alice": "hunter22"},
		memauth.WithLatency(50*time.Millisecond))
	n := &recordingNotifier{}
	e := buildEngine(t, cfg, be, n)

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}

	// A wrong prefix goes in flight, then the user finishes typing the
	// real password while the backend is still checking the prefix.
	typeString(t, e, "hunter")
	waitForState(t, e, StateValidating)
	typeString(t, e, "22")

	waitForState(t, e, StateAdmitted)

	if got := e.Metrics().Value(MetricStaleOutcomeDiscarded); got == 0 {
		t.Fatal("expected at least one stale outcome discard")
	}
	if got := n.admittedCount(); got != 1 {
		t.Fatalf("OnAdmitted called %d times, want 1", got)
	}
	// The stale rejection for "hunter" must not have counted.
	if got := e.Metrics().Value(MetricValidationRejected); got != 0 {
		t.Fatalf("validation_rejected = %d, want 0 (stale outcomes carry no verdict)", got)
	}
}

func TestRejectionKeepsBufferForFurtherTyping(t *testing.T) {
	be := memauth.New(map[string]string{"alice": "wron12345"})
	e := buildEngine(t, testConfig(), be, &recordingNotifier{})

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	typeString(t, e, "wron1")

	waitForMetric(t, e, MetricValidationRejected, 1)
	waitForState(t, e, StateAwaitingDebounce)

	// The wrong guess survives the rejection; finishing the word admits.
	if snap := e.Buffer(); snap.Length != 5 {
		t.Fatalf("buffer length = %d after rejection, want 5", snap.Length)
	}
	typeString(t, e, "2345")
	waitForState(t, e, StateAdmitted)
}

func TestSlowTypingOfCorrectPasswordAdmits(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 100
	be := memauth.New(map[string]string{"alice": "correct1"})
	n := &recordingNotifier{}
	e := buildEngine(t, cfg, be, n)

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}

	// Every pause exceeds the debounce window, so intermediate prefixes
	// of the correct password get validated and rejected along the way.
	for _, r := range "correct1" {
		if _, err := e.HandleKey(KeyEvent{Rune: r}); err != nil {
			t.Fatalf("HandleKey(%q): %v", r, err)
		}
		time.Sleep(60 * time.Millisecond)
	}

	waitForState(t, e, StateAdmitted)
	if got := n.admittedCount(); got != 1 {
		t.Fatalf("OnAdmitted called %d times, want 1", got)
	}

	// Prefix rejections are counted per validation, never per keystroke.
	rejected := e.Metrics().Value(MetricValidationRejected)
	if rejected == 0 {
		t.Fatal("expected rejected prefixes before admission")
	}
	if rejected >= 8 {
		t.Fatalf("validation_rejected = %d for 8 keystrokes, want fewer validations than edits", rejected)
	}
	if got := e.Lockout().ConsecutiveFailures; got != 0 {
		t.Fatalf("consecutive failures = %d after admission, want 0", got)
	}
}

func TestLockoutAfterExactlyMaxAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 3
	be := memauth.New(map[string]string{"alice": "correct1"})
	n := &recordingNotifier{}
	e := buildEngine(t, cfg, be, n)

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}

	for i := 1; i <= 3; i++ {
		typeString(t, e, "wrong999")
		waitForMetric(t, e, MetricValidationRejected, uint64(i))
	}

	waitForState(t, e, StateLockedOut)
	if got := e.Metrics().Value(MetricLockoutEngaged); got != 1 {
		t.Fatalf("lockout_engaged = %d, want 1", got)
	}
	if n.lockoutCount() == 0 {
		t.Fatal("OnLockedOut never called")
	}

	// Two failures must not have engaged it early.
	if got := e.Metrics().Value(MetricValidationRejected); got != 3 {
		t.Fatalf("validation_rejected = %d, want 3", got)
	}
}

func TestSubmitDuringLockoutRefused(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1
	be := memauth.New(map[string]string{"alice": "correct1"})
	e := buildEngine(t, cfg, be, &recordingNotifier{})

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	typeString(t, e, "wrong999")
	waitForState(t, e, StateLockedOut)

	typeString(t, e, "correct1")
	if err := e.Submit(); !errors.Is(err, ErrLockoutActive) {
		t.Fatalf("Submit during lockout = %v, want ErrLockoutActive", err)
	}
	if got := be.BegunConversations(); got != 1 {
		t.Fatalf("backend saw %d conversations, want only the pre-lockout one", got)
	}
}

func TestLockoutExpiryAllowsValidationAgain(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.LockoutTime = 40 * time.Millisecond
	be := memauth.New(map[string]string{"alice": "correct1"})
	n := &recordingNotifier{}
	e := buildEngine(t, cfg, be, n)

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	typeString(t, e, "wrong999")
	waitForState(t, e, StateLockedOut)

	time.Sleep(60 * time.Millisecond)

	typeString(t, e, "correct1")
	waitForState(t, e, StateAdmitted)
	if got := n.admittedCount(); got != 1 {
		t.Fatalf("OnAdmitted called %d times, want 1", got)
	}
}

func TestBackendUnavailableDoesNotCountTowardLockout(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1
	be := memauth.New(map[string]string{"alice": "correct1"})
	n := &recordingNotifier{}
	e := buildEngine(t, cfg, be, n)

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}

	be.FailNext(1)
	typeString(t, e, "correct1")
	waitForMetric(t, e, MetricBackendUnavailable, 1)

	if n.warningCount() == 0 {
		t.Fatal("OnBackendWarning never called")
	}
	if e.State() == StateLockedOut {
		t.Fatal("backend unavailability engaged lockout")
	}
	if got := e.Lockout().ConsecutiveFailures; got != 0 {
		t.Fatalf("consecutive failures = %d, want 0", got)
	}

	// The buffer survived; an explicit retry succeeds.
	if err := e.Submit(); err != nil {
		t.Fatalf("Submit after backend recovery: %v", err)
	}
	waitForState(t, e, StateAdmitted)
}

func TestCancelDiscardsInFlightOutcome(t *testing.T) {
	be := memauth.New(map[string]string{"alice": "hunter22"},
		memauth.WithLatency(50*time.Millisecond))
	n := &recordingNotifier{}
	e := buildEngine(t, testConfig(), be, n)

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	typeString(t, e, "hunter22")
	waitForState(t, e, StateValidating)

	if err := e.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if snap := e.Buffer(); snap.Length != 0 {
		t.Fatalf("buffer length = %d after Cancel, want 0", snap.Length)
	}

	waitForMetric(t, e, MetricStaleOutcomeDiscarded, 1)
	time.Sleep(20 * time.Millisecond)

	// The accepted outcome for the cancelled attempt must not admit.
	if got := n.admittedCount(); got != 0 {
		t.Fatalf("OnAdmitted called %d times after Cancel, want 0", got)
	}
	if e.State() == StateAdmitted {
		t.Fatal("cancelled attempt still admitted")
	}
}

func TestSubmitBypassesMinLength(t *testing.T) {
	cfg := testConfig()
	cfg.MinPasswordLength = 8
	be := memauth.New(map[string]string{"alice": "pin"})
	e := buildEngine(t, cfg, be, &recordingNotifier{})

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	typeString(t, e, "pin")

	// Below the auto-submit floor, but an explicit submit still goes out.
	if err := e.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForState(t, e, StateAdmitted)
}

func TestSubmitPreconditions(t *testing.T) {
	be := memauth.New(map[string]string{"alice": "hunter22"})
	e := buildEngine(t, testConfig(), be, &recordingNotifier{})

	if err := e.Submit(); !errors.Is(err, ErrNoUserSelected) {
		t.Fatalf("Submit without user = %v, want ErrNoUserSelected", err)
	}
	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	if err := e.Submit(); !errors.Is(err, ErrBufferEmpty) {
		t.Fatalf("Submit with empty buffer = %v, want ErrBufferEmpty", err)
	}
}

func TestAutoSubmitDisabledOnlyValidatesExplicitly(t *testing.T) {
	cfg := testConfig()
	cfg.AutoSubmit = false
	be := memauth.New(map[string]string{"alice": "hunter22"})
	e := buildEngine(t, cfg, be, &recordingNotifier{})

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	typeString(t, e, "hunter22")

	time.Sleep(80 * time.Millisecond)
	if got := be.BegunConversations(); got != 0 {
		t.Fatalf("backend saw %d conversations with auto-submit off, want 0", got)
	}

	if err := e.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForState(t, e, StateAdmitted)
}

func TestSelectUserResetsFailuresButNotWindow(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2
	be := memauth.New(map[string]string{"alice": "correct1", "bob": "correct2"})
	e := buildEngine(t, cfg, be, &recordingNotifier{})

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	typeString(t, e, "wrong999")
	waitForMetric(t, e, MetricValidationRejected, 1)

	// Switching users wipes the counter: bob gets a full allowance.
	if err := e.SelectUser("bob"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	if got := e.Lockout().ConsecutiveFailures; got != 0 {
		t.Fatalf("consecutive failures after user switch = %d, want 0", got)
	}

	typeString(t, e, "correct2")
	waitForState(t, e, StateAdmitted)
}

func TestBackspaceEditsCountAsGenerations(t *testing.T) {
	be := memauth.New(map[string]string{"alice": "hunter22"})
	e := buildEngine(t, testConfig(), be, &recordingNotifier{})

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}

	snap, err := e.HandleKey(KeyEvent{Rune: 'a'})
	if err != nil {
		t.Fatalf("HandleKey: %v", err)
	}
	gen := snap.Generation

	snap, err = e.HandleKey(KeyEvent{Backspace: true})
	if err != nil {
		t.Fatalf("HandleKey backspace: %v", err)
	}
	if snap.Generation <= gen {
		t.Fatalf("backspace generation = %d, want > %d", snap.Generation, gen)
	}
	if snap.Length != 0 {
		t.Fatalf("length = %d, want 0", snap.Length)
	}

	// Backspace on empty is a no-op.
	snap2, err := e.HandleKey(KeyEvent{Backspace: true})
	if err != nil {
		t.Fatalf("HandleKey backspace on empty: %v", err)
	}
	if snap2.Generation != snap.Generation {
		t.Fatalf("empty backspace changed generation %d -> %d", snap.Generation, snap2.Generation)
	}
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	be := memauth.New(map[string]string{"alice": "hunter22"})
	e := buildEngine(t, testConfig(), be, &recordingNotifier{})

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := e.HandleKey(KeyEvent{Rune: 'a'}); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("HandleKey after Close = %v, want ErrEngineClosed", err)
	}
	if err := e.Submit(); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("Submit after Close = %v, want ErrEngineClosed", err)
	}
	if err := e.SelectUser("bob"); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("SelectUser after Close = %v, want ErrEngineClosed", err)
	}
}

func TestReceiptIssuedOnAdmission(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	be := memauth.New(map[string]string{"alice": "hunter22"})
	n := &recordingNotifier{}
	e, err := New().
		WithConfig(testConfig()).
		WithBackend(be).
		WithNotifier(n).
		WithReceiptKey(key).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer func() { _ = e.Close() }()

	if err := e.SelectUser("alice"); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	typeString(t, e, "hunter22")
	waitForState(t, e, StateAdmitted)

	n.mu.Lock()
	receipt := n.receipts[0]
	n.mu.Unlock()

	if receipt == "" {
		t.Fatal("empty receipt on admission with receipts enabled")
	}
	claims, err := ParseReceipt(key, receipt)
	if err != nil {
		t.Fatalf("ParseReceipt: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("receipt subject = %q, want alice", claims.Subject)
	}
	if got := e.Metrics().Value(MetricReceiptIssued); got != 1 {
		t.Fatalf("receipt_issued = %d, want 1", got)
	}
}
