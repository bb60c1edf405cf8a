package quiz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"schoolportal/internal/model"
)

// fakeClock drives the countdown manually so tests never sleep.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	deadline time.Time
	f        func()
	stopped  bool
	fired    bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return !t.fired
}

// Advance moves the clock and fires any due, unstopped timers outside the
// clock lock, matching time.AfterFunc semantics.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !c.now.Before(t.deadline) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func testQuiz() model.Quiz {
	return model.Quiz{
		ID:               "quiz-1",
		Title:            "Fractions",
		TimeLimitMinutes: 1,
		Questions: []model.QuizQuestion{
			{Prompt: "1/2 + 1/4?", Options: []string{"3/4", "2/6", "1/8"}, PointValue: 5},
			{Prompt: "2/3 of 9?", Options: []string{"3", "6", "9"}, PointValue: 5},
			{Prompt: "1/5 as decimal?", Options: []string{"0.2", "0.5", "0.15"}, PointValue: 5},
		},
	}
}

// recordingSubmitter counts calls and captures the last payload.
type recordingSubmitter struct {
	mu      sync.Mutex
	calls   int
	answers map[int]int
	result  model.QuizResult
	err     error
}

func (s *recordingSubmitter) submit(_ context.Context, _ string, answers map[int]int) (model.QuizResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.answers = answers
	return s.result, s.err
}

func TestAutoSubmitOnTimeout(t *testing.T) {
	clock := newFakeClock()
	sub := &recordingSubmitter{result: model.QuizResult{Score: 0, TotalPoints: 15}}
	a := NewAttempt(testQuiz(), sub.submit, clock)

	clock.Advance(60 * time.Second)

	if got := a.State(); got != StateCompleted {
		t.Fatalf("state after timeout = %q, want %q", got, StateCompleted)
	}
	if sub.calls != 1 {
		t.Fatalf("submitter called %d times, want 1", sub.calls)
	}
	for i := 0; i < 3; i++ {
		if got := sub.answers[i]; got != Unanswered {
			t.Errorf("answer[%d] = %d, want Unanswered", i, got)
		}
	}
	if got := a.Remaining(); got != 0 {
		t.Errorf("Remaining after timeout = %d, want 0", got)
	}
}

func TestManualSubmitSendsAnswers(t *testing.T) {
	clock := newFakeClock()
	sub := &recordingSubmitter{result: model.QuizResult{Score: 10, TotalPoints: 15}}
	a := NewAttempt(testQuiz(), sub.submit, clock)

	if err := a.Select(0, 0); err != nil {
		t.Fatalf("Select(0, 0): %v", err)
	}
	if err := a.Select(2, 1); err != nil {
		t.Fatalf("Select(2, 1): %v", err)
	}

	result, err := a.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Score != 10 {
		t.Errorf("result score = %g, want 10", result.Score)
	}

	want := map[int]int{0: 0, 1: Unanswered, 2: 1}
	for i, w := range want {
		if got := sub.answers[i]; got != w {
			t.Errorf("answer[%d] = %d, want %d", i, got, w)
		}
	}

	// The timer was stopped; the deadline passing must not submit again.
	clock.Advance(2 * time.Minute)
	if sub.calls != 1 {
		t.Errorf("submitter called %d times after deadline, want 1", sub.calls)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	sub := &recordingSubmitter{result: model.QuizResult{Score: 5, TotalPoints: 15}}
	a := NewAttempt(testQuiz(), sub.submit, clock)

	first, err := a.Submit(context.Background())
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := a.Submit(context.Background())
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if first != second {
		t.Errorf("second Submit returned %+v, want the settled result %+v", second, first)
	}
	if sub.calls != 1 {
		t.Errorf("submitter called %d times, want 1", sub.calls)
	}
}

func TestSubmitErrorIsSticky(t *testing.T) {
	clock := newFakeClock()
	wantErr := errors.New("upstream down")
	sub := &recordingSubmitter{err: wantErr}
	a := NewAttempt(testQuiz(), sub.submit, clock)

	if _, err := a.Submit(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("Submit error = %v, want %v", err, wantErr)
	}
	if got := a.State(); got != StateError {
		t.Fatalf("state = %q, want %q", got, StateError)
	}
	if got := a.Err(); !errors.Is(got, wantErr) {
		t.Errorf("Err() = %v, want %v", got, wantErr)
	}

	// A retry does not reach the network again.
	if _, err := a.Submit(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("second Submit error = %v, want %v", err, wantErr)
	}
	if sub.calls != 1 {
		t.Errorf("submitter called %d times, want 1", sub.calls)
	}
}

func TestSelectRules(t *testing.T) {
	clock := newFakeClock()
	sub := &recordingSubmitter{}
	a := NewAttempt(testQuiz(), sub.submit, clock)

	// Last write wins.
	if err := a.Select(1, 0); err != nil {
		t.Fatalf("Select(1, 0): %v", err)
	}
	if err := a.Select(1, 2); err != nil {
		t.Fatalf("Select(1, 2): %v", err)
	}
	if got := a.Answers()[1]; got != 2 {
		t.Errorf("answer[1] = %d, want 2", got)
	}

	// Out-of-range indexes are rejected.
	if err := a.Select(-1, 0); err == nil {
		t.Error("Select(-1, 0) succeeded, want error")
	}
	if err := a.Select(3, 0); err == nil {
		t.Error("Select(3, 0) succeeded, want error")
	}
	if err := a.Select(0, 5); err == nil {
		t.Error("Select(0, 5) succeeded, want error")
	}

	// No mutation after submit.
	if _, err := a.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := a.Select(0, 0); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("Select after submit = %v, want ErrNotInProgress", err)
	}
	if err := a.Goto(2); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("Goto after submit = %v, want ErrNotInProgress", err)
	}
}

func TestRemainingCountsDown(t *testing.T) {
	clock := newFakeClock()
	sub := &recordingSubmitter{}
	a := NewAttempt(testQuiz(), sub.submit, clock)

	if got := a.FormatRemaining(); got != "1:00" {
		t.Errorf("FormatRemaining at start = %q, want \"1:00\"", got)
	}

	clock.Advance(25 * time.Second)
	if got := a.Remaining(); got != 35 {
		t.Errorf("Remaining after 25s = %d, want 35", got)
	}
	if got := a.FormatRemaining(); got != "0:35" {
		t.Errorf("FormatRemaining after 25s = %q, want \"0:35\"", got)
	}

	// Partial seconds round up so the display never shows 0:00 early.
	clock.Advance(34*time.Second + 500*time.Millisecond)
	if got := a.Remaining(); got != 1 {
		t.Errorf("Remaining with 500ms left = %d, want 1", got)
	}
}

func TestRemainingFrozenAfterSubmit(t *testing.T) {
	clock := newFakeClock()
	sub := &recordingSubmitter{}
	a := NewAttempt(testQuiz(), sub.submit, clock)

	clock.Advance(20 * time.Second)
	if _, err := a.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	frozen := a.Remaining()
	if frozen != 40 {
		t.Fatalf("Remaining at submit = %d, want 40", frozen)
	}
	clock.Advance(30 * time.Second)
	if got := a.Remaining(); got != frozen {
		t.Errorf("Remaining after submit moved to %d, want frozen %d", got, frozen)
	}
}

func TestDiscardCancelsAutoSubmit(t *testing.T) {
	clock := newFakeClock()
	sub := &recordingSubmitter{}
	a := NewAttempt(testQuiz(), sub.submit, clock)

	a.Discard()
	clock.Advance(2 * time.Minute)

	if sub.calls != 0 {
		t.Errorf("submitter called %d times after discard, want 0", sub.calls)
	}
	if _, err := a.Submit(context.Background()); !errors.Is(err, ErrDiscarded) {
		t.Errorf("Submit after discard = %v, want ErrDiscarded", err)
	}
}

func TestRegistryReplaceDiscardsPrevious(t *testing.T) {
	clock := newFakeClock()
	sub := &recordingSubmitter{}
	reg := NewRegistry()

	old := NewAttempt(testQuiz(), sub.submit, clock)
	reg.Put("sess-1", old)
	reg.Put("sess-1", NewAttempt(testQuiz(), sub.submit, clock))

	// The replaced attempt's timer must be dead.
	clock.Advance(2 * time.Minute)
	if _, err := old.Submit(context.Background()); !errors.Is(err, ErrDiscarded) {
		t.Errorf("replaced attempt Submit = %v, want ErrDiscarded", err)
	}

	reg.Discard("sess-1")
	if got := reg.Get("sess-1"); got != nil {
		t.Errorf("Get after Discard = %v, want nil", got)
	}
}

func TestSweepDropsSettledAttempts(t *testing.T) {
	clock := newFakeClock()
	sub := &recordingSubmitter{result: model.QuizResult{Score: 5, TotalPoints: 15}}
	reg := NewRegistry()

	settled := NewAttempt(testQuiz(), sub.submit, clock)
	if _, err := settled.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	reg.Put("sess-1", settled)

	active := NewAttempt(testQuiz(), sub.submit, clock)
	reg.Put("sess-2", active)

	clock.Advance(30 * time.Second)

	// Only attempts that settled before the cutoff go.
	if n := reg.Sweep(clock.Now()); n != 1 {
		t.Fatalf("Sweep removed %d attempts, want 1", n)
	}
	if reg.Get("sess-1") != nil {
		t.Error("settled attempt survived the sweep")
	}
	if reg.Get("sess-2") != active {
		t.Error("in-progress attempt was swept")
	}

	// An attempt settling after the cutoff stays until a later sweep.
	if _, ok := active.SettledSince(); ok {
		t.Fatal("active attempt reports settled")
	}
}
