// Package quiz runs timed quiz attempts: a fixed ordered sequence of
// single-choice questions under a wall-clock limit, collected answers, and
// exactly one submission, whether the user clicks submit or the clock runs
// out first.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"schoolportal/internal/model"
)

// State is the lifecycle phase of an attempt.
type State string

const (
	StateInProgress State = "in_progress"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// Unanswered marks a question the student never answered.
const Unanswered = -1

var (
	// ErrNotInProgress is returned for mutations after the attempt left the
	// in-progress state.
	ErrNotInProgress = errors.New("quiz: attempt is not in progress")
	// ErrAlreadySubmitted is returned when submit races a prior submit. The
	// first caller owns the outcome; this error is benign for the loser.
	ErrAlreadySubmitted = errors.New("quiz: already submitted")
	// ErrDiscarded is returned once the attempt was torn down.
	ErrDiscarded = errors.New("quiz: attempt discarded")
)

// Clock abstracts time for the countdown so tests can drive it.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the cancellable handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is the wall-clock implementation used outside tests.
var SystemClock Clock = systemClock{}

// Submitter posts the full answer set and returns the server-graded result.
type Submitter func(ctx context.Context, quizID string, answers map[int]int) (model.QuizResult, error)

// Attempt is one student's run through a quiz.
type Attempt struct {
	mu sync.Mutex

	quiz    model.Quiz
	answers map[int]int
	current int

	clock     Clock
	deadline  time.Time
	timer     Timer
	remaining int // frozen at submit time

	state     State
	submitted bool
	discarded bool
	settledAt time.Time
	result    model.QuizResult
	submitErr error
	submit    Submitter
}

// NewAttempt starts an attempt: the countdown is initialized to the quiz's
// time limit and the auto-submit timer is armed. The quiz definition must
// already be loaded.
func NewAttempt(quiz model.Quiz, submit Submitter, clock Clock) *Attempt {
	if clock == nil {
		clock = SystemClock
	}
	limit := time.Duration(quiz.TimeLimitMinutes) * time.Minute
	a := &Attempt{
		quiz:     quiz,
		answers:  make(map[int]int, len(quiz.Questions)),
		clock:    clock,
		deadline: clock.Now().Add(limit),
		state:    StateInProgress,
		submit:   submit,
	}
	a.timer = clock.AfterFunc(limit, func() {
		// Timeout and manual submit converge on the same guarded transition.
		_, _ = a.Submit(context.Background())
	})
	return a
}

// Quiz returns the attempt's quiz definition.
func (a *Attempt) Quiz() model.Quiz { return a.quiz }

// State returns the current lifecycle phase.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Select records the answer for a question index, overwriting any prior
// answer; last write wins. Mutation is only allowed while in progress.
func (a *Attempt) Select(questionIdx, optionIdx int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.discarded {
		return ErrDiscarded
	}
	if a.state != StateInProgress {
		return ErrNotInProgress
	}
	if questionIdx < 0 || questionIdx >= len(a.quiz.Questions) {
		return fmt.Errorf("quiz: question index %d out of range", questionIdx)
	}
	if optionIdx < 0 || optionIdx >= len(a.quiz.Questions[questionIdx].Options) {
		return fmt.Errorf("quiz: option index %d out of range", optionIdx)
	}
	a.answers[questionIdx] = optionIdx
	return nil
}

// Goto changes the displayed question index without touching answers.
func (a *Attempt) Goto(questionIdx int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateInProgress {
		return ErrNotInProgress
	}
	if questionIdx < 0 || questionIdx >= len(a.quiz.Questions) {
		return fmt.Errorf("quiz: question index %d out of range", questionIdx)
	}
	a.current = questionIdx
	return nil
}

// Current returns the displayed question index.
func (a *Attempt) Current() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Answers returns a copy of the recorded answers.
func (a *Attempt) Answers() map[int]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int]int, len(a.answers))
	for k, v := range a.answers {
		out[k] = v
	}
	return out
}

// Remaining returns whole seconds left on the countdown. Once submitted the
// value is frozen; it never goes negative.
func (a *Attempt) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remainingLocked()
}

func (a *Attempt) remainingLocked() int {
	if a.submitted {
		return a.remaining
	}
	left := a.deadline.Sub(a.clock.Now())
	if left <= 0 {
		return 0
	}
	// Round up so the display does not show 0:00 while time remains.
	return int((left + time.Second - 1) / time.Second)
}

// FormatRemaining renders the countdown as minutes:seconds, seconds
// zero-padded.
func (a *Attempt) FormatRemaining() string {
	secs := a.Remaining()
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Submit posts the full answer set, keyed by question index with Unanswered
// for questions never answered. It is idempotency-guarded: whichever of the
// timeout handler and the user gets here first owns the submission, and any
// later call returns ErrAlreadySubmitted without touching answers, the
// countdown, or the network.
func (a *Attempt) Submit(ctx context.Context) (model.QuizResult, error) {
	a.mu.Lock()
	if a.discarded {
		a.mu.Unlock()
		return model.QuizResult{}, ErrDiscarded
	}
	if a.submitted {
		result, state, err := a.result, a.state, a.submitErr
		a.mu.Unlock()
		if state == StateCompleted {
			return result, nil
		}
		if state == StateError {
			return model.QuizResult{}, err
		}
		return model.QuizResult{}, ErrAlreadySubmitted
	}
	a.submitted = true
	a.state = StateSubmitting
	a.remaining = a.remainingFrozenLocked()
	if a.timer != nil {
		a.timer.Stop()
	}
	payload := make(map[int]int, len(a.quiz.Questions))
	for i := range a.quiz.Questions {
		if v, ok := a.answers[i]; ok {
			payload[i] = v
		} else {
			payload[i] = Unanswered
		}
	}
	a.mu.Unlock()

	result, err := a.submit(ctx, a.quiz.ID, payload)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.settledAt = a.clock.Now()
	if err != nil {
		a.state = StateError
		a.submitErr = err
		return model.QuizResult{}, err
	}
	a.state = StateCompleted
	a.result = result
	return result, nil
}

// SettledSince returns when the attempt reached a terminal state, or false
// while it is still in progress or submitting.
func (a *Attempt) SettledSince() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateCompleted && a.state != StateError {
		return time.Time{}, false
	}
	return a.settledAt, true
}

func (a *Attempt) remainingFrozenLocked() int {
	left := a.deadline.Sub(a.clock.Now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// Result returns the server-graded result once completed.
func (a *Attempt) Result() (model.QuizResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateCompleted {
		return model.QuizResult{}, false
	}
	return a.result, true
}

// Err returns the submission error once in the error state.
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateError {
		return nil
	}
	return a.submitErr
}

// Discard tears the attempt down: the timer is cancelled so a stray tick can
// never fire a late auto-submit.
func (a *Attempt) Discard() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.discarded = true
	if a.timer != nil {
		a.timer.Stop()
	}
}
