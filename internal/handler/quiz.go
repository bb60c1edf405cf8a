package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"schoolportal/internal/handler/views"
	appI18n "schoolportal/internal/i18n"
	"schoolportal/internal/model"
	"schoolportal/internal/quiz"
)

func (h *Handler) handleQuizListPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	quizzes, err := sess.API().ListQuizzes(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}

	rows := make([][]string, 0, len(quizzes))
	for _, q := range quizzes {
		deadline := ""
		if q.Deadline != nil {
			deadline = q.Deadline.Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			q.Title,
			q.SubjectName,
			strconv.Itoa(q.QuestionCount),
			fmt.Sprintf("%d min", q.TimeLimitMinutes),
			deadline,
		})
	}
	h.render(w, r, views.ListPage("Quizzes", []string{"Title", "Subject", "Questions", "Time limit", "Deadline"}, rows))
}

// handleStartQuiz loads the quiz definition and opens a fresh attempt. The
// countdown starts here, not when the first question renders.
func (h *Handler) handleStartQuiz(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	quizID := chi.URLParam(r, "quizID")

	q, err := sess.API().GetQuiz(r.Context(), quizID)
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	if len(q.Questions) == 0 {
		h.render(w, r, views.ErrorPage(appI18n.T(r.Context(), "NoActiveQuiz")))
		return
	}

	client := sess.API()
	submit := func(ctx context.Context, quizID string, answers map[int]int) (model.QuizResult, error) {
		return client.SubmitQuiz(ctx, quizID, answers)
	}
	h.attempts.Put(sess.ID(), quiz.NewAttempt(q, submit, quiz.SystemClock))

	http.Redirect(w, r, h.path("/student/quizzes/"+quizID+"/take"), http.StatusSeeOther)
}

// activeAttempt returns the session's attempt for the quiz in the URL, or nil
// after writing a response.
func (h *Handler) activeAttempt(w http.ResponseWriter, r *http.Request) *quiz.Attempt {
	sess := sessionFromContext(r.Context())
	a := h.attempts.Get(sess.ID())
	if a == nil || a.Quiz().ID != chi.URLParam(r, "quizID") {
		h.render(w, r, views.ErrorPage(appI18n.T(r.Context(), "NoActiveQuiz")))
		return nil
	}
	return a
}

func (h *Handler) handleQuizPage(w http.ResponseWriter, r *http.Request) {
	a := h.activeAttempt(w, r)
	if a == nil {
		return
	}

	if a.State() != quiz.StateInProgress {
		http.Redirect(w, r, h.path("/student/quizzes/"+a.Quiz().ID+"/result"), http.StatusSeeOther)
		return
	}

	if qParam := r.URL.Query().Get("q"); qParam != "" {
		idx, err := strconv.Atoi(qParam)
		if err != nil {
			http.Error(w, "invalid question index", http.StatusBadRequest)
			return
		}
		if err := a.Goto(idx); err != nil && !errors.Is(err, quiz.ErrNotInProgress) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	current := a.Current()
	selected := quiz.Unanswered
	if v, ok := a.Answers()[current]; ok {
		selected = v
	}
	h.render(w, r, views.QuizPage(a.Quiz(), current, selected, a.FormatRemaining()))
}

func (h *Handler) handleQuizAnswer(w http.ResponseWriter, r *http.Request) {
	a := h.activeAttempt(w, r)
	if a == nil {
		return
	}

	questionIdx, err := strconv.Atoi(r.FormValue("question"))
	if err != nil {
		http.Error(w, "invalid question index", http.StatusBadRequest)
		return
	}

	// An unchecked radio group posts no option; that leaves the question
	// unanswered rather than failing the request.
	if opt := r.FormValue("option"); opt != "" {
		optionIdx, err := strconv.Atoi(opt)
		if err != nil {
			http.Error(w, "invalid option index", http.StatusBadRequest)
			return
		}
		if err := a.Select(questionIdx, optionIdx); err != nil {
			if errors.Is(err, quiz.ErrNotInProgress) {
				http.Redirect(w, r, h.path("/student/quizzes/"+a.Quiz().ID+"/result"), http.StatusSeeOther)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if r.FormValue("next") == "submit" {
		h.finishAttempt(w, r, a)
		return
	}

	next := questionIdx + 1
	if next >= len(a.Quiz().Questions) {
		next = questionIdx
	}
	http.Redirect(w, r, h.path(fmt.Sprintf("/student/quizzes/%s/take?q=%d", a.Quiz().ID, next)), http.StatusSeeOther)
}

func (h *Handler) handleQuizSubmit(w http.ResponseWriter, r *http.Request) {
	a := h.activeAttempt(w, r)
	if a == nil {
		return
	}
	h.finishAttempt(w, r, a)
}

// finishAttempt submits and redirects to the result page. Losing the submit
// race to the timer is fine; the result page shows whatever outcome won.
func (h *Handler) finishAttempt(w http.ResponseWriter, r *http.Request, a *quiz.Attempt) {
	if _, err := a.Submit(r.Context()); err != nil && !errors.Is(err, quiz.ErrAlreadySubmitted) {
		slog.Warn("quiz submit failed", "quiz_id", a.Quiz().ID, "error", err)
	}
	http.Redirect(w, r, h.path("/student/quizzes/"+a.Quiz().ID+"/result"), http.StatusSeeOther)
}

func (h *Handler) handleQuizResultPage(w http.ResponseWriter, r *http.Request) {
	a := h.activeAttempt(w, r)
	if a == nil {
		return
	}

	switch a.State() {
	case quiz.StateCompleted:
		result, _ := a.Result()
		score := appI18n.Td(r.Context(), "QuizScore", map[string]any{
			"Score": strconv.FormatFloat(result.Score, 'f', -1, 64),
			"Total": strconv.Itoa(result.TotalPoints),
		})
		h.render(w, r, views.QuizResultPage(appI18n.T(r.Context(), "QuizSubmitted"), score))
	case quiz.StateError:
		slog.Warn("quiz attempt ended in error", "quiz_id", a.Quiz().ID, "error", a.Err())
		h.render(w, r, views.QuizResultPage(appI18n.T(r.Context(), "QuizSubmitError"), ""))
	case quiz.StateSubmitting:
		// The take page bounces here while the upstream submit is in flight, so
		// redirecting back would loop. Render a holding page that re-polls.
		w.Header().Set("Refresh", "2")
		h.render(w, r, views.QuizResultPage(appI18n.T(r.Context(), "QuizSubmitting"), ""))
	default:
		http.Redirect(w, r, h.path("/student/quizzes/"+a.Quiz().ID+"/take"), http.StatusSeeOther)
	}
}

// handleQuizRemaining feeds the countdown script. The server clock is
// authoritative; the browser only displays it.
func (h *Handler) handleQuizRemaining(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	a := h.attempts.Get(sess.ID())
	if a == nil || a.Quiz().ID != chi.URLParam(r, "quizID") {
		http.Error(w, "no active attempt", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"remaining": a.FormatRemaining(),
		"seconds":   a.Remaining(),
		"state":     a.State(),
	})
}
