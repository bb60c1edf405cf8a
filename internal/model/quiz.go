package model

import "time"

// QuizQuestion is a single-choice question within a quiz.
type QuizQuestion struct {
	Prompt     string   `json:"prompt"`
	Options    []string `json:"options"`
	PointValue int      `json:"point_value"`
}

// Quiz is the full quiz definition fetched when a student starts an attempt.
type Quiz struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	SubjectID        string         `json:"subject_id"`
	TimeLimitMinutes int            `json:"time_limit_minutes"`
	Questions        []QuizQuestion `json:"questions"`
}

// TotalPoints sums the point values of all questions.
func (q Quiz) TotalPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.PointValue
	}
	return total
}

// QuizSummary is the list-view projection of a quiz.
type QuizSummary struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	SubjectName      string     `json:"subject_name"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	QuestionCount    int        `json:"question_count"`
	Deadline         *time.Time `json:"deadline,omitempty"`
}

// QuizResult is the server-graded outcome of a submitted attempt. The portal
// performs no grading of its own.
type QuizResult struct {
	Score       float64 `json:"score"`
	TotalPoints int     `json:"total_points"`
}
