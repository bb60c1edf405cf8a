package api

import (
	"context"
	"fmt"
	"net/url"

	"schoolportal/internal/model"
)

// The list/get wrappers below cover the CRUD surface the dashboards render.
// Path and verb conventions belong to the API, not the portal.

// ListStudents returns the student roster.
func (c *Client) ListStudents(ctx context.Context) ([]model.Student, error) {
	var out []model.Student
	return out, c.getJSON(ctx, "/students", &out)
}

// ListTeachers returns teaching staff.
func (c *Client) ListTeachers(ctx context.Context) ([]model.Teacher, error) {
	var out []model.Teacher
	return out, c.getJSON(ctx, "/teachers", &out)
}

// ListClassRooms returns classes/sections.
func (c *Client) ListClassRooms(ctx context.Context) ([]model.ClassRoom, error) {
	var out []model.ClassRoom
	return out, c.getJSON(ctx, "/class_rooms", &out)
}

// ListSubjects returns taught subjects.
func (c *Client) ListSubjects(ctx context.Context) ([]model.Subject, error) {
	var out []model.Subject
	return out, c.getJSON(ctx, "/subjects", &out)
}

// ListExams returns scheduled exams.
func (c *Client) ListExams(ctx context.Context) ([]model.Exam, error) {
	var out []model.Exam
	return out, c.getJSON(ctx, "/exams", &out)
}

// ListMarks returns exam results visible to the caller's role.
func (c *Client) ListMarks(ctx context.Context) ([]model.Mark, error) {
	var out []model.Mark
	return out, c.getJSON(ctx, "/marks", &out)
}

// CreateMark records one student's exam result.
func (c *Client) CreateMark(ctx context.Context, entry model.MarkEntry) error {
	return c.postJSON(ctx, "/marks", entry, nil)
}

// ListAttendance returns attendance records, optionally filtered by date
// (YYYY-MM-DD).
func (c *Client) ListAttendance(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	path := "/attendance"
	if date != "" {
		path += "?date=" + url.QueryEscape(date)
	}
	var out []model.AttendanceRecord
	return out, c.getJSON(ctx, path, &out)
}

// CreateAttendance records attendance entries for a class.
func (c *Client) CreateAttendance(ctx context.Context, entries []model.AttendanceEntry) error {
	return c.postJSON(ctx, "/attendance", entries, nil)
}

// ListAssignments returns assignments visible to the caller's role.
func (c *Client) ListAssignments(ctx context.Context) ([]model.Assignment, error) {
	var out []model.Assignment
	return out, c.getJSON(ctx, "/assignments", &out)
}

// ListQuizzes returns quizzes available to the caller.
func (c *Client) ListQuizzes(ctx context.Context) ([]model.QuizSummary, error) {
	var out []model.QuizSummary
	return out, c.getJSON(ctx, "/quizzes", &out)
}

// GetQuiz fetches a full quiz definition, questions included.
func (c *Client) GetQuiz(ctx context.Context, id string) (model.Quiz, error) {
	var out model.Quiz
	return out, c.getJSON(ctx, "/quizzes/"+url.PathEscape(id), &out)
}

// SubmitQuiz posts the full answer set keyed by question index and returns
// the server-graded result. Unanswered questions carry -1.
func (c *Client) SubmitQuiz(ctx context.Context, id string, answers map[int]int) (model.QuizResult, error) {
	payload := map[string]map[int]int{"answers": answers}
	var out model.QuizResult
	path := fmt.Sprintf("/quizzes/%s/submit", url.PathEscape(id))
	return out, c.postJSON(ctx, path, payload, &out)
}

// ListLeaves returns leave requests visible to the caller's role.
func (c *Client) ListLeaves(ctx context.Context) ([]model.LeaveRequest, error) {
	var out []model.LeaveRequest
	return out, c.getJSON(ctx, "/leaves", &out)
}

// CreateLeave applies for leave.
func (c *Client) CreateLeave(ctx context.Context, entry model.LeaveEntry) error {
	return c.postJSON(ctx, "/leaves", entry, nil)
}

// ListTimetable returns the schedule visible to the caller's role.
func (c *Client) ListTimetable(ctx context.Context) ([]model.TimetableEntry, error) {
	var out []model.TimetableEntry
	return out, c.getJSON(ctx, "/timetable", &out)
}

// ListAssets returns the school's inventory.
func (c *Client) ListAssets(ctx context.Context) ([]model.Asset, error) {
	var out []model.Asset
	return out, c.getJSON(ctx, "/assets", &out)
}

// ListSalaries returns payroll records.
func (c *Client) ListSalaries(ctx context.Context) ([]model.SalaryRecord, error) {
	var out []model.SalaryRecord
	return out, c.getJSON(ctx, "/salaries", &out)
}

// ListNotifications returns the caller's notifications.
func (c *Client) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	var out []model.Notification
	return out, c.getJSON(ctx, "/notifications", &out)
}

// DismissNotification deletes a notification for the caller.
func (c *Client) DismissNotification(ctx context.Context, id string) error {
	return c.delete(ctx, "/notifications/"+url.PathEscape(id))
}

// ListEvents returns calendar events.
func (c *Client) ListEvents(ctx context.Context) ([]model.Event, error) {
	var out []model.Event
	return out, c.getJSON(ctx, "/events", &out)
}

// ListBooks returns the library catalogue.
func (c *Client) ListBooks(ctx context.Context) ([]model.Book, error) {
	var out []model.Book
	return out, c.getJSON(ctx, "/library", &out)
}

// ListFees returns fee records visible to the caller's role.
func (c *Client) ListFees(ctx context.Context) ([]model.FeeRecord, error) {
	var out []model.FeeRecord
	return out, c.getJSON(ctx, "/fees", &out)
}

// ListMessages returns the caller's messages.
func (c *Client) ListMessages(ctx context.Context) ([]model.MessageItem, error) {
	var out []model.MessageItem
	return out, c.getJSON(ctx, "/messages", &out)
}

// ListFeedbacks returns feedback submissions.
func (c *Client) ListFeedbacks(ctx context.Context) ([]model.Feedback, error) {
	var out []model.Feedback
	return out, c.getJSON(ctx, "/feedbacks", &out)
}

// CreateFeedback posts a feedback submission.
func (c *Client) CreateFeedback(ctx context.Context, body string) error {
	return c.postJSON(ctx, "/feedbacks", map[string]string{"body": body}, nil)
}
