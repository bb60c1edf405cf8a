package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"schoolportal/internal/handler/views"
	"schoolportal/internal/model"
)

const dateLayout = "2006-01-02"

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (h *Handler) handleStudentsPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	students, err := sess.API().ListStudents(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(students))
	for _, s := range students {
		rows = append(rows, []string{s.RollNumber, s.FullName, s.ClassName, s.Email})
	}
	h.render(w, r, views.ListPage("Students", []string{"Roll no", "Name", "Class", "Email"}, rows))
}

func (h *Handler) handleTeachersPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	teachers, err := sess.API().ListTeachers(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(teachers))
	for _, t := range teachers {
		rows = append(rows, []string{t.FullName, t.Subject, t.Email, t.Phone})
	}
	h.render(w, r, views.ListPage("Teachers", []string{"Name", "Subject", "Email", "Phone"}, rows))
}

func (h *Handler) handleClassesPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	classes, err := sess.API().ListClassRooms(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(classes))
	for _, c := range classes {
		rows = append(rows, []string{c.Name, c.Grade, c.TeacherName, strconv.Itoa(c.StudentCount)})
	}
	h.render(w, r, views.ListPage("Classes", []string{"Name", "Grade", "Class teacher", "Students"}, rows))
}

func (h *Handler) handleSubjectsPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	subjects, err := sess.API().ListSubjects(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(subjects))
	for _, s := range subjects {
		rows = append(rows, []string{s.Code, s.Name, s.ClassName})
	}
	h.render(w, r, views.ListPage("Subjects", []string{"Code", "Name", "Class"}, rows))
}

func (h *Handler) handleExamsPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	exams, err := sess.API().ListExams(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(exams))
	for _, e := range exams {
		rows = append(rows, []string{
			e.Name, e.SubjectName, e.ClassName,
			e.StartsAt.Format("2006-01-02 15:04"),
			strconv.Itoa(e.TotalMarks),
		})
	}
	h.render(w, r, views.ListPage("Exams", []string{"Exam", "Subject", "Class", "Starts", "Total marks"}, rows))
}

func (h *Handler) handleMarksPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	marks, err := sess.API().ListMarks(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(marks))
	for _, m := range marks {
		rows = append(rows, []string{
			m.StudentName, m.ExamName, m.SubjectName,
			fmt.Sprintf("%g / %d", m.Obtained, m.Total),
		})
	}
	h.render(w, r, views.ListPage("Marks", []string{"Student", "Exam", "Subject", "Score"}, rows))
}

func (h *Handler) handleCreateMark(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	obtained, err := strconv.ParseFloat(r.FormValue("obtained"), 64)
	if err != nil {
		http.Error(w, "invalid marks value", http.StatusBadRequest)
		return
	}
	entry := model.MarkEntry{
		StudentID: r.FormValue("student_id"),
		ExamID:    r.FormValue("exam_id"),
		SubjectID: r.FormValue("subject_id"),
		Obtained:  obtained,
	}
	if entry.StudentID == "" || entry.ExamID == "" || entry.SubjectID == "" {
		http.Error(w, "student, exam, and subject are required", http.StatusBadRequest)
		return
	}

	if err := sess.API().CreateMark(r.Context(), entry); err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	http.Redirect(w, r, h.path("/teacher/marks"), http.StatusSeeOther)
}

func (h *Handler) handleAttendancePage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format(dateLayout)
	}
	records, err := sess.API().ListAttendance(r.Context(), date)
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.StudentName, rec.ClassName,
			rec.Date.Format(dateLayout), yesNo(rec.Present),
		})
	}
	h.render(w, r, views.ListPage("Attendance "+date, []string{"Student", "Class", "Date", "Present"}, rows))
}

// handleCreateAttendance records one day's roll call. The form posts one
// present_<studentID> checkbox per student plus the roster as student_id
// values.
func (h *Handler) handleCreateAttendance(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	date := r.FormValue("date")
	classID := r.FormValue("class_id")
	if date == "" || classID == "" {
		http.Error(w, "date and class are required", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	var entries []model.AttendanceEntry
	for _, studentID := range r.PostForm["student_id"] {
		entries = append(entries, model.AttendanceEntry{
			StudentID: studentID,
			ClassID:   classID,
			Date:      date,
			Present:   r.PostForm.Get("present_"+studentID) != "",
		})
	}
	if len(entries) == 0 {
		http.Error(w, "no students in roster", http.StatusBadRequest)
		return
	}

	if err := sess.API().CreateAttendance(r.Context(), entries); err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	http.Redirect(w, r, h.path("/teacher/attendance?date="+date), http.StatusSeeOther)
}

func (h *Handler) handleAssignmentsPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	assignments, err := sess.API().ListAssignments(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(assignments))
	for _, a := range assignments {
		rows = append(rows, []string{a.Title, a.SubjectName, a.ClassName, a.DueDate.Format(dateLayout)})
	}
	h.render(w, r, views.ListPage("Assignments", []string{"Title", "Subject", "Class", "Due"}, rows))
}

func (h *Handler) handleLeavesPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	leaves, err := sess.API().ListLeaves(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(leaves))
	for _, l := range leaves {
		rows = append(rows, []string{
			l.Applicant,
			l.FromDate.Format(dateLayout), l.ToDate.Format(dateLayout),
			l.Reason, l.Status,
		})
	}
	h.render(w, r, views.ListPage("Leave requests", []string{"Applicant", "From", "To", "Reason", "Status"}, rows))
}

func (h *Handler) handleCreateLeave(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	entry := model.LeaveEntry{
		FromDate: r.FormValue("from_date"),
		ToDate:   r.FormValue("to_date"),
		Reason:   r.FormValue("reason"),
	}
	if entry.FromDate == "" || entry.ToDate == "" || entry.Reason == "" {
		http.Error(w, "from, to, and reason are required", http.StatusBadRequest)
		return
	}

	if err := sess.API().CreateLeave(r.Context(), entry); err != nil {
		h.renderAPIError(w, r, err)
		return
	}

	id, _ := model.IdentityFromContext(r.Context())
	http.Redirect(w, r, h.path(id.Role.LandingPath()+"/leaves"), http.StatusSeeOther)
}

func (h *Handler) handleTimetablePage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	entries, err := sess.API().ListTimetable(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Day, e.Period, e.ClassName, e.SubjectName, e.TeacherName})
	}
	h.render(w, r, views.ListPage("Timetable", []string{"Day", "Period", "Class", "Subject", "Teacher"}, rows))
}

func (h *Handler) handleAssetsPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	assets, err := sess.API().ListAssets(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(assets))
	for _, a := range assets {
		rows = append(rows, []string{a.Name, a.Category, a.Location, strconv.Itoa(a.Quantity), a.Condition})
	}
	h.render(w, r, views.ListPage("Assets", []string{"Name", "Category", "Location", "Quantity", "Condition"}, rows))
}

func (h *Handler) handleSalariesPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	salaries, err := sess.API().ListSalaries(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(salaries))
	for _, s := range salaries {
		rows = append(rows, []string{
			s.StaffName, s.Month,
			fmt.Sprintf("%.2f", s.Amount),
			yesNo(s.Paid),
		})
	}
	h.render(w, r, views.ListPage("Salaries", []string{"Staff", "Month", "Amount", "Paid"}, rows))
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	notifications, err := sess.API().ListNotifications(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(notifications))
	for _, n := range notifications {
		rows = append(rows, []string{
			n.CreatedAt.Format("2006-01-02 15:04"),
			n.Title, n.Body, yesNo(n.Read),
		})
	}
	h.render(w, r, views.ListPage("Notifications", []string{"When", "Title", "Message", "Read"}, rows))
}

func (h *Handler) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := sess.API().DismissNotification(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	http.Redirect(w, r, h.path("/notifications"), http.StatusSeeOther)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	events, err := sess.API().ListEvents(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			e.Title,
			e.StartsAt.Format("2006-01-02 15:04"),
			e.EndsAt.Format("2006-01-02 15:04"),
			e.Location,
		})
	}
	h.render(w, r, views.ListPage("Events", []string{"Event", "Starts", "Ends", "Location"}, rows))
}

func (h *Handler) handleBooksPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	books, err := sess.API().ListBooks(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(books))
	for _, b := range books {
		rows = append(rows, []string{b.Title, b.Author, b.ISBN, strconv.Itoa(b.Available)})
	}
	h.render(w, r, views.ListPage("Library", []string{"Title", "Author", "ISBN", "Available"}, rows))
}

func (h *Handler) handleFeesPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	fees, err := sess.API().ListFees(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(fees))
	for _, f := range fees {
		rows = append(rows, []string{
			f.StudentName,
			fmt.Sprintf("%.2f", f.Amount),
			f.DueDate.Format(dateLayout),
			yesNo(f.Paid),
		})
	}
	h.render(w, r, views.ListPage("Fees", []string{"Student", "Amount", "Due", "Paid"}, rows))
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	messages, err := sess.API().ListMessages(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(messages))
	for _, m := range messages {
		rows = append(rows, []string{
			m.SentAt.Format("2006-01-02 15:04"),
			m.From, m.Subject, yesNo(m.Unread),
		})
	}
	h.render(w, r, views.ListPage("Messages", []string{"When", "From", "Subject", "Unread"}, rows))
}

func (h *Handler) handleFeedbackPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	feedbacks, err := sess.API().ListFeedbacks(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	rows := make([][]string, 0, len(feedbacks))
	for _, f := range feedbacks {
		rows = append(rows, []string{f.CreatedAt.Format(dateLayout), f.Author, f.Body})
	}
	h.render(w, r, views.ListPage("Feedback", []string{"When", "Author", "Feedback"}, rows))
}

func (h *Handler) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	body := r.FormValue("body")
	if body == "" {
		http.Error(w, "feedback body is required", http.StatusBadRequest)
		return
	}
	if err := sess.API().CreateFeedback(r.Context(), body); err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	http.Redirect(w, r, h.path("/student"), http.StatusSeeOther)
}
