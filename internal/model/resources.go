package model

import "time"

// The structs below mirror the API's list representations. The portal renders
// them as-is; it owns none of the underlying business rules.

// Student is a student roster entry.
type Student struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	ClassName  string `json:"class_name"`
	RollNumber string `json:"roll_number"`
}

// Teacher is a teaching staff entry.
type Teacher struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Subject  string `json:"subject"`
	Phone    string `json:"phone"`
}

// ClassRoom is a class/section record.
type ClassRoom struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Grade        string `json:"grade"`
	TeacherName  string `json:"teacher_name"`
	StudentCount int    `json:"student_count"`
}

// Subject is a taught subject.
type Subject struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	ClassName string `json:"class_name"`
}

// Exam is a scheduled examination.
type Exam struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SubjectName string    `json:"subject_name"`
	ClassName   string    `json:"class_name"`
	StartsAt    time.Time `json:"starts_at"`
	TotalMarks  int       `json:"total_marks"`
}

// Mark is a graded exam result for one student.
type Mark struct {
	ID          string  `json:"id"`
	StudentName string  `json:"student_name"`
	ExamName    string  `json:"exam_name"`
	SubjectName string  `json:"subject_name"`
	Obtained    float64 `json:"obtained"`
	Total       int     `json:"total"`
}

// MarkEntry is the payload a teacher posts when recording marks.
type MarkEntry struct {
	StudentID string  `json:"student_id"`
	ExamID    string  `json:"exam_id"`
	SubjectID string  `json:"subject_id"`
	Obtained  float64 `json:"obtained"`
}

// AttendanceRecord is one student's attendance for a day.
type AttendanceRecord struct {
	ID          string    `json:"id"`
	StudentName string    `json:"student_name"`
	ClassName   string    `json:"class_name"`
	Date        time.Time `json:"date"`
	Present     bool      `json:"present"`
}

// AttendanceEntry is the payload a teacher posts when taking attendance.
type AttendanceEntry struct {
	StudentID string `json:"student_id"`
	ClassID   string `json:"class_id"`
	Date      string `json:"date"`
	Present   bool   `json:"present"`
}

// Assignment is a homework assignment.
type Assignment struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	SubjectName string    `json:"subject_name"`
	ClassName   string    `json:"class_name"`
	DueDate     time.Time `json:"due_date"`
}

// LeaveRequest is a leave application and its review state.
type LeaveRequest struct {
	ID        string    `json:"id"`
	Applicant string    `json:"applicant"`
	FromDate  time.Time `json:"from_date"`
	ToDate    time.Time `json:"to_date"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
}

// LeaveEntry is the payload posted when applying for leave.
type LeaveEntry struct {
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
	Reason   string `json:"reason"`
}

// TimetableEntry is one scheduled period.
type TimetableEntry struct {
	ID          string `json:"id"`
	Day         string `json:"day"`
	Period      string `json:"period"`
	ClassName   string `json:"class_name"`
	SubjectName string `json:"subject_name"`
	TeacherName string `json:"teacher_name"`
}

// Asset is a school inventory item.
type Asset struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Location  string `json:"location"`
	Quantity  int    `json:"quantity"`
	Condition string `json:"condition"`
}

// SalaryRecord is one month's payroll entry for a staff member.
type SalaryRecord struct {
	ID        string  `json:"id"`
	StaffName string  `json:"staff_name"`
	Month     string  `json:"month"`
	Amount    float64 `json:"amount"`
	Paid      bool    `json:"paid"`
}

// Notification is a broadcast or targeted notice.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// Event is a calendar entry.
type Event struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Location string    `json:"location"`
}

// Book is a library catalogue entry.
type Book struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	ISBN      string `json:"isbn"`
	Available int    `json:"available"`
}

// FeeRecord is a fee invoice and its payment state.
type FeeRecord struct {
	ID          string    `json:"id"`
	StudentName string    `json:"student_name"`
	Amount      float64   `json:"amount"`
	DueDate     time.Time `json:"due_date"`
	Paid        bool      `json:"paid"`
}

// MessageItem is one message in a conversation listing.
type MessageItem struct {
	ID       string    `json:"id"`
	From     string    `json:"from"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
	Unread   bool      `json:"unread"`
	ThreadID string    `json:"thread_id"`
}

// Feedback is a feedback submission.
type Feedback struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
