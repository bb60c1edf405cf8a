// Package handler serves the portal's HTML pages and relays form input to the
// upstream school API.
package handler

import (
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"schoolportal/internal/api"
	"schoolportal/internal/handler/views"
	appI18n "schoolportal/internal/i18n"
	"schoolportal/internal/model"
	"schoolportal/internal/quiz"
	"schoolportal/internal/session"
)

//go:embed static
var staticFS embed.FS

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	sessions *session.Manager
	attempts *quiz.Registry
	config   model.PortalConfig
}

// New creates a new Handler.
func New(m *session.Manager, attempts *quiz.Registry, cfg model.PortalConfig) (*Handler, error) {
	return &Handler{sessions: m, attempts: attempts, config: cfg}, nil
}

// path prefixes p with the configured base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

// BasePathMiddleware makes the base path available to views via context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.csrfMiddleware)

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	r.Handle("/static/*", http.StripPrefix(h.path("/static/"), http.FileServer(http.FS(static))))

	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/passkey/login/options", h.handlePasskeyLoginOptions)
	r.Post("/passkey/login/verify", h.handlePasskeyLoginVerify)

	r.Group(func(r chi.Router) {
		r.Use(h.requireSession)

		r.Get("/", h.handleHome)
		r.Get("/profile", h.handleProfilePage)
		r.Post("/profile/refresh", h.handleProfileRefresh)
		r.Get("/notifications", h.handleNotifications)
		r.Post("/notifications/{id}/dismiss", h.handleDismissNotification)
		r.Get("/events", h.handleEvents)
		r.Get("/messages", h.handleMessages)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireRole(model.RoleAdmin))
			r.Get("/", h.handleAdminDashboard)
			r.Get("/students", h.handleStudentsPage)
			r.Get("/teachers", h.handleTeachersPage)
			r.Get("/classes", h.handleClassesPage)
			r.Get("/subjects", h.handleSubjectsPage)
			r.Get("/exams", h.handleExamsPage)
			r.Get("/timetable", h.handleTimetablePage)
			r.Get("/fees", h.handleFeesPage)
			r.Get("/salaries", h.handleSalariesPage)
			r.Get("/assets", h.handleAssetsPage)
			r.Get("/books", h.handleBooksPage)
			r.Get("/feedback", h.handleFeedbackPage)
		})

		r.Route("/teacher", func(r chi.Router) {
			r.Use(h.requireRole(model.RoleTeacher))
			r.Get("/", h.handleTeacherDashboard)
			r.Get("/classes", h.handleClassesPage)
			r.Get("/timetable", h.handleTimetablePage)
			r.Get("/attendance", h.handleAttendancePage)
			r.Post("/attendance", h.handleCreateAttendance)
			r.Get("/marks", h.handleMarksPage)
			r.Post("/marks", h.handleCreateMark)
			r.Get("/assignments", h.handleAssignmentsPage)
			r.Get("/leaves", h.handleLeavesPage)
		})

		r.Route("/student", func(r chi.Router) {
			r.Use(h.requireRole(model.RoleStudent))
			r.Get("/", h.handleStudentDashboard)
			r.Get("/timetable", h.handleTimetablePage)
			r.Get("/quizzes", h.handleQuizListPage)
			r.Post("/quizzes/{quizID}/start", h.handleStartQuiz)
			r.Get("/quizzes/{quizID}/take", h.handleQuizPage)
			r.Post("/quizzes/{quizID}/answer", h.handleQuizAnswer)
			r.Post("/quizzes/{quizID}/submit", h.handleQuizSubmit)
			r.Get("/quizzes/{quizID}/remaining", h.handleQuizRemaining)
			r.Get("/quizzes/{quizID}/result", h.handleQuizResultPage)
			r.Get("/assignments", h.handleAssignmentsPage)
			r.Get("/marks", h.handleMarksPage)
			r.Get("/attendance", h.handleAttendancePage)
			r.Get("/books", h.handleBooksPage)
			r.Get("/leaves", h.handleLeavesPage)
			r.Post("/leaves", h.handleCreateLeave)
			r.Post("/feedback", h.handleCreateFeedback)
		})

		r.Route("/parent", func(r chi.Router) {
			r.Use(h.requireRole(model.RoleParent))
			r.Get("/", h.handleParentDashboard)
			r.Get("/marks", h.handleMarksPage)
			r.Get("/attendance", h.handleAttendancePage)
			r.Get("/fees", h.handleFeesPage)
			r.Get("/leaves", h.handleLeavesPage)
			r.Post("/leaves", h.handleCreateLeave)
		})
	})
}

// render writes a page, logging render failures instead of surfacing them.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, page views.Page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// renderAPIError maps an upstream failure to a user-facing page. A 401 here
// means the refresh path was already exhausted and the session torn down, so
// the only sane move is back to the login page.
func (h *Handler) renderAPIError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusUnauthorized {
			h.clearSessionCookie(w)
			h.redirectToLogin(w, r)
			return
		}
		slog.Warn("upstream error", "status", apiErr.Status, "detail", apiErr.Detail)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadGateway)
		h.render(w, r, views.ErrorPage(apiErr.Detail))
		return
	}
	slog.Error("upstream request failed", "error", err)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	h.render(w, r, views.ErrorPage(appI18n.T(r.Context(), "GenericError")))
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	id, ok := model.IdentityFromContext(r.Context())
	if !ok {
		h.redirectToLogin(w, r)
		return
	}
	http.Redirect(w, r, h.path(id.Role.LandingPath()), http.StatusSeeOther)
}

func (h *Handler) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, views.DashboardPage(appI18n.T(r.Context(), "Dashboard"), []views.NavLink{
		{Label: "Students", Path: "/admin/students"},
		{Label: "Teachers", Path: "/admin/teachers"},
		{Label: "Classes", Path: "/admin/classes"},
		{Label: "Subjects", Path: "/admin/subjects"},
		{Label: "Exams", Path: "/admin/exams"},
		{Label: "Timetable", Path: "/admin/timetable"},
		{Label: "Fees", Path: "/admin/fees"},
		{Label: "Salaries", Path: "/admin/salaries"},
		{Label: "Assets", Path: "/admin/assets"},
		{Label: "Library", Path: "/admin/books"},
		{Label: "Feedback", Path: "/admin/feedback"},
		{Label: "Notifications", Path: "/notifications"},
		{Label: "Events", Path: "/events"},
	}))
}

func (h *Handler) handleTeacherDashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, views.DashboardPage(appI18n.T(r.Context(), "Dashboard"), []views.NavLink{
		{Label: "My classes", Path: "/teacher/classes"},
		{Label: "Timetable", Path: "/teacher/timetable"},
		{Label: "Attendance", Path: "/teacher/attendance"},
		{Label: "Marks", Path: "/teacher/marks"},
		{Label: "Assignments", Path: "/teacher/assignments"},
		{Label: "Leave requests", Path: "/teacher/leaves"},
		{Label: "Notifications", Path: "/notifications"},
		{Label: "Messages", Path: "/messages"},
	}))
}

func (h *Handler) handleStudentDashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, views.DashboardPage(appI18n.T(r.Context(), "Dashboard"), []views.NavLink{
		{Label: "Timetable", Path: "/student/timetable"},
		{Label: "Quizzes", Path: "/student/quizzes"},
		{Label: "Assignments", Path: "/student/assignments"},
		{Label: "Marks", Path: "/student/marks"},
		{Label: "Attendance", Path: "/student/attendance"},
		{Label: "Library", Path: "/student/books"},
		{Label: "Leave requests", Path: "/student/leaves"},
		{Label: "Events", Path: "/events"},
	}))
}

func (h *Handler) handleParentDashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, views.DashboardPage(appI18n.T(r.Context(), "Dashboard"), []views.NavLink{
		{Label: "Marks", Path: "/parent/marks"},
		{Label: "Attendance", Path: "/parent/attendance"},
		{Label: "Fees", Path: "/parent/fees"},
		{Label: "Leave requests", Path: "/parent/leaves"},
		{Label: "Events", Path: "/events"},
		{Label: "Messages", Path: "/messages"},
	}))
}
