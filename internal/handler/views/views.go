// Package views renders the portal's HTML pages from embedded templates.
package views

import (
	"context"
	"embed"
	"html/template"
	"io"

	"schoolportal/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("portal").Funcs(template.FuncMap{
	"add": func(a, b int) int { return a + b },
}).ParseFS(templateFS, "templates/*.html"))

// Page is a renderable view bound to its data.
type Page struct {
	name string
	data any
}

// frame carries request-scoped values every template can rely on.
type frame struct {
	BasePath  string
	CSRFToken string
	Identity  *model.Identity
	Data      any
}

// Render executes the page template, pulling base path, CSRF token, and
// identity from the request context.
func (p Page) Render(ctx context.Context, w io.Writer) error {
	f := frame{
		BasePath:  model.BasePathFromContext(ctx),
		CSRFToken: model.CSRFTokenFromContext(ctx),
		Data:      p.data,
	}
	if id, ok := model.IdentityFromContext(ctx); ok {
		f.Identity = &id
	}
	return pages.ExecuteTemplate(w, p.name, f)
}

// LoginPage renders the sign-in form, with an error banner when msg is set.
func LoginPage(msg string) Page {
	return Page{name: "login", data: msg}
}

// NavLink is one entry on a dashboard.
type NavLink struct {
	Label string
	Path  string
}

type dashboardData struct {
	Title string
	Links []NavLink
}

// DashboardPage renders a role's landing page.
func DashboardPage(title string, links []NavLink) Page {
	return Page{name: "dashboard", data: dashboardData{Title: title, Links: links}}
}

type listData struct {
	Title   string
	Columns []string
	Rows    [][]string
}

// ListPage renders a generic table over API list results.
func ListPage(title string, columns []string, rows [][]string) Page {
	return Page{name: "list", data: listData{Title: title, Columns: columns, Rows: rows}}
}

type quizData struct {
	Quiz      model.Quiz
	Current   int
	Question  model.QuizQuestion
	Selected  int // -1 when unanswered
	Remaining string
	Last      bool
}

// QuizPage renders the current question of an in-progress attempt.
func QuizPage(q model.Quiz, current, selected int, remaining string) Page {
	return Page{name: "quiz", data: quizData{
		Quiz:      q,
		Current:   current,
		Question:  q.Questions[current],
		Selected:  selected,
		Remaining: remaining,
		Last:      current == len(q.Questions)-1,
	}}
}

type quizResultData struct {
	Message string
	Score   string
}

// QuizResultPage renders the outcome of a submitted attempt.
func QuizResultPage(message, score string) Page {
	return Page{name: "quiz_result", data: quizResultData{Message: message, Score: score}}
}

type forbiddenData struct {
	Title string
	Body  string
}

// ForbiddenPage renders the not-authorized view shown on role mismatch.
func ForbiddenPage(title, body string) Page {
	return Page{name: "forbidden", data: forbiddenData{Title: title, Body: body}}
}

// ProfilePage renders the merged profile view.
func ProfilePage(p model.Profile) Page {
	return Page{name: "profile", data: p}
}

// ErrorPage renders a transient error message without losing the view.
func ErrorPage(msg string) Page {
	return Page{name: "error", data: msg}
}
