package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"schoolportal/internal/api"
	"schoolportal/internal/handler/views"
	appI18n "schoolportal/internal/i18n"
	"schoolportal/internal/model"
	"schoolportal/internal/session"
)

const (
	sessionCookieName = "portal_session"
	csrfCookieName    = "csrf_token"
)

type sessionCtxKey struct{}

func contextWithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

func sessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionCtxKey{}).(*session.Session)
	return s
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "GET" || r.Method == "HEAD" {
			token, err := generateCSRFToken()
			if err != nil {
				slog.Error("failed to generate CSRF token", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     csrfCookieName,
				Value:    token,
				Path:     h.cookiePath(),
				HttpOnly: false,
				Secure:   h.config.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
			ctx := model.ContextWithCSRFToken(r.Context(), token)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		if err != nil || cookie.Value == "" {
			slog.Warn("CSRF cookie missing")
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}

		formToken := r.FormValue("csrf_token")
		if formToken == "" {
			formToken = r.Header.Get("X-CSRF-Token")
		}
		if formToken == "" {
			slog.Warn("CSRF form token missing")
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}

		if len(formToken) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
			slog.Warn("CSRF token mismatch")
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}

		token, err := generateCSRFToken()
		if err != nil {
			slog.Error("failed to generate CSRF token", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     csrfCookieName,
			Value:    token,
			Path:     h.cookiePath(),
			HttpOnly: false,
			Secure:   h.config.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})

		ctx := model.ContextWithCSRFToken(r.Context(), token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSession resumes the browser session from its cookie. Requests without
// a live session are sent to the login page; stale cookies are cleared on the
// way out.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			h.redirectToLogin(w, r)
			return
		}

		sess, err := h.sessions.Resume(cookie.Value)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				slog.Error("failed to resume session", "error", err)
			}
			h.clearSessionCookie(w)
			h.redirectToLogin(w, r)
			return
		}

		ctx := contextWithSession(r.Context(), sess)
		ctx = model.ContextWithIdentity(ctx, sess.Identity())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the session's role before the
// subtree renders anything.
func (h *Handler) requireRole(allowed ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := model.IdentityFromContext(r.Context())
			if !ok {
				h.redirectToLogin(w, r)
				return
			}
			for _, role := range allowed {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			h.render(w, r, views.ForbiddenPage(
				appI18n.T(r.Context(), "ForbiddenTitle"),
				appI18n.T(r.Context(), "ForbiddenBody"),
			))
		})
	}
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	loginPath := h.path("/login")
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", loginPath)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     h.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if sess, err := h.sessions.Resume(cookie.Value); err == nil {
			http.Redirect(w, r, h.path(sess.Identity().Role.LandingPath()), http.StatusSeeOther)
			return
		}
	}
	h.render(w, r, views.LoginPage(""))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	// Reject incomplete forms locally; no upstream call is made.
	if username == "" || password == "" {
		h.renderLoginError(w, r, appI18n.T(r.Context(), "LoginMissingFields"), http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Login(r.Context(), username, password)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			msg := apiErr.Detail
			if msg == "" {
				msg = appI18n.T(r.Context(), "LoginError")
			}
			h.renderLoginError(w, r, msg, http.StatusUnauthorized)
			return
		}
		slog.Error("login failed", "error", err)
		h.renderLoginError(w, r, appI18n.T(r.Context(), "GenericError"), http.StatusBadGateway)
		return
	}

	h.setSessionCookie(w, sess.ID())
	http.Redirect(w, r, h.path(sess.Identity().Role.LandingPath()), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		h.attempts.Discard(cookie.Value)
		if err := h.sessions.LogoutID(cookie.Value); err != nil {
			slog.Error("logout failed", "error", err)
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}

func (h *Handler) renderLoginError(w http.ResponseWriter, r *http.Request, msg string, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	h.render(w, r, views.LoginPage(msg))
}

// handlePasskeyLoginOptions relays a WebAuthn challenge request to the API so
// the browser script never talks to the upstream origin directly.
func (h *Handler) handlePasskeyLoginOptions(w http.ResponseWriter, r *http.Request) {
	identifier := r.FormValue("username")
	opts, err := h.sessions.PasskeyLoginOptions(r.Context(), identifier)
	if err != nil {
		h.writePasskeyError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(opts)
}

func (h *Handler) handlePasskeyLoginVerify(w http.ResponseWriter, r *http.Request) {
	assertion, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "invalid assertion", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.PasskeyLogin(r.Context(), json.RawMessage(assertion))
	if err != nil {
		h.writePasskeyError(w, r, err)
		return
	}

	h.setSessionCookie(w, sess.ID())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"redirect": h.path(sess.Identity().Role.LandingPath()),
	})
}

func (h *Handler) writePasskeyError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	msg := appI18n.T(r.Context(), "PasskeyError")
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		status = apiErr.Status
		if apiErr.Detail != "" {
			msg = apiErr.Detail
		}
	}
	slog.Warn("passkey login failed", "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *Handler) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	profile, err := sess.Profile(r.Context())
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	h.render(w, r, views.ProfilePage(profile))
}

func (h *Handler) handleProfileRefresh(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if _, err := sess.RefreshProfile(r.Context()); err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	http.Redirect(w, r, h.path("/profile"), http.StatusSeeOther)
}
