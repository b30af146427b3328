package web

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"readmark/internal/extract"
	"readmark/internal/library"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) render(w http.ResponseWriter, status int, page string, data map[string]any) {
	tmpl, ok := s.templates[page]
	if !ok {
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		s.logger.Error("Template error", zap.String("page", page), zap.Error(err))
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	// Fetch recent articles
	articles, err := s.svc.ListArticles(r.Context(), uid, 50)
	if err != nil {
		s.logger.Error("Failed to list articles", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	s.render(w, http.StatusOK, "index.html", map[string]any{
		"Title":    "Reading list",
		"User":     uid,
		"Articles": articles,
		"Flash":    s.flashes.pop(uid),
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.NotFound(w, r)
		return
	}

	article, rendered, err := s.svc.RenderArticle(r.Context(), userID(r), id)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("Failed to render article", zap.String("id", id.String()), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	// Content was sanitized on save; the highlight marks are ours.
	s.render(w, http.StatusOK, "view.html", map[string]any{
		"Title":       article.Title,
		"ID":          article.ID.String(),
		"Content":     template.HTML(rendered),
		"OriginalURL": article.URL,
		"Tags":        article.Tags,
		"Date":        article.CreatedAt,
	})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	rawURL := strings.TrimSpace(r.FormValue("url"))
	if rawURL == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if !s.limiter.Allow(uid) {
		s.flashes.set(uid, "Too many saves, try again in a moment.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	tags := strings.Split(r.FormValue("tags"), ",")
	article, err := s.svc.SaveArticle(r.Context(), uid, library.SaveInput{URL: rawURL, Tags: tags})
	var verr *library.ValidationError
	switch {
	case err == nil:
		s.flashes.set(uid, fmt.Sprintf("Saved '%s'", article.Title))
	case errors.As(err, &verr):
		s.flashes.set(uid, "Error: "+verr.Error())
	case extract.Kind(err) != "":
		s.flashes.set(uid, "Error: "+extract.Message(err))
	default:
		s.logger.Error("Failed to save article", zap.String("url", rawURL), zap.Error(err))
		s.flashes.set(uid, "Error: Could not save article")
	}

	// Redirect back home
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "login.html", map[string]any{"Title": "Sign in"})
}

// handleLogin stores a valid token in the session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.FormValue("token"))
	if _, err := s.issuer.Verify(token); err != nil {
		s.render(w, http.StatusUnauthorized, "login.html", map[string]any{"Title": "Sign in", "Error": "That token is not valid."})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
