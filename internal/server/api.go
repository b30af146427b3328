package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"readmark/internal/extract"
	"readmark/internal/library"
	"readmark/internal/model"
	"readmark/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to HTTP responses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *library.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, library.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case extract.Kind(err) != "":
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": extract.Message(err), "kind": extract.Kind(err)})
	default:
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// decode reads a JSON body. strict rejects unknown fields.
func decode(r *http.Request, v any, strict bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return &library.ValidationError{Fields: map[string]string{"body": fmt.Sprintf("invalid JSON: %v", err)}}
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		// Malformed ids cannot name an owned record.
		return uuid.Nil, library.ErrNotFound
	}
	return id, nil
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	articles, err := s.svc.ListArticles(r.Context(), userID(r), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Listings omit the content body.
	for i := range articles {
		articles[i].Content = ""
	}
	if articles == nil {
		articles = []model.Article{}
	}
	writeJSON(w, http.StatusOK, articles)
}

// handleCreateArticle saves synchronously, or enqueues the URL for the
// worker when called with ?async=1.
func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if !s.limiter.Allow(uid) {
		w.Header().Set("Retry-After", strconv.Itoa(s.limiter.retryAfter()))
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many saves, slow down"})
		return
	}

	var in library.SaveInput
	if err := decode(r, &in, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		s.enqueue(w, r, uid, in)
		return
	}

	article, err := s.svc.SaveArticle(r.Context(), uid, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, article)
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, uid string, in library.SaveInput) {
	if s.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "background saves are not available"})
		return
	}
	if err := s.svc.ValidateSave(in); err != nil {
		s.writeError(w, r, err)
		return
	}
	job := store.NewJob(uid, in.URL, in.Tags)
	if err := s.queue.Push(r.Context(), job); err != nil {
		s.writeError(w, r, fmt.Errorf("enqueue: %w", err))
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	article, err := s.svc.GetArticle(r.Context(), userID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (s *Server) handleUpdateArticle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var patch library.ArticlePatch
	if err := decode(r, &patch, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	article, err := s.svc.UpdateArticle(r.Context(), userID(r), id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (s *Server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.DeleteArticle(r.Context(), userID(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListHighlights(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	highlights, err := s.svc.ListHighlights(r.Context(), userID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if highlights == nil {
		highlights = []model.Highlight{}
	}
	writeJSON(w, http.StatusOK, highlights)
}

func (s *Server) handleCreateHighlight(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in library.HighlightInput
	if err := decode(r, &in, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.svc.CreateHighlight(r.Context(), userID(r), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleUpdateHighlight(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var patch library.HighlightPatch
	if err := decode(r, &patch, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.svc.UpdateHighlight(r.Context(), userID(r), id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleDeleteHighlight(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.DeleteHighlight(r.Context(), userID(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRendered(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_, rendered, err := s.svc.RenderArticle(r.Context(), userID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": rendered})
}

func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	md, err := s.svc.ExportMarkdown(r.Context(), userID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = io.WriteString(w, md)
}
