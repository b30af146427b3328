package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"readmark/internal/auth"
	"readmark/internal/extract"
	"readmark/internal/library"
	"readmark/internal/model"
	"readmark/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const articleHTML = "<h1>Go Concurrency</h1><p>Channels orchestrate; mutexes serialize.</p>"

type MockScraper struct{}

func (MockScraper) Extract(ctx context.Context, rawURL string) (*extract.Result, error) {
	if _, err := extract.ParseURL(rawURL); err != nil {
		return nil, err
	}
	switch rawURL {
	case "https://example.com/go":
		return &extract.Result{
			Title:    "Go Concurrency",
			Content:  articleHTML,
			Strategy: extract.Strategy{Kind: extract.KindDocument},
		}, nil
	case "https://example.com/spa":
		return nil, fmt.Errorf("%w: no readable content", extract.ErrExtractionFailed)
	}
	return nil, fmt.Errorf("%w: HTTP 404", extract.ErrFetchFailed)
}

type fakeQueue struct {
	jobs []store.Job
	err  error
}

func (q *fakeQueue) Push(ctx context.Context, job store.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type testEnv struct {
	srv    *Server
	issuer *auth.Issuer
	queue  *fakeQueue
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	issuer, err := auth.NewIssuer(auth.Config{Secret: "test-secret-0123456789", Issuer: "readmark", TTL: time.Hour})
	require.NoError(t, err)

	q := &fakeQueue{}
	svc := library.NewService(st, MockScraper{}, zap.NewNop())
	srv, err := NewServer(svc, q, issuer, zap.NewNop(), opts)
	require.NoError(t, err)
	return &testEnv{srv: srv, issuer: issuer, queue: q}
}

// do sends a request as userID; an empty userID sends no credentials.
func (e *testEnv) do(t *testing.T, userID, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := e.issuer.Issue(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) saveArticle(t *testing.T, userID string) model.Article {
	t.Helper()
	rec := e.do(t, userID, "POST", "/api/articles", `{"url":"https://example.com/go","tags":["go"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var a model.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	return a
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestAPI_RequiresToken(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, "", "GET", "/api/articles", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/api/articles", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_ArticleLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})
	a := env.saveArticle(t, "alice")
	assert.Equal(t, "Go Concurrency", a.Title)
	assert.Equal(t, articleHTML, a.Content)

	rec := env.do(t, "alice", "GET", "/api/articles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Empty(t, list[0].Content)

	rec = env.do(t, "alice", "GET", "/api/articles/"+a.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "alice", "PATCH", "/api/articles/"+a.ID.String(), `{"read":true,"notes":"revisit"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var patched model.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patched))
	assert.True(t, patched.Read)
	assert.Equal(t, "revisit", patched.Notes)
	assert.Equal(t, articleHTML, patched.Content)

	rec = env.do(t, "alice", "DELETE", "/api/articles/"+a.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, "alice", "GET", "/api/articles/"+a.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ContentIsNotPatchable(t *testing.T) {
	env := newTestEnv(t, Options{})
	a := env.saveArticle(t, "alice")

	rec := env.do(t, "alice", "PATCH", "/api/articles/"+a.ID.String(), `{"content":"<p>rewritten</p>"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "alice", "GET", "/api/articles/"+a.ID.String(), "")
	var got model.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, articleHTML, got.Content)
}

func TestAPI_ExtractionErrors(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name string
		url  string
		kind string
		msg  string
	}{
		{"invalid url", "not a url", "InvalidUrl", "Please enter a valid URL"},
		{"fetch failure", "https://example.com/missing", "FetchFailed", "Could not fetch the page"},
		{"no content", "https://example.com/spa", "ExtractionFailed", "Could not parse article content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "alice", "POST", "/api/articles", fmt.Sprintf(`{"url":%q}`, tt.url))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			m := decodeBody(t, rec)
			assert.Equal(t, tt.kind, m["kind"])
			assert.Equal(t, tt.msg, m["error"])
		})
	}

	rec := env.do(t, "alice", "GET", "/api/articles", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAPI_OtherUsersGetNotFound(t *testing.T) {
	env := newTestEnv(t, Options{})
	a := env.saveArticle(t, "alice")

	rec := env.do(t, "alice", "POST", "/api/articles/"+a.ID.String()+"/highlights",
		`{"text":"Channels","startOffset":"14","endOffset":"22"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	hid := decodeBody(t, rec)["id"].(string)

	for _, req := range []struct{ method, path, body string }{
		{"GET", "/api/articles/" + a.ID.String(), ""},
		{"PATCH", "/api/articles/" + a.ID.String(), `{"read":true}`},
		{"DELETE", "/api/articles/" + a.ID.String(), ""},
		{"GET", "/api/articles/" + a.ID.String() + "/highlights", ""},
		{"GET", "/api/articles/" + a.ID.String() + "/rendered", ""},
		{"GET", "/api/articles/" + a.ID.String() + "/markdown", ""},
		{"PATCH", "/api/highlights/" + hid, `{"color":"blue"}`},
		{"DELETE", "/api/highlights/" + hid, ""},
		{"GET", "/api/articles/not-a-uuid", ""},
	} {
		rec := env.do(t, "mallory", req.method, req.path, req.body)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", req.method, req.path)
	}
}

func TestAPI_Highlights(t *testing.T) {
	env := newTestEnv(t, Options{})
	a := env.saveArticle(t, "alice")
	base := "/api/articles/" + a.ID.String()

	rec := env.do(t, "alice", "POST", base+"/highlights",
		`{"text":"Channels","startOffset":"14","endOffset":"22","color":"green","note":"key idea"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, "14", created["startOffset"])
	assert.Equal(t, "22", created["endOffset"])
	hid := created["id"].(string)

	rec = env.do(t, "alice", "POST", base+"/highlights",
		`{"text":"Go","startOffset":"0","endOffset":"2"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, "alice", "GET", base+"/highlights", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Highlight
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, 0, list[0].StartOffset)
	assert.Equal(t, 14, list[1].StartOffset)

	rec = env.do(t, "alice", "GET", base+"/rendered", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rendered := decodeBody(t, rec)["html"].(string)
	assert.Contains(t, rendered, `class="highlight"`)
	assert.Contains(t, rendered, `>Channels</span>`)

	rec = env.do(t, "alice", "GET", base+"/markdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "> Channels")
	assert.Contains(t, rec.Body.String(), "key idea")

	rec = env.do(t, "alice", "PATCH", "/api/highlights/"+hid, `{"color":"pink"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "pink", decodeBody(t, rec)["color"])

	rec = env.do(t, "alice", "PATCH", "/api/highlights/"+hid, `{"startOffset":"17","endOffset":"25"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "nnels or", decodeBody(t, rec)["text"])

	rec = env.do(t, "alice", "PATCH", "/api/highlights/"+hid, `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "alice", "GET", base+"/markdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "> nnels or")
	assert.NotContains(t, rec.Body.String(), "> Channels")

	rec = env.do(t, "alice", "DELETE", "/api/highlights/"+hid, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAPI_HighlightValidation(t *testing.T) {
	env := newTestEnv(t, Options{})
	a := env.saveArticle(t, "alice")
	path := "/api/articles/" + a.ID.String() + "/highlights"

	for _, body := range []string{
		`{"text":"x","startOffset":"5","endOffset":"5"}`,
		`{"text":"x","startOffset":"-1","endOffset":"3"}`,
		`{"text":"x","startOffset":"0","endOffset":"100000"}`,
		`{"text":"x","startOffset":"0","endOffset":"3","color":"mauve"}`,
		`{"startOffset":"0","endOffset":"3"}`,
		`not json`,
	} {
		rec := env.do(t, "alice", "POST", path, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, decodeBody(t, rec), "fields", body)
	}
}

func TestAPI_RateLimit(t *testing.T) {
	env := newTestEnv(t, Options{SavesPerMinute: 1, SaveBurst: 1})
	env.saveArticle(t, "alice")

	rec := env.do(t, "alice", "POST", "/api/articles", `{"url":"https://example.com/go"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Limits are per user.
	env.saveArticle(t, "bob")
}

func TestAPI_AsyncSave(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, "alice", "POST", "/api/articles?async=1", `{"url":"https://example.com/later","tags":["queue"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, env.queue.jobs, 1)
	assert.Equal(t, "alice", env.queue.jobs[0].UserID)
	assert.Equal(t, "https://example.com/later", env.queue.jobs[0].URL)
	assert.Equal(t, []string{"queue"}, env.queue.jobs[0].Tags)

	rec = env.do(t, "alice", "POST", "/api/articles?async=1", `{"url":"javascript:alert(1)"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidUrl", decodeBody(t, rec)["kind"])
	assert.Len(t, env.queue.jobs, 1)

	env.queue.err = errors.New("redis down")
	rec = env.do(t, "alice", "POST", "/api/articles?async=1", `{"url":"https://example.com/later"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAPI_AsyncSaveWithoutQueue(t *testing.T) {
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	issuer, err := auth.NewIssuer(auth.Config{Secret: "test-secret-0123456789"})
	require.NoError(t, err)
	srv, err := NewServer(library.NewService(st, MockScraper{}, zap.NewNop()), nil, issuer, zap.NewNop(), Options{})
	require.NoError(t, err)

	token, err := issuer.Issue("alice")
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/articles?async=1", strings.NewReader(`{"url":"https://example.com/go"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPages_RedirectToLogin(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, "", "GET", "/", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = env.do(t, "", "GET", "/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="token"`)
}

func TestPages_Login(t *testing.T) {
	env := newTestEnv(t, Options{})
	token, err := env.issuer.Issue("alice")
	require.NoError(t, err)

	post := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/login", strings.NewReader(url.Values{"token": {token}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		env.srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := post("garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	rec = post(token)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "readmark_token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nothing saved yet.")
}

func TestPages_AddAndView(t *testing.T) {
	env := newTestEnv(t, Options{})

	form := func(u string) *httptest.ResponseRecorder {
		token, err := env.issuer.Issue("alice")
		require.NoError(t, err)
		req := httptest.NewRequest("POST", "/add", strings.NewReader(url.Values{"url": {u}, "tags": {"go, reading"}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		env.srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := form("https://example.com/missing")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = env.do(t, "alice", "GET", "/", "")
	assert.Contains(t, rec.Body.String(), "Error: Could not fetch the page")

	rec = form("https://example.com/go")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = env.do(t, "alice", "GET", "/", "")
	body := rec.Body.String()
	assert.Contains(t, body, "Saved &#39;Go Concurrency&#39;")
	assert.Contains(t, body, "reading")

	// The flash is shown once.
	rec = env.do(t, "alice", "GET", "/", "")
	assert.NotContains(t, rec.Body.String(), "Saved")

	rec = env.do(t, "alice", "GET", "/api/articles", "")
	var list []model.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	id := list[0].ID.String()

	rec = env.do(t, "alice", "POST", "/api/articles/"+id+"/highlights",
		`{"text":"Channels","startOffset":"14","endOffset":"22"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, "alice", "GET", "/view/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<div class="article-content"><h1>Go Concurrency</h1>`)
	assert.Contains(t, rec.Body.String(), `>Channels</span>`)

	rec = env.do(t, "bob", "GET", "/view/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOps(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.saveArticle(t, "alice")

	rec := env.do(t, "", "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "", "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "readmark_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/api/articles"`)

	rec = env.do(t, "", "GET", "/static/style.css", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
