package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/feeder/internal/model"
	"github.com/bryan-buckman/feeder/internal/registry"
	"github.com/bryan-buckman/feeder/internal/rss"
)

const (
	bbcURL     = "http://feeds.example.com/bbc.xml"
	reutersURL = "http://feeds.example.com/reuters.xml"
	brokenURL  = "http://feeds.example.com/broken.xml"
)

type fakeSource struct{}

func (fakeSource) Fetch(_ context.Context, url string) ([]model.RawItem, error) {
	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	switch url {
	case bbcURL:
		return []model.RawItem{{Title: "BBC headline", Link: "http://bbc/1", PublishedAt: &published}}, nil
	case reutersURL:
		return []model.RawItem{{Title: "Reuters headline", Description: "<b>wire</b>"}}, nil
	case brokenURL:
		return nil, &rss.ParseError{URL: url}
	default:
		return nil, &rss.FetchError{URL: url, StatusCode: http.StatusNotFound}
	}
}

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(fakeSource{}, registry.AggregateOptions{})
	require.NoError(t, reg.AddCategory("News"))
	require.NoError(t, reg.AddChannel(context.Background(), "BBC", bbcURL, "News"))
	return New(reg), reg
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestTree(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tree []model.CategoryInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tree))
	require.Len(t, tree, 1)
	assert.Equal(t, "News", tree[0].Name)
	assert.Equal(t, []model.ChannelInfo{{Name: "BBC", URL: bbcURL, Index: 0}}, tree[0].Channels)
}

func TestCategoryHandlers(t *testing.T) {
	s, reg := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"add", http.MethodPost, "/api/categories", `{"name":"World News"}`, http.StatusCreated},
		{"add duplicate", http.MethodPost, "/api/categories", `{"name":"News"}`, http.StatusConflict},
		{"add empty", http.MethodPost, "/api/categories", `{"name":" "}`, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/api/categories", `{`, http.StatusBadRequest},
		{"rename", http.MethodPut, "/api/categories/World%20News", `{"name":"World"}`, http.StatusOK},
		{"rename missing", http.MethodPut, "/api/categories/Sport", `{"name":"Sports"}`, http.StatusNotFound},
		{"remove non-empty", http.MethodDelete, "/api/categories/News", "", http.StatusConflict},
		{"remove", http.MethodDelete, "/api/categories/World", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, []string{"News"}, reg.ListCategoryNames())
}

func TestChannelHandlers(t *testing.T) {
	s, reg := newTestServer(t)
	require.NoError(t, reg.AddCategory("Wire"))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"add", http.MethodPost, "/api/categories/News/channels", `{"name":"Reuters","url":"` + reutersURL + `"}`, http.StatusCreated},
		{"add duplicate", http.MethodPost, "/api/categories/News/channels", `{"name":"BBC","url":"` + bbcURL + `"}`, http.StatusConflict},
		{"add bad url", http.MethodPost, "/api/categories/News/channels", `{"name":"X","url":"not a url"}`, http.StatusBadRequest},
		{"add unreachable", http.MethodPost, "/api/categories/News/channels", `{"name":"X","url":"http://feeds.example.com/missing"}`, http.StatusBadGateway},
		{"add unparseable", http.MethodPost, "/api/categories/News/channels", `{"name":"X","url":"` + brokenURL + `"}`, http.StatusBadGateway},
		{"add to missing category", http.MethodPost, "/api/categories/Sport/channels", `{"name":"X","url":"` + bbcURL + `"}`, http.StatusNotFound},
		{"rename onto sibling", http.MethodPut, "/api/categories/News/channels/Reuters", `{"name":"BBC"}`, http.StatusConflict},
		{"rename and move", http.MethodPut, "/api/categories/News/channels/Reuters", `{"name":"AP","category":"Wire"}`, http.StatusOK},
		{"update missing", http.MethodPut, "/api/categories/News/channels/Reuters", `{"url":"` + reutersURL + `"}`, http.StatusNotFound},
		{"change url", http.MethodPut, "/api/categories/Wire/channels/AP", `{"url":"` + bbcURL + `"}`, http.StatusOK},
		{"remove missing", http.MethodDelete, "/api/categories/News/channels/AP", "", http.StatusNotFound},
		{"remove", http.MethodDelete, "/api/categories/Wire/channels/AP", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	tree := reg.Tree()
	require.Len(t, tree, 2)
	assert.Equal(t, []model.ChannelInfo{{Name: "BBC", URL: bbcURL, Index: 0}}, tree[0].Channels)
	assert.Empty(t, tree[1].Channels)
}

func TestEntries(t *testing.T) {
	s, reg := newTestServer(t)
	require.NoError(t, reg.AddChannel(context.Background(), "Reuters", reutersURL, "News"))

	rec := do(t, s, http.MethodGet, "/api/categories/News/entries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view model.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "News", view.Title)
	assert.Equal(t, "News"+model.AggregatedSuffix, view.Description)
	assert.True(t, view.Aggregated)
	require.Len(t, view.Entries, 2)
	assert.Equal(t, "BBC headline", view.Entries[0].Title)
	assert.Equal(t, "BBC", view.Entries[0].SourceChannel)
	assert.Equal(t, "wire", view.Entries[1].Description)

	rec = do(t, s, http.MethodGet, "/api/categories/News/channels/BBC/entries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view = model.View{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "BBC", view.Title)
	assert.False(t, view.Aggregated)
	require.Len(t, view.Entries, 1)
	assert.Empty(t, view.Entries[0].SourceChannel)

	rec = do(t, s, http.MethodGet, "/api/categories/Sport/entries", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidate(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/validate", `{"url":"`+bbcURL+`"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/validate", `{"url":"ftp://x"}`).Code)
	assert.Equal(t, http.StatusBadGateway, do(t, s, http.MethodPost, "/api/validate", `{"url":"`+brokenURL+`"}`).Code)
}

func TestOPMLExportImport(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/export-opml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `xmlUrl="`+bbcURL+`"`)

	doc := `<opml version="2.0"><body>
<outline text="News"><outline text="BBC" xmlUrl="` + bbcURL + `"/></outline>
<outline text="Wire"><outline text="Reuters" xmlUrl="` + reutersURL + `"/></outline>
</body></opml>`
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("opml", "feeds.opml")
	require.NoError(t, err)
	_, err = part.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import-opml", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	out := httptest.NewRecorder()
	s.Handler().ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code, out.Body.String())
	assert.JSONEq(t, `{"total":2,"imported":1,"skipped":1,"failed":0}`, out.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.Canceled))
	assert.Equal(t, http.StatusNotFound, statusFor(&registry.ConflictError{Kind: registry.ChannelNotFound}))
	assert.Equal(t, http.StatusConflict, statusFor(&registry.ConflictError{Kind: registry.CategoryNotEmpty}))
}

func TestStartStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestEscapedCategoryNames(t *testing.T) {
	s, reg := newTestServer(t)
	require.NoError(t, reg.AddCategory("a%41"))
	require.NoError(t, reg.AddCategory("a/b"))

	tests := []struct {
		path string
		want string
	}{
		{"/api/categories/a%2541/entries", "a%41"},
		{"/api/categories/a%2Fb/entries", "a/b"},
		{"/api/categories/News/entries", "News"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.path, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var view model.View
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
			assert.Equal(t, tt.want, view.Title)
		})
	}
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/categories/aA/entries", "").Code)
}
