package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/waves/pkg/waves/adaptor"
	"github.com/tigerroll/waves/pkg/waves/adaptor/api"
	"github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
)

// fakeService is an in-memory job service.
type fakeService struct {
	mu      sync.Mutex
	appKey  string
	states  map[string]string
	forms   map[string]url.Values
	uploads map[string]string
	cancels int
}

func newFakeService(appKey string) *fakeService {
	return &fakeService{appKey: appKey, states: map[string]string{}, forms: map[string]url.Values{}, uploads: map[string]string{}}
}

func (s *fakeService) router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if s.appKey != "" && req.URL.Query().Get("app_key") != s.appKey {
				http.Error(w, "bad key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api/v2/jobs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode([]interface{}{})
		})
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			if err := req.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.mu.Lock()
			id := "r" + strconv.Itoa(len(s.states)+1)
			s.states[id] = "queued"
			s.forms[id] = url.Values(req.MultipartForm.Value)
			for name, fhs := range req.MultipartForm.File {
				f, _ := fhs[0].Open()
				data, _ := io.ReadAll(f)
				f.Close()
				s.uploads[name] = string(data)
			}
			s.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "state": "queued"})
		})
		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			s.mu.Lock()
			state, ok := s.states[chi.URLParam(req, "id")]
			s.mu.Unlock()
			if !ok {
				http.NotFound(w, req)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": chi.URLParam(req, "id"), "state": state})
		})
		r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
			s.mu.Lock()
			s.states[chi.URLParam(req, "id")] = "deleted"
			s.cancels++
			s.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		})
		r.Get("/{id}/outputs", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{{"name": "result.txt", "size": 3}})
		})
		r.Get("/{id}/outputs/{name}", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("42\n"))
		})
		r.Get("/{id}/details", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"exit_code": 0,
				"started":   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
				"finished":  time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC),
			})
		})
	})
	return r
}

func (s *fakeService) set(id, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = state
}

func build(t *testing.T, kind adaptor.Kind, params map[string]interface{}) adaptor.Adaptor {
	t.Helper()
	r := adaptor.NewRegistry()
	api.Register(r)
	f, ok := r.Factory(kind)
	require.True(t, ok)
	cfg, err := adaptor.DecodeParams(f, params)
	require.NoError(t, err)
	a, err := f.Build(cfg, nil)
	require.NoError(t, err)
	return a
}

func serverParams(t *testing.T, srv *httptest.Server) map[string]interface{} {
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return map[string]interface{}{
		"command":             "blast",
		"host":                u.Hostname(),
		"port":                u.Port(),
		"api_base_path":       "/api/",
		"api_endpoint":        "v2",
		"requests_per_second": 0,
	}
}

func TestCompleteURL(t *testing.T) {
	p := api.DefaultParams()
	p.Host = "galaxy.example.org"
	assert.Equal(t, "http://galaxy.example.org", p.CompleteURL())
	p.Protocol = "https"
	p.Port = 8443
	p.APIBasePath = "/api"
	p.APIEndpoint = "tools/"
	assert.Equal(t, "https://galaxy.example.org:8443/api/tools", p.CompleteURL())
}

func TestAPIKeyLifecycle(t *testing.T) {
	svc := newFakeService("k3y")
	srv := httptest.NewServer(svc.router())
	defer srv.Close()

	params := serverParams(t, srv)
	params["crypt_app_key"] = "k3y"
	a := build(t, adaptor.KindAPIKey, params)
	ctx := context.Background()

	assert.True(t, a.Available(ctx))

	job := model.NewJob("blast run", "blast")
	job.WorkingDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(job.WorkingDir, "q.fa"), []byte(">q\nMK\n"), 0o664))
	job.Inputs = []model.JobInput{
		{Name: "query", Value: "q.fa", Type: model.InputFile, CmdFormat: model.CmdSimple},
		{Name: "evalue", Value: "0.01", Type: model.InputDecimal, CmdFormat: model.CmdValuated},
	}
	job.Outputs = []model.JobOutput{{Name: "hits", Value: "*.txt"}}

	require.NoError(t, a.Prepare(ctx, job))
	assert.Equal(t, model.StatusPrepared, job.Status)

	require.NoError(t, a.Run(ctx, job))
	assert.Equal(t, "r1", job.RemoteJobID)
	assert.Equal(t, ">q\nMK\n", svc.uploads["query"])
	assert.Equal(t, "0.01", svc.forms["r1"].Get("evalue"))
	assert.Equal(t, "blast", svc.forms["r1"].Get("tool"))

	s, err := a.PollStatus(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, s)

	svc.set("r1", "ok")
	s, err = a.PollStatus(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, s)

	job.Status = model.StatusCompleted
	require.NoError(t, a.FetchResults(ctx, job))
	data, err := os.ReadFile(filepath.Join(job.WorkingDir, "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "42\n", string(data))

	d, err := a.FetchRunDetails(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d.Finished.Sub(d.Started))
	require.NoError(t, a.Disconnect(ctx))
}

func TestWrongAppKey(t *testing.T) {
	svc := newFakeService("k3y")
	srv := httptest.NewServer(svc.router())
	defer srv.Close()

	params := serverParams(t, srv)
	params["crypt_app_key"] = "nope"
	a := build(t, adaptor.KindAPIKey, params)

	assert.False(t, a.Available(context.Background()))
	job := &model.Job{Slug: "x", Status: model.StatusPrepared, WorkingDir: t.TempDir()}
	err := a.Run(context.Background(), job)
	assert.True(t, exception.IsKind(err, exception.KindJobRun))
	assert.Contains(t, exception.ExtractErrorMessage(err), "HTTP 401")
}

func TestUnknownRemoteJobIsUndefined(t *testing.T) {
	svc := newFakeService("")
	srv := httptest.NewServer(svc.router())
	defer srv.Close()

	a := build(t, adaptor.KindPublicAPI, serverParams(t, srv))
	job := &model.Job{Slug: "x", Status: model.StatusRunning, RemoteJobID: "gone"}
	s, err := a.PollStatus(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUndefined, s)
}

func TestCancelDeletesRemoteJob(t *testing.T) {
	svc := newFakeService("")
	srv := httptest.NewServer(svc.router())
	defer srv.Close()

	a := build(t, adaptor.KindPublicAPI, serverParams(t, srv))
	svc.set("r9", "running")
	job := &model.Job{Slug: "x", Status: model.StatusRunning, RemoteJobID: "r9", WorkingDir: t.TempDir()}
	require.NoError(t, a.Cancel(context.Background(), job))
	assert.Equal(t, model.StatusCancelled, job.Status)
	assert.Equal(t, 1, svc.cancels)
}

func TestPublicAPIDoesNotRequireKey(t *testing.T) {
	a := build(t, adaptor.KindPublicAPI, map[string]interface{}{"command": "blast"})
	ok, missing := a.Ready()
	assert.True(t, ok)
	assert.Empty(t, missing)

	k := build(t, adaptor.KindAPIKey, map[string]interface{}{"command": "blast"})
	ok, missing = k.Ready()
	assert.False(t, ok)
	assert.Equal(t, []string{"crypt_app_key"}, missing)
	assert.NotContains(t, k.DumpConfig(), "k3y")
}
