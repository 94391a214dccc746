// Package api runs jobs on a remote job service exposing a REST API, either
// public or protected by an application key.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tigerroll/waves/pkg/waves/adaptor"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/job/command"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

type jobResource struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type outputResource struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type detailsResource struct {
	ExitCode int       `json:"exit_code"`
	Created  time.Time `json:"created"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Message  string    `json:"message"`
}

// Backend talks to the job service:
//
//	POST   jobs                      submit (multipart form)
//	GET    jobs/{id}                 state
//	DELETE jobs/{id}                 cancel
//	GET    jobs/{id}/outputs         list outputs
//	GET    jobs/{id}/outputs/{name}  download one output
//	GET    jobs/{id}/details         run details
type Backend struct {
	settings settings
	client   *client
}

func NewBackend(s settings) *Backend {
	return &Backend{settings: s}
}

func (b *Backend) Open(ctx context.Context) error {
	if b.client == nil {
		b.client = newClient(b.settings)
	}
	return nil
}

func (b *Backend) Close(_ context.Context) error {
	if b.client != nil {
		b.client.http.CloseIdleConnections()
	}
	b.client = nil
	return nil
}

// Available lists the jobs collection to check the service answers.
func (b *Backend) Available(ctx context.Context) error {
	c := newClient(b.settings)
	var jobs []jobResource
	return c.getJSON(ctx, &jobs, "jobs")
}

func (b *Backend) Prepare(_ context.Context, job *model.Job) (string, error) {
	return command.Build(b.settings.base().Command, job.Inputs)
}

func (b *Backend) Submit(ctx context.Context, job *model.Job) (string, error) {
	fields := map[string]string{"tool": b.settings.base().Command}
	files := map[string]string{}
	for _, in := range job.Inputs {
		if in.IsFile() {
			if in.Value != "" {
				files[in.Name] = filepath.Join(job.WorkingDir, in.Value)
			}
			continue
		}
		fields[in.Name] = in.Value
	}
	var res jobResource
	if err := b.client.postForm(ctx, &res, fields, files, "jobs"); err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", errors.New("job service returned no job id")
	}
	return res.ID, nil
}

func (b *Backend) Cancel(ctx context.Context, job *model.Job) error {
	return b.client.delete(ctx, "jobs", job.RemoteJobID)
}

// Status returns the remote state; a job the service no longer knows has no state.
func (b *Backend) Status(ctx context.Context, job *model.Job) (string, error) {
	var res jobResource
	if err := b.client.getJSON(ctx, &res, "jobs", job.RemoteJobID); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	return res.State, nil
}

// Results downloads every remote output into the working directory and warns
// about declared outputs the service did not produce.
func (b *Backend) Results(ctx context.Context, job *model.Job) error {
	var outputs []outputResource
	if err := b.client.getJSON(ctx, &outputs, "jobs", job.RemoteJobID, "outputs"); err != nil {
		return err
	}
	for _, o := range outputs {
		name := filepath.Clean(o.Name)
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			return fmt.Errorf("refusing output name %q", o.Name)
		}
		if err := b.client.download(ctx, filepath.Join(job.WorkingDir, name), "jobs", job.RemoteJobID, "outputs", o.Name); err != nil {
			return fmt.Errorf("download output %s: %w", o.Name, err)
		}
	}
	for _, want := range job.Outputs {
		found := false
		for _, o := range outputs {
			if ok, _ := doublestar.Match(want.Value, o.Name); ok {
				found = true
				break
			}
		}
		if !found && !want.Optional {
			logger.Warnf("Job %s: expected output %s (%s) not returned by %s", job.Slug, want.Name, want.Value, b.settings.ConnexionString())
		}
	}
	return nil
}

func (b *Backend) RunDetails(ctx context.Context, job *model.Job) (*model.RunDetails, error) {
	var res detailsResource
	if err := b.client.getJSON(ctx, &res, "jobs", job.RemoteJobID, "details"); err != nil {
		return nil, err
	}
	job.ExitCode = res.ExitCode
	return &model.RunDetails{
		ID:          job.ID,
		Slug:        job.Slug,
		RemoteJobID: job.RemoteJobID,
		Title:       job.Title,
		ExitCode:    res.ExitCode,
		Created:     res.Created,
		Started:     res.Started,
		Finished:    res.Finished,
		Extra:       res.Message,
	}, nil
}

func (b *Backend) Describe() string {
	return fmt.Sprintf("Service URL: %s\n", b.settings.base().CompleteURL())
}

// Register adds the API kinds to r.
func Register(r *adaptor.Registry) {
	r.Register(adaptor.Factory{
		Kind:    adaptor.KindPublicAPI,
		Version: ParamsVersion,
		Label:   "Public REST API",
		NewParams: func() adaptor.Config {
			p := DefaultParams()
			return &p
		},
		Build: func(cfg adaptor.Config, machine *statemachine.Machine) (adaptor.Adaptor, error) {
			p, ok := cfg.(*Params)
			if !ok {
				return nil, fmt.Errorf("unexpected parameters %T", cfg)
			}
			return adaptor.NewJobAdaptor(adaptor.KindPublicAPI, "Public REST API", p, NewBackend(p), adaptor.APIStates, machine), nil
		},
	})
	r.Register(adaptor.Factory{
		Kind:    adaptor.KindAPIKey,
		Version: ParamsVersion,
		Label:   "REST API with application key",
		NewParams: func() adaptor.Config {
			return &KeyParams{Params: DefaultParams()}
		},
		Build: func(cfg adaptor.Config, machine *statemachine.Machine) (adaptor.Adaptor, error) {
			p, ok := cfg.(*KeyParams)
			if !ok {
				return nil, fmt.Errorf("unexpected parameters %T", cfg)
			}
			return adaptor.NewJobAdaptor(adaptor.KindAPIKey, "REST API with application key", p, NewBackend(p), adaptor.APIStates, machine), nil
		},
	})
}
