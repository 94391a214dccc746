// Package adaptortest provides a mock backend and a registrable test adaptor
// kind for tests of code driving adaptors.
package adaptortest

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/waves/pkg/waves/adaptor"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
)

// Kind is the kind registered by Register.
const Kind adaptor.Kind = "test"

// Params are the parameters of the test kind.
type Params struct {
	Command       string `json:"command"`
	Host          string `json:"host"`
	CryptPassword string `json:"crypt_password"`
}

func (p *Params) InitParams() []adaptor.InitParam {
	return []adaptor.InitParam{
		{Name: "command", Value: p.Command, Required: true},
		{Name: "host", Value: p.Host, Required: true},
		{Name: "crypt_password", Value: p.CryptPassword},
	}
}

func (p *Params) ConnexionString() string { return "test://" + p.Host }

// MockBackend is a testify mock of adaptor.Backend.
type MockBackend struct{ mock.Mock }

func (m *MockBackend) Open(ctx context.Context) error      { return m.Called(ctx).Error(0) }
func (m *MockBackend) Close(ctx context.Context) error     { return m.Called(ctx).Error(0) }
func (m *MockBackend) Available(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockBackend) Prepare(ctx context.Context, job *model.Job) (string, error) {
	args := m.Called(ctx, job)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) Submit(ctx context.Context, job *model.Job) (string, error) {
	args := m.Called(ctx, job)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) Cancel(ctx context.Context, job *model.Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *MockBackend) Status(ctx context.Context, job *model.Job) (string, error) {
	args := m.Called(ctx, job)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) Results(ctx context.Context, job *model.Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *MockBackend) RunDetails(ctx context.Context, job *model.Job) (*model.RunDetails, error) {
	args := m.Called(ctx, job)
	d, _ := args.Get(0).(*model.RunDetails)
	return d, args.Error(1)
}

var _ adaptor.Backend = (*MockBackend)(nil)

// New builds a test adaptor over backend using the generic status table.
func New(p *Params, backend adaptor.Backend, machine *statemachine.Machine) *adaptor.JobAdaptor {
	return adaptor.NewJobAdaptor(Kind, "Test", p, backend, adaptor.GenericStates, machine)
}

// Register adds the test kind to r; every adaptor built shares backend.
func Register(r *adaptor.Registry, backend adaptor.Backend) {
	r.Register(adaptor.Factory{
		Kind:      Kind,
		Version:   1,
		Label:     "Test",
		NewParams: func() adaptor.Config { return &Params{} },
		Build: func(cfg adaptor.Config, machine *statemachine.Machine) (adaptor.Adaptor, error) {
			p, ok := cfg.(*Params)
			if !ok {
				return nil, fmt.Errorf("unexpected parameters %T", cfg)
			}
			return New(p, backend, machine), nil
		},
	})
}
