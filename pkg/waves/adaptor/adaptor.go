// Package adaptor defines the uniform lifecycle contract over remote execution
// backends and the single concrete adaptor type, JobAdaptor, that composes a
// parameter struct with a backend strategy.
package adaptor

import (
	"context"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
)

// Kind identifies an adaptor variant in bindings and configuration.
type Kind string

const (
	KindLocalShell    Kind = "local-shell"
	KindSSHShell      Kind = "ssh-shell"
	KindSSHKeyShell   Kind = "ssh-key-shell"
	KindLocalCluster  Kind = "local-cluster"
	KindSSHCluster    Kind = "ssh-cluster"
	KindSSHKeyCluster Kind = "ssh-key-cluster"
	KindPublicAPI     Kind = "public-api"
	KindAPIKey        Kind = "api-key"
)

// Adaptor is the capability set every backend exposes.
type Adaptor interface {
	Kind() Kind
	// Name is the human readable variant name.
	Name() string
	// Params returns the typed parameter struct the adaptor was built from.
	Params() Config

	// Connect is idempotent. It fails with AdaptorNotReady when required
	// parameters are missing and with AdaptorConnectException on transport failure.
	Connect(ctx context.Context) error
	// Disconnect always clears the connection state. The returned error reports
	// teardown problems only.
	Disconnect(ctx context.Context) error
	Connected() bool
	// Ready reports whether all required parameters are set, and which are missing.
	Ready() (bool, []string)
	// Available checks that the backend answers.
	Available(ctx context.Context) bool
	// TestConnection connects and reports the connected flag.
	TestConnection(ctx context.Context) (bool, error)

	// Prepare requires status <= CREATED and moves the job to PREPARED.
	Prepare(ctx context.Context, job *model.Job) error
	// Run requires PREPARED, records the remote id and moves the job to QUEUED.
	Run(ctx context.Context, job *model.Job) error
	// Cancel requires status <= SUSPENDED and moves the job to CANCELLED
	// whatever the backend answers.
	Cancel(ctx context.Context, job *model.Job) error
	// PollStatus maps the backend native status to a canonical status. The job
	// status is left to the caller.
	PollStatus(ctx context.Context, job *model.Job) (model.JobStatus, error)
	// FetchResults copies result artifacts into the job working directory.
	FetchResults(ctx context.Context, job *model.Job) error
	// FetchRunDetails returns execution metadata from the backend.
	FetchRunDetails(ctx context.Context, job *model.Job) (*model.RunDetails, error)

	ConnexionString() string
	DumpConfig() string
}

// InitParam is one named configuration value of an adaptor.
type InitParam struct {
	Name     string
	Value    string
	Required bool
}

// Config is the typed, serializable parameter struct of one adaptor kind.
type Config interface {
	InitParams() []InitParam
	ConnexionString() string
}

// Backend is the strategy executing the lifecycle steps against one substrate.
// Methods receive a job already checked against its precondition.
type Backend interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Available(ctx context.Context) error
	// Prepare stages inputs and returns the resolved command line.
	Prepare(ctx context.Context, job *model.Job) (string, error)
	// Submit launches the job and returns the backend identifier.
	Submit(ctx context.Context, job *model.Job) (string, error)
	Cancel(ctx context.Context, job *model.Job) error
	// Status returns the backend native status of the job.
	Status(ctx context.Context, job *model.Job) (string, error)
	Results(ctx context.Context, job *model.Job) error
	RunDetails(ctx context.Context, job *model.Job) (*model.RunDetails, error)
}

// Describer is implemented by backends that add lines to DumpConfig.
type Describer interface {
	Describe() string
}
