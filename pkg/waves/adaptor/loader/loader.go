// Package loader instantiates adaptors by kind and rebinds jobs to the exact
// adaptor configuration they were created with.
package loader

import (
	"encoding/json"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/waves/pkg/waves/adaptor"
	"github.com/tigerroll/waves/pkg/waves/adaptor/api"
	"github.com/tigerroll/waves/pkg/waves/adaptor/cluster"
	"github.com/tigerroll/waves/pkg/waves/adaptor/shell"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

const module = "adaptor.loader"

// DefaultRegistry returns a registry holding every built-in adaptor kind.
func DefaultRegistry() *adaptor.Registry {
	r := adaptor.NewRegistry()
	shell.Register(r)
	cluster.Register(r)
	api.Register(r)
	return r
}

// Loader restricts a registry to the enabled kinds and binds the adaptors it
// builds to the shared state machine.
type Loader struct {
	registry *adaptor.Registry
	machine  *statemachine.Machine
	enabled  map[adaptor.Kind]bool
}

// New creates a Loader.
//
// Parameters:
//
//	registry: The adaptor factories.
//	machine: The state machine injected into every adaptor built.
//	enabled: The enabled kinds. When empty every registered kind is enabled.
//
// Returns:
//
//	A Loader, or an AdaptorLoadError when an enabled kind is not registered.
func New(registry *adaptor.Registry, machine *statemachine.Machine, enabled ...string) (*Loader, error) {
	l := &Loader{registry: registry, machine: machine, enabled: make(map[adaptor.Kind]bool)}
	for _, k := range enabled {
		if _, ok := registry.Factory(adaptor.Kind(k)); !ok {
			return nil, exception.NewAdaptorLoadError(module, fmt.Sprintf("enabled adaptor %q is not registered", k), adaptor.ErrAdaptorNotFound)
		}
		l.enabled[adaptor.Kind(k)] = true
	}
	if len(l.enabled) == 0 {
		for _, k := range registry.Kinds() {
			l.enabled[k] = true
		}
	}
	return l, nil
}

// Registry returns the underlying registry.
func (l *Loader) Registry() *adaptor.Registry { return l.registry }

// Kinds lists the enabled kinds in lexical order.
func (l *Loader) Kinds() []adaptor.Kind {
	var kinds []adaptor.Kind
	for _, k := range l.registry.Kinds() {
		if l.enabled[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Adaptors returns one adaptor per enabled kind, built from the defaults.
func (l *Loader) Adaptors() []adaptor.Adaptor {
	var out []adaptor.Adaptor
	for _, k := range l.Kinds() {
		a, err := l.Load(string(k), nil)
		if err != nil {
			logger.Warnf("Adaptor %s cannot be built from its defaults: %v", k, err)
			continue
		}
		out = append(out, a)
	}
	return out
}

func (l *Loader) factory(kind string) (adaptor.Factory, error) {
	f, ok := l.registry.Factory(adaptor.Kind(kind))
	if !ok || !l.enabled[f.Kind] {
		return adaptor.Factory{}, exception.NewAdaptorLoadError(module, fmt.Sprintf("adaptor %q not found", kind), adaptor.ErrAdaptorNotFound)
	}
	return f, nil
}

// Load returns a configured but not connected adaptor of kind. Parameters
// override the kind defaults; unknown parameter names are rejected.
func (l *Loader) Load(kind string, params map[string]interface{}) (adaptor.Adaptor, error) {
	f, err := l.factory(kind)
	if err != nil {
		return nil, err
	}
	cfg, err := adaptor.DecodeParams(f, params)
	if err != nil {
		return nil, err
	}
	a, err := f.Build(cfg, l.machine)
	if err != nil {
		return nil, exception.NewAdaptorLoadError(module, fmt.Sprintf("unable to build adaptor %s", kind), err)
	}
	return a, nil
}

// Serialize snapshots the kind and parameters of a.
func (l *Loader) Serialize(a adaptor.Adaptor) (model.AdaptorBinding, error) {
	return adaptor.EncodeBinding(l.registry, a)
}

// Unserialize rebuilds the adaptor a binding was produced from. Bindings of
// disabled kinds still load: a job keeps the adaptor it was created with.
func (l *Loader) Unserialize(b model.AdaptorBinding) (adaptor.Adaptor, error) {
	return adaptor.DecodeBinding(l.registry, b, l.machine)
}

// Marshal encodes a binding as an opaque string.
func Marshal(b model.AdaptorBinding) (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", exception.NewAdaptorLoadError(module, "unable to encode adaptor binding", err)
	}
	return string(data), nil
}

// Unmarshal decodes a string produced by Marshal.
func Unmarshal(s string) (model.AdaptorBinding, error) {
	var b model.AdaptorBinding
	if err := json.Unmarshal([]byte(s), &b); err != nil {
		return b, exception.NewAdaptorLoadError(module, "corrupted adaptor binding", err)
	}
	return b, nil
}

// Params is what NewFromConfig needs from the application.
type Params struct {
	fx.In
	Machine *statemachine.Machine
	Enabled []string `name:"enabledAdaptors"`
}

// NewFromConfig builds a Loader over the default registry.
func NewFromConfig(p Params) (*Loader, error) {
	return New(DefaultRegistry(), p.Machine, p.Enabled...)
}
