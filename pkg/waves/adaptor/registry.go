package adaptor

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
	"github.com/tigerroll/waves/pkg/waves/support/util/serialization"
)

const registryModule = "adaptor.registry"

// ErrAdaptorNotFound is returned when a kind is unknown or not enabled.
var ErrAdaptorNotFound = errors.New("adaptor not found")

func init() {
	exception.RegisterErrorType("ErrAdaptorNotFound", ErrAdaptorNotFound)
}

// Factory describes how to build one adaptor kind.
type Factory struct {
	Kind Kind
	// Version is the schema version of the parameter struct.
	Version int
	Label   string
	// NewParams returns a pointer to a parameter struct holding the defaults.
	NewParams func() Config
	// Build creates the adaptor from decoded parameters.
	Build func(params Config, machine *statemachine.Machine) (Adaptor, error)
}

// Registry maps kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// Register adds or replaces a factory.
func (r *Registry) Register(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[f.Kind] = f
}

// Factory returns the factory of kind.
func (r *Registry) Factory(kind Kind) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds lists registered kinds in lexical order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// DecodeParams turns a loose parameter map into the typed parameter struct of
// f, starting from its defaults. Unknown keys are rejected.
func DecodeParams(f Factory, params map[string]interface{}) (Config, error) {
	cfg := f.NewParams()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Squash:           true,
		Result:           cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(params); err != nil {
		return nil, exception.NewAdaptorLoadError(registryModule, fmt.Sprintf("invalid parameters for adaptor %s", f.Kind), err)
	}
	return cfg, nil
}

// EncodeBinding serializes an adaptor into its binding.
func EncodeBinding(r *Registry, a Adaptor) (model.AdaptorBinding, error) {
	f, ok := r.Factory(a.Kind())
	if !ok {
		return model.AdaptorBinding{}, exception.NewAdaptorLoadError(registryModule, fmt.Sprintf("adaptor kind %s is not registered", a.Kind()), ErrAdaptorNotFound)
	}
	params, err := serialization.Marshal(a.Params())
	if err != nil {
		return model.AdaptorBinding{}, exception.NewAdaptorLoadError(registryModule, "unable to encode adaptor parameters", err)
	}
	return model.AdaptorBinding{Kind: string(f.Kind), Version: f.Version, Params: params}, nil
}

// DecodeBinding rebuilds an adaptor from its binding.
func DecodeBinding(r *Registry, b model.AdaptorBinding, machine *statemachine.Machine) (Adaptor, error) {
	f, ok := r.Factory(Kind(b.Kind))
	if !ok {
		return nil, exception.NewAdaptorLoadError(registryModule, fmt.Sprintf("unknown adaptor kind %q", b.Kind), ErrAdaptorNotFound)
	}
	if b.Version != f.Version {
		return nil, exception.NewAdaptorLoadError(registryModule, fmt.Sprintf("unsupported parameter version %d for adaptor %s (expected %d)", b.Version, b.Kind, f.Version), nil)
	}
	cfg := f.NewParams()
	if len(b.Params) > 0 {
		if err := serialization.UnmarshalStrict(b.Params, cfg); err != nil {
			return nil, exception.NewAdaptorLoadError(registryModule, fmt.Sprintf("corrupted parameters for adaptor %s", b.Kind), err)
		}
	}
	a, err := f.Build(cfg, machine)
	if err != nil {
		return nil, exception.NewAdaptorLoadError(registryModule, fmt.Sprintf("unable to build adaptor %s", b.Kind), err)
	}
	return a, nil
}
