package session

import (
	"fmt"

	"github.com/cirrus-hq/cirrus/internal/core"
)

// Factory is the dispatch table from session-type tag to the concrete
// Service able to operate on it. Every component in the core resolves
// services through it instead of depending on concrete types.
type Factory struct {
	services map[core.SessionType]Service
}

// NewFactory creates an empty factory. Services are registered after
// construction because some of them hold the factory itself, to resolve the
// services of dependent sessions during cascades.
func NewFactory() *Factory {
	return &Factory{services: make(map[core.SessionType]Service)}
}

// Register binds a session type to its service.
func (f *Factory) Register(t core.SessionType, svc Service) {
	f.services[t] = svc
}

// ServiceFor resolves the service for a session type. An unknown tag is a
// wiring bug, reported as an error rather than a panic.
func (f *Factory) ServiceFor(t core.SessionType) (Service, error) {
	svc, ok := f.services[t]
	if !ok {
		return nil, fmt.Errorf("no session service registered for type %q", t)
	}
	return svc, nil
}
