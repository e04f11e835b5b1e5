package transport

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/throttlehq/throttle/internal/errors"
)

// Registry maps a URI scheme to the Adapter that serves it, grounded on
// internal/backend/location/registry.go's Register/Lookup shape.
type Registry struct {
	factories map[string]Adapter
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Adapter)}
}

// Register adds adapter under its own Scheme(). Registering the same scheme
// twice panics, matching the teacher's registry ("duplicate backend") — a
// programming error, not a runtime condition.
func (r *Registry) Register(adapter Adapter) {
	scheme := adapter.Scheme()
	if _, exists := r.factories[scheme]; exists {
		panic(fmt.Sprintf("transport: duplicate adapter for scheme %q", scheme))
	}
	r.factories[scheme] = adapter
}

// Lookup resolves uri's scheme to an Adapter, or InvalidInput if no adapter
// is registered for it (spec.md §4.3 step 2, "choose the adapter from the
// URI scheme").
func (r *Registry) Lookup(uri string) (Adapter, error) {
	scheme, err := SchemeOf(uri)
	if err != nil {
		return nil, err
	}
	adapter, ok := r.factories[scheme]
	if !ok {
		return nil, errors.Classify(errors.KindInvalidInput, errors.Errorf("unsupported scheme %q", scheme))
	}
	return adapter, nil
}

// SchemeOf extracts the scheme from uri. A data: URI and a bare local path
// are both handled explicitly since url.Parse treats them differently from
// the schemes with "://".
func SchemeOf(uri string) (string, error) {
	if strings.HasPrefix(uri, "data:") {
		return "data", nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Classify(errors.KindInvalidInput, errors.Wrap(err, "parse uri"))
	}
	if u.Scheme == "" {
		return "file", nil
	}
	return strings.ToLower(u.Scheme), nil
}
