package backend

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Constructor builds a fresh, unconnected Backend for one URL scheme.
type Constructor func() Backend

// Registry maps a connection URL's scheme to the Constructor that builds
// the matching Backend, the Go analogue of yoyo.backends.base.get_backend's
// registry of scheme -> backend class. Unlike the Python original, which
// discovers backend modules by import, each driver file here registers
// itself explicitly from an init() function, giving one object constructed
// once at process start-up that New dispatches through.
type Registry struct {
	mu  sync.Mutex
	ctr map[string]Constructor
}

var defaultRegistry = &Registry{ctr: make(map[string]Constructor)}

// register adds scheme -> ctor to the default registry. Called only from
// the init() functions in postgres.go, mysql.go and sqlite.go.
func register(scheme string, ctor Constructor) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.ctr[scheme] = ctor
}

// New dispatches on a connection URL's scheme to construct the matching
// Backend via the default registry.
//
// Recognized schemes: postgres(ql), mysql, sqlite(3), file (an alias for
// sqlite — a bare database file path, as the original tool's sqlite
// backend also accepts).
func New(rawURL string) (Backend, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid connection url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	// Schemes may carry a +driver suffix (e.g. postgres+psycopg2 in the
	// original); only the part before + selects the dialect.
	if i := strings.Index(scheme, "+"); i >= 0 {
		scheme = scheme[:i]
	}

	defaultRegistry.mu.Lock()
	ctor, ok := defaultRegistry.ctr[scheme]
	defaultRegistry.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
	return ctor(), nil
}
