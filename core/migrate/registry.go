package migrate

import (
	"regexp"
	"sort"
)

// versionPattern is YYYYMMDD_NNNNNN. Lexical order of such versions is
// application order.
var versionPattern = regexp.MustCompile(`^\d{8}_\d{6}$`)

// Registry holds the known migrations keyed by version.
type Registry struct {
	byVersion map[string]Migration
}

// NewRegistry builds a registry from ms. Any invalid or duplicate version is
// reported as a *ConfigurationError before anything touches the database.
func NewRegistry(ms ...Migration) (*Registry, error) {
	r := &Registry{byVersion: make(map[string]Migration, len(ms))}
	if err := r.Register(ms...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds migrations to the registry. On error nothing is added.
func (r *Registry) Register(ms ...Migration) error {
	batch := make(map[string]struct{}, len(ms))
	for _, m := range ms {
		if m == nil {
			return &ConfigurationError{Reason: "nil migration"}
		}
		v := m.Version()
		if !versionPattern.MatchString(v) {
			return &ConfigurationError{Version: v, Reason: "version must match YYYYMMDD_NNNNNN"}
		}
		if _, ok := r.byVersion[v]; ok {
			return &ConfigurationError{Version: v, Reason: "duplicate version"}
		}
		if _, ok := batch[v]; ok {
			return &ConfigurationError{Version: v, Reason: "duplicate version"}
		}
		batch[v] = struct{}{}
	}
	for _, m := range ms {
		r.byVersion[m.Version()] = m
	}
	return nil
}

// Get returns the migration registered under version.
func (r *Registry) Get(version string) (Migration, bool) {
	m, ok := r.byVersion[version]
	return m, ok
}

// Len reports the number of registered migrations.
func (r *Registry) Len() int {
	return len(r.byVersion)
}

// Sorted returns the migrations in ascending version order.
func (r *Registry) Sorted() []Migration {
	out := make([]Migration, 0, len(r.byVersion))
	for _, m := range r.byVersion {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Version() < out[j].Version()
	})
	return out
}

// Versions returns the registered versions in ascending order.
func (r *Registry) Versions() []string {
	sorted := r.Sorted()
	out := make([]string, len(sorted))
	for i, m := range sorted {
		out[i] = m.Version()
	}
	return out
}
