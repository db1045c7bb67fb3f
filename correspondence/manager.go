package correspondence

import (
	"github.com/pkg/errors"
)

// Manager owns one LocalMap per configured feature kind, keyed by the feature definition's name
// (e.g. "edge", "planar"). Component G queries it once per feature point per iteration.
type Manager struct {
	maps map[string]*LocalMap
}

// NewManager builds a Manager with one empty local map per feature kind name, all sharing the
// given TTL and maintenance range.
func NewManager(featureKinds []string, ttl int32, localMapRange float64) (*Manager, error) {
	if len(featureKinds) == 0 {
		return nil, errors.New("correspondence manager requires at least one feature kind")
	}
	maps := make(map[string]*LocalMap, len(featureKinds))
	for _, name := range featureKinds {
		lm, err := NewLocalMap(ttl, localMapRange)
		if err != nil {
			return nil, errors.Wrapf(err, "building local map for feature kind %q", name)
		}
		maps[name] = lm
	}
	return &Manager{maps: maps}, nil
}

// Map returns the local map for the given feature kind, or nil if it is not configured.
func (mgr *Manager) Map(featureKind string) *LocalMap {
	return mgr.maps[featureKind]
}

// BuildTrees runs the once-per-sweep maintenance pass on every local map.
func (mgr *Manager) BuildTrees() error {
	for name, lm := range mgr.maps {
		if err := lm.BuildTrees(); err != nil {
			return errors.Wrapf(err, "building trees for feature kind %q", name)
		}
	}
	return nil
}
