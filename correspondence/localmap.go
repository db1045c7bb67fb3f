// Package correspondence maintains a per-feature-kind local map of previously observed feature
// points and answers nearest-neighbor correspondence queries against it, gated by a distance
// radius, an azimuthal-bin diversity rule, and an extrapolation check on point-to-line matches.
package correspondence

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/wave-robotics/laserodom/spatialindex"
)

// Status is the correspondence state of a local-map entry during the current sweep.
type Status int

const (
	Uncorresponded Status = iota
	Corresponded
)

// Entry is one tracked feature point in the map frame.
type Entry struct {
	Position r3.Vector
	TTL      int32
	Status   Status
}

// LocalMap owns the entries and spatial index for a single feature kind (e.g. edge or planar
// points). Entries are inserted on promotion, aged every sweep by buildTrees, and evicted once
// their TTL is exhausted or they leave the configured range.
type LocalMap struct {
	entries       []Entry
	index         *spatialindex.Index
	ttl           int32
	localMapRange float64
}

// NewLocalMap returns an empty local map with the given full TTL and maintenance range.
func NewLocalMap(ttl int32, localMapRange float64) (*LocalMap, error) {
	if ttl <= 0 {
		return nil, errors.New("local map TTL must be positive")
	}
	if localMapRange <= 0 {
		return nil, errors.New("local map range must be positive")
	}
	return &LocalMap{ttl: ttl, localMapRange: localMapRange}, nil
}

// Promote inserts a newly selected feature point into the map at full TTL, uncorresponded.
func (m *LocalMap) Promote(position r3.Vector) {
	m.entries = append(m.entries, Entry{Position: position, TTL: m.ttl, Status: Uncorresponded})
}

// Size returns the number of live entries.
func (m *LocalMap) Size() int {
	return len(m.entries)
}

// Entries exposes the live entry set read-only, for invariant checks and tests.
func (m *LocalMap) Entries() []Entry {
	return m.entries
}

// BuildTrees performs the once-per-sweep local-map maintenance pass: entries beyond
// local_map_range are dropped; a entry that participated in a correspondence last sweep has its
// status reset and TTL refreshed to full; every surviving entry's TTL is then decremented exactly
// once. An entry whose TTL reaches zero here is evicted on the next call, not this one — matching
// the single-decrement resolution of the original's ambiguous double-decrement branch. The
// spatial index is rebuilt from the surviving set.
func (m *LocalMap) BuildTrees() error {
	kept := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Position.Norm() > m.localMapRange || e.TTL <= 0 {
			continue
		}
		if e.Status == Corresponded {
			e.Status = Uncorresponded
			e.TTL = m.ttl
		}
		e.TTL--
		kept = append(kept, e)
	}
	m.entries = kept
	return m.rebuildIndex()
}

func (m *LocalMap) rebuildIndex() error {
	if len(m.entries) == 0 {
		m.index = nil
		return nil
	}
	points := make([]r3.Vector, len(m.entries))
	data := make([]int, len(m.entries))
	for i, e := range m.entries {
		points[i] = e.Position
		data[i] = i
	}
	idx, err := spatialindex.Rebuild(points, data)
	if err != nil {
		return errors.Wrap(err, "rebuilding local map spatial index")
	}
	m.index = idx
	return nil
}

// markCorresponded resets the TTL and status of the entries at the given indices, called once a
// correspondence query succeeds.
func (m *LocalMap) markCorresponded(indices []int) {
	for _, i := range indices {
		m.entries[i].Status = Corresponded
		m.entries[i].TTL = m.ttl
	}
}
