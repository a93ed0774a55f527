package edit

import (
	"github.com/woozymasta/geodraft/internal/geo"

	"github.com/rs/zerolog/log"
)

// Session collects drag deltas against a base collection until they are
// committed or discarded. It has no locking: callers serialize edits.
type Session struct {
	base    geo.FeatureCollection
	pending []Delta
}

// NewSession starts a session on a copy of fc.
func NewSession(fc geo.FeatureCollection) *Session {
	return &Session{base: fc.Clone()}
}

// Push queues a delta. It is rejected, and the queue left as it was, when
// it cannot be applied on top of the already pending ones.
func (s *Session) Push(d Delta) error {
	queue := append(s.Pending(), d)
	if _, err := Apply(s.base, queue...); err != nil {
		return err
	}
	s.pending = queue
	return nil
}

// Pending returns a copy of the queued deltas.
func (s *Session) Pending() []Delta {
	out := make([]Delta, len(s.pending))
	copy(out, s.pending)
	return out
}

// PendingFor returns the queued deltas of one feature.
func (s *Session) PendingFor(id string) []Delta {
	var out []Delta
	for _, d := range s.pending {
		if d.Feature == id {
			out = append(out, d)
		}
	}
	return out
}

// Preview returns the base with the pending deltas applied, without committing.
func (s *Session) Preview() (geo.FeatureCollection, error) {
	return Apply(s.base, s.pending...)
}

// Commit applies the pending deltas to the base and clears the queue.
func (s *Session) Commit() (geo.FeatureCollection, error) {
	fc, err := Apply(s.base, s.pending...)
	if err != nil {
		return geo.FeatureCollection{}, err
	}

	log.Debug().
		Str("collection", s.base.Name).
		Int("deltas", len(s.pending)).
		Msg("Edits committed")

	s.base = fc.Clone()
	s.pending = nil
	return fc, nil
}

// Discard drops the pending deltas. The base is unchanged.
func (s *Session) Discard() {
	s.pending = nil
}

// Base returns a copy of the committed collection.
func (s *Session) Base() geo.FeatureCollection {
	return s.base.Clone()
}
