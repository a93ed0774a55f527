package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/woozymasta/geodraft/internal/geo"
)

// ErrInvalidTransition is returned when an import step is not allowed in the current state.
var ErrInvalidTransition = errors.New("invalid import transition")

// State of an Import.
type State int

// Import states.
const (
	StateIdle State = iota
	StateParsing
	StateReady
	StateFailed
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsing:
		return "parsing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateCommitted:
		return "committed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FilenameProperty is stamped on every feature of a confirmed import.
const FilenameProperty = "filename"

// Import walks one file through parse, review and confirmation.
type Import struct {
	importer *Importer

	mu        sync.Mutex
	state     State
	result    *ImportResult
	err       error
	committed geo.FeatureCollection
}

// NewImport returns an idle import.
func NewImport(im *Importer) *Import {
	return &Import{importer: im}
}

// State returns the current state.
func (i *Import) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Start parses a file. It is allowed from Idle, Failed and Committed and
// ends in Ready or Failed; the parse error is also returned.
func (i *Import) Start(ctx context.Context, filename string, data []byte, sourceCRS string) error {
	i.mu.Lock()
	switch i.state {
	case StateIdle, StateFailed, StateCommitted:
	default:
		s := i.state
		i.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s)
	}
	i.state = StateParsing
	i.result, i.err = nil, nil
	i.mu.Unlock()

	res, err := i.importer.Import(ctx, filename, data, sourceCRS)

	i.mu.Lock()
	defer i.mu.Unlock()
	if err != nil {
		i.state, i.err = StateFailed, err
		return err
	}
	i.state, i.result = StateReady, res
	return nil
}

// Result returns the pending result in Ready, or the failure in Failed.
func (i *Import) Result() (*ImportResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	switch i.state {
	case StateReady:
		return i.result, nil
	case StateFailed:
		return nil, i.err
	default:
		return nil, fmt.Errorf("%w: no result in %s", ErrInvalidTransition, i.state)
	}
}

// Confirm commits the pending result under name. A blank name keeps the
// suggested one. Every feature gets the name as its filename property.
func (i *Import) Confirm(name string) (geo.FeatureCollection, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateReady {
		return geo.FeatureCollection{}, fmt.Errorf("%w: confirm from %s", ErrInvalidTransition, i.state)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = i.result.Name
	}

	fc := i.result.Collection.Clone()
	fc.Name = name
	for k := range fc.Features {
		fc.Features[k].Properties.Set(FilenameProperty, name)
	}

	i.state, i.committed, i.result = StateCommitted, fc, nil
	return fc.Clone(), nil
}

// Decline drops the pending result or failure and returns to Idle.
func (i *Import) Decline() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	switch i.state {
	case StateReady, StateFailed:
		i.state, i.result, i.err = StateIdle, nil, nil
		return nil
	default:
		return fmt.Errorf("%w: decline from %s", ErrInvalidTransition, i.state)
	}
}

// Committed returns the last confirmed collection.
func (i *Import) Committed() (geo.FeatureCollection, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateCommitted {
		return geo.FeatureCollection{}, false
	}
	return i.committed.Clone(), true
}
