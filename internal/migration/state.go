package migration

import (
	"fmt"
	"slices"

	"github.com/memberbridge/memberbridge/internal/member"
)

// State is the position of one member in the pipeline.
type State string

const (
	StateExtracted       State = "extracted"
	StateNormalized      State = "normalized"
	StateAssetsResolved  State = "assets_resolved"
	StateAssetsRelocated State = "assets_relocated"
	StateLoaded          State = "loaded"
	StateSkipped         State = "skipped"
	StateFailed          State = "failed"
)

// forward lists the single successor of each non-terminal state.
var forward = map[State]State{
	StateExtracted:       StateNormalized,
	StateNormalized:      StateAssetsResolved,
	StateAssetsResolved:  StateAssetsRelocated,
	StateAssetsRelocated: StateLoaded,
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateLoaded || s == StateSkipped || s == StateFailed
}

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateSkipped || next == StateFailed {
		return true
	}
	return forward[s] == next
}

// Stage names a pipeline entry point.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageRelocate Stage = "relocate"
	StageLoad     Stage = "load"
	StageMigrate  Stage = "migrate"
)

// Item carries one member through the stages. It is the unit written to the
// staging files.
type Item struct {
	ExternalID int64                  `json:"external_id"`
	State      State                  `json:"state"`
	Record     *member.Record         `json:"record,omitempty"`
	Assets     member.RelocatedAssets `json:"assets"`
	Duplicate  bool                   `json:"duplicate,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// advance moves the item to next, rejecting out-of-order transitions.
func (it *Item) advance(next State) error {
	if !it.State.CanTransition(next) {
		return fmt.Errorf("member %d: invalid transition %s -> %s", it.ExternalID, it.State, next)
	}
	it.State = next
	return nil
}

func (it *Item) fail(err error) {
	it.State = StateFailed
	it.Error = err.Error()
}

func (it *Item) email() string {
	if it.Record == nil {
		return ""
	}
	return it.Record.Email
}

// pending returns the items currently in state want.
func pending(items []*Item, want State) []*Item {
	return slices.DeleteFunc(slices.Clone(items), func(it *Item) bool {
		return it.State != want
	})
}
