package session

import (
	"log/slog"
	"sync/atomic"
)

// State is a step of the clipboard negotiation.
type State int32

const (
	Idle State = iota
	OfferingAsSource
	OwnershipLost
	DiscoveringTargets
	NoFilesOffered
	RequestingContent
	Completed
	Failed
)

var stateNames = [...]string{
	Idle:               "idle",
	OfferingAsSource:   "offering",
	OwnershipLost:      "ownership-lost",
	DiscoveringTargets: "discovering-targets",
	NoFilesOffered:     "no-files-offered",
	RequestingContent:  "requesting-content",
	Completed:          "completed",
	Failed:             "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// tracker holds the current state and logs transitions.
type tracker struct {
	v   atomic.Int32
	log *slog.Logger
}

func (t *tracker) State() State { return State(t.v.Load()) }

func (t *tracker) set(s State) {
	prev := State(t.v.Swap(int32(s)))
	if prev != s {
		t.log.Debug("session state", "from", prev, "to", s)
	}
}
