// Package sched computes which pack operations may run next.
//
// A Policy inspects the pack states (ordered by PackId) and returns the
// candidates that are legal under the pack life cycle and the plug window:
//
//   - SubmitData(i) needs pack i's log to be durable (write-ahead rule).
//   - SubmitLog(i) needs pack i-1's log to be durable, so log durability
//     advances in PackId order and a single recovery frontier exists.
//   - CompleteLog(i) and CompleteData(i) need the matching submission.
//   - At most nPlug packs may have a submitted but not yet durable log;
//     SubmitLog is withheld while the window is full.
//
// Both policies return an empty list iff every pack is Completed.
package sched

import (
	"fmt"

	"github.com/mit-pdos/go-walbsim/pack"
)

type Policy interface {
	// Candidates returns the legal next operations, in ascending PackId
	// order. It does not modify states.
	Candidates(states []*pack.State, nPlug int) []pack.Candidate
	Name() string
}

const (
	FastName = "fast"
	EasyName = "easy"
)

func MkPolicy(fast bool) Policy {
	if fast {
		return Concurrent{}
	}
	return Conservative{}
}

func ByName(name string) (Policy, error) {
	switch name {
	case FastName:
		return Concurrent{}, nil
	case EasyName:
		return Conservative{}, nil
	}
	return nil, fmt.Errorf("unknown policy %q (want %s or %s)", name, FastName, EasyName)
}

// LogReady reports whether pack i may submit its log, ignoring the plug
// window.
func LogReady(states []*pack.State, i int) bool {
	return i == 0 || states[i-1].LogDurable
}

// Legal reports whether c is allowed by the life cycle and ordering rules.
func Legal(states []*pack.State, c pack.Candidate) bool {
	i := int(c.Id)
	if i < 0 || i >= len(states) {
		return false
	}
	st := states[i]
	if !st.Legal(c.Op) {
		return false
	}
	if c.Op == pack.SubmitLog {
		return LogReady(states, i)
	}
	return true
}

// InFlight counts the packs occupying the plug window.
func InFlight(states []*pack.State) int {
	n := 0
	for _, st := range states {
		if st.InFlight() {
			n++
		}
	}
	return n
}

func checkPlug(nPlug int) {
	if nPlug <= 0 {
		panic(fmt.Errorf("nPlug must be positive, got %d", nPlug))
	}
}

// Conservative lets exactly one pack, the lowest one not yet Completed, make
// progress. It is the oracle the concurrent policy is compared against.
type Conservative struct{}

func (Conservative) Name() string { return EasyName }

func (Conservative) Candidates(states []*pack.State, nPlug int) []pack.Candidate {
	checkPlug(nPlug)
	for _, st := range states {
		op, ok := st.Next()
		if !ok {
			continue
		}
		return []pack.Candidate{pack.MkCandidate(st.Id, op)}
	}
	return nil
}

// Concurrent lets every pack advance independently, subject only to the
// ordering rules and the plug window.
type Concurrent struct{}

func (Concurrent) Name() string { return FastName }

func (Concurrent) Candidates(states []*pack.State, nPlug int) []pack.Candidate {
	checkPlug(nPlug)
	inFlight := InFlight(states)
	var cands []pack.Candidate
	for i, st := range states {
		op, ok := st.Next()
		if !ok {
			continue
		}
		if op == pack.SubmitLog {
			if !LogReady(states, i) || inFlight >= nPlug {
				continue
			}
		}
		cands = append(cands, pack.MkCandidate(st.Id, op))
	}
	return cands
}
