package pack

import (
	"fmt"

	"github.com/mit-pdos/go-walbsim/common"
)

// Phase is the position of a pack in
//
//	Pending -SubmitLog-> LogPending -CompleteLog-> LogDurable
//	LogDurable -SubmitData-> DataPending -CompleteData-> Completed
type Phase uint8

const (
	Pending Phase = iota
	LogPending
	LogDurable
	DataPending
	Completed
)

func (ph Phase) String() string {
	switch ph {
	case Pending:
		return "Pending"
	case LogPending:
		return "LogPending"
	case LogDurable:
		return "LogDurable"
	case DataPending:
		return "DataPending"
	case Completed:
		return "Completed"
	}
	return fmt.Sprintf("Phase(%d)", uint8(ph))
}

// State tracks the progress of one pack.
//
// The flags only ever become true in life-cycle order, so a State is always
// in exactly one Phase. State enforces the rules local to the pack; the rule
// that log durability advances in PackId order spans packs and is left to
// the owner of the state list.
type State struct {
	Id            common.PackId
	Pack          Pack
	LogSubmitted  bool
	LogDurable    bool
	DataSubmitted bool
	DataDurable   bool
}

func MkState(p Pack) *State {
	return &State{Id: p.Id, Pack: p}
}

func (st *State) Phase() Phase {
	switch {
	case st.DataDurable:
		return Completed
	case st.DataSubmitted:
		return DataPending
	case st.LogDurable:
		return LogDurable
	case st.LogSubmitted:
		return LogPending
	}
	return Pending
}

func (st *State) Completed() bool {
	return st.DataDurable
}

// InFlight reports whether the pack's log record has been submitted but is
// not yet durable; such packs occupy the plug window.
func (st *State) InFlight() bool {
	return st.LogSubmitted && !st.LogDurable
}

// Next returns the only operation that can advance st, or false if st is
// Completed.
func (st *State) Next() (Op, bool) {
	switch st.Phase() {
	case Pending:
		return SubmitLog, true
	case LogPending:
		return CompleteLog, true
	case LogDurable:
		return SubmitData, true
	case DataPending:
		return CompleteData, true
	}
	return 0, false
}

// Legal reports whether op is the pack's next step.
func (st *State) Legal(op Op) bool {
	next, ok := st.Next()
	return ok && next == op
}

// Apply advances st by op. An illegal op is a caller bug and panics.
func (st *State) Apply(op Op) {
	if !st.Legal(op) {
		panic(fmt.Errorf("pack %d: illegal %v in phase %v", st.Id, op, st.Phase()))
	}
	switch op {
	case SubmitLog:
		st.LogSubmitted = true
	case CompleteLog:
		st.LogDurable = true
	case SubmitData:
		st.DataSubmitted = true
	case CompleteData:
		st.DataDurable = true
	}
}

// Recovered marks the pack as redone from its durable log record.
func (st *State) Recovered() {
	if !st.LogDurable {
		panic(fmt.Errorf("pack %d: recovered without a durable log", st.Id))
	}
	st.DataSubmitted = true
	st.DataDurable = true
}

// ResetLog forgets a log submission that was lost in a crash.
func (st *State) ResetLog() {
	if st.LogDurable {
		panic(fmt.Errorf("pack %d: durable log cannot be lost", st.Id))
	}
	st.LogSubmitted = false
}

// Copy returns a snapshot of st that shares the immutable Pack.
func (st *State) Copy() *State {
	c := *st
	return &c
}

func (st *State) String() string {
	return fmt.Sprintf("pack %d %v", st.Id, st.Phase())
}
