// Package walb implements the pack state manager of the WalB write-ahead
// log simulator.
//
// The manager owns one run's state: a PackState per pack and two views of the
// block device.
//
//	vStorage  what the application observes: every pack whose data has
//	          been submitted
//	rStorage  what is physically durable: only packs whose data write has
//	          completed
//
// Packs move through SubmitLog, CompleteLog, SubmitData and CompleteData one
// Execute at a time. Which operations are legal is decided by an injected
// sched.Policy. At any point the run may stop and DoCrashRecovery replays
// every pack whose log is durable, which must reconstruct a state that
// depends only on how far the log got.
//
// A manager is not safe for concurrent use; independent runs use independent
// managers and share nothing.
package walb

import (
	"fmt"

	"github.com/mit-pdos/go-walbsim/common"
	"github.com/mit-pdos/go-walbsim/image"
	"github.com/mit-pdos/go-walbsim/pack"
	"github.com/mit-pdos/go-walbsim/sched"
	"github.com/mit-pdos/go-walbsim/util"
)

type PackStateManager struct {
	policy sched.Policy
	states []*pack.State

	vStorage image.Image
	rStorage image.Image
	vStamps  stamps
	rStamps  stamps

	// lowest pack that is not Completed
	firstNotEnded common.PackId
}

// MkPackStateManager starts a run over groups with both views equal to img.
// fast selects the concurrent policy, otherwise the conservative one.
//
// Packs must be numbered 0, 1, 2, ... across the groups in order.
func MkPackStateManager(img image.Image, groups []pack.Group, fast bool) (*PackStateManager, error) {
	return MkPackStateManagerPolicy(img, groups, sched.MkPolicy(fast))
}

func MkPackStateManagerPolicy(img image.Image, groups []pack.Group, policy sched.Policy) (*PackStateManager, error) {
	packs := pack.Flatten(groups)
	if err := pack.Validate(packs); err != nil {
		return nil, err
	}
	states := make([]*pack.State, len(packs))
	for i, p := range packs {
		states[i] = pack.MkState(p)
	}
	m := &PackStateManager{
		policy:   policy,
		states:   states,
		vStorage: img,
		rStorage: img,
		vStamps:  make(stamps),
		rStamps:  make(stamps),
	}
	util.DPrintf(3, "MkPackStateManager: %d packs in %d groups, policy %s\n",
		len(packs), len(groups), policy.Name())
	return m, nil
}

func (m *PackStateManager) Policy() sched.Policy {
	return m.policy
}

// GetCandidates returns every operation that may run next with at most
// nPlug logs in flight. It is empty iff every pack is Completed.
func (m *PackStateManager) GetCandidates(nPlug int) []pack.Candidate {
	return m.policy.Candidates(m.states, nPlug)
}

// Execute applies op to pack id and reports whether the lowest not yet
// Completed pack advanced.
//
// The caller must pick (id, op) from GetCandidates; anything illegal is a
// scheduler bug and panics.
func (m *PackStateManager) Execute(id common.PackId, op pack.Op) bool {
	c := pack.MkCandidate(id, op)
	if uint64(id) >= m.TotalNumPacks() {
		panic(fmt.Errorf("Execute %v: no such pack (%d packs)", c, len(m.states)))
	}
	if !op.Valid() || !sched.Legal(m.states, c) {
		panic(fmt.Errorf("Execute %v: illegal in phase %v", c, m.states[id].Phase()))
	}
	st := m.states[id]
	st.Apply(op)
	util.DPrintf(5, "Execute %v -> %v\n", c, st.Phase())
	switch op {
	case pack.SubmitData:
		m.vStorage = m.vStamps.install(m.vStorage, st.Pack)
	case pack.CompleteData:
		m.rStorage = m.rStamps.install(m.rStorage, st.Pack)
	}
	return m.advance()
}

func (m *PackStateManager) advance() bool {
	old := m.firstNotEnded
	n := common.PackId(len(m.states))
	for m.firstNotEnded < n && m.states[m.firstNotEnded].Completed() {
		m.firstNotEnded++
	}
	if m.firstNotEnded != old {
		util.DPrintf(4, "END %d\n", m.firstNotEnded)
		return true
	}
	return false
}

// Frontier is the lowest pack whose log is not durable, or TotalNumPacks if
// every log is durable. Log durability advances in PackId order, so every
// pack below the frontier can be redone from the log.
func (m *PackStateManager) Frontier() common.PackId {
	for i, st := range m.states {
		if !st.LogDurable {
			return common.PackId(i)
		}
	}
	return common.PackId(len(m.states))
}

// FirstNotEnded is the lowest pack that is not Completed.
func (m *PackStateManager) FirstNotEnded() common.PackId {
	return m.firstNotEnded
}

// DoCrashRecovery simulates a crash followed by log replay, and returns the
// recovery frontier.
//
// Every pack below the frontier whose data is not yet durable is redone, in
// PackId order, into rStorage (and into vStorage if its data had not even
// been submitted) and becomes Completed. Log submissions at or above the
// frontier were lost with the crash and those packs return to Pending.
// Recovery never fails, and a second call without an intervening Execute
// changes nothing.
func (m *PackStateManager) DoCrashRecovery() common.PackId {
	f := m.Frontier()
	util.DPrintf(1, "DoCrashRecovery: frontier %d of %d\n", f, len(m.states))
	for _, st := range m.states[:f] {
		if st.DataDurable {
			continue
		}
		util.DPrintf(5, "DoCrashRecovery: redo pack %d\n", st.Id)
		if !st.DataSubmitted {
			m.vStorage = m.vStamps.install(m.vStorage, st.Pack)
		}
		m.rStorage = m.rStamps.install(m.rStorage, st.Pack)
		st.Recovered()
	}
	for _, st := range m.states[f:] {
		if st.LogSubmitted {
			util.DPrintf(5, "DoCrashRecovery: lost log of pack %d\n", st.Id)
			st.ResetLog()
		}
	}
	m.advance()
	return f
}

func (m *PackStateManager) TotalNumPacks() uint64 {
	return uint64(len(m.states))
}

// PackStateList returns a snapshot of every pack's state in PackId order.
func (m *PackStateManager) PackStateList() []*pack.State {
	states := make([]*pack.State, len(m.states))
	for i, st := range m.states {
		states[i] = st.Copy()
	}
	return states
}

func (m *PackStateManager) VStorage() image.Image {
	return m.vStorage
}

func (m *PackStateManager) RStorage() image.Image {
	return m.rStorage
}
