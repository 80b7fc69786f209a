package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mit-pdos/go-walbsim/common"
	"github.com/mit-pdos/go-walbsim/pack"
)

func mkStates(n int) []*pack.State {
	var states []*pack.State
	for i := 0; i < n; i++ {
		states = append(states, pack.MkState(pack.MkPack(common.PackId(i), nil)))
	}
	return states
}

func cand(id int, op pack.Op) pack.Candidate {
	return pack.MkCandidate(common.PackId(id), op)
}

func TestByName(t *testing.T) {
	assert := assert.New(t)
	p, err := ByName("fast")
	assert.Nil(err)
	assert.Equal(FastName, p.Name())
	p, err = ByName("easy")
	assert.Nil(err)
	assert.Equal(EasyName, p.Name())
	_, err = ByName("slow")
	assert.Error(err)
	assert.Equal(FastName, MkPolicy(true).Name())
	assert.Equal(EasyName, MkPolicy(false).Name())
}

func TestConservativeOneAtATime(t *testing.T) {
	assert := assert.New(t)
	states := mkStates(2)
	var p Conservative
	var order []pack.Candidate
	for {
		cands := p.Candidates(states, 4)
		if len(cands) == 0 {
			break
		}
		assert.Equal(1, len(cands))
		c := cands[0]
		assert.True(Legal(states, c))
		states[c.Id].Apply(c.Op)
		order = append(order, c)
	}
	assert.Equal([]pack.Candidate{
		cand(0, pack.SubmitLog), cand(0, pack.CompleteLog),
		cand(0, pack.SubmitData), cand(0, pack.CompleteData),
		cand(1, pack.SubmitLog), cand(1, pack.CompleteLog),
		cand(1, pack.SubmitData), cand(1, pack.CompleteData),
	}, order)
}

func TestConcurrentCandidates(t *testing.T) {
	assert := assert.New(t)
	states := mkStates(3)
	var p Concurrent

	assert.Equal([]pack.Candidate{cand(0, pack.SubmitLog)}, p.Candidates(states, 2))
	states[0].Apply(pack.SubmitLog)
	assert.Equal([]pack.Candidate{cand(0, pack.CompleteLog)}, p.Candidates(states, 2),
		"pack 1 must wait for pack 0's log")
	states[0].Apply(pack.CompleteLog)
	assert.Equal([]pack.Candidate{cand(0, pack.SubmitData), cand(1, pack.SubmitLog)},
		p.Candidates(states, 2))

	states[1].Apply(pack.SubmitLog)
	states[0].Apply(pack.SubmitData)
	assert.Equal([]pack.Candidate{cand(0, pack.CompleteData), cand(1, pack.CompleteLog)},
		p.Candidates(states, 2))

	states[1].Apply(pack.CompleteLog)
	states[1].Apply(pack.SubmitData)
	assert.Equal([]pack.Candidate{
		cand(0, pack.CompleteData), cand(1, pack.CompleteData), cand(2, pack.SubmitLog),
	}, p.Candidates(states, 2), "data completions are unordered across packs")
}

func TestPlugWindow(t *testing.T) {
	assert := assert.New(t)
	states := mkStates(2)
	states[0].Apply(pack.SubmitLog)
	assert.Equal(1, InFlight(states))
	for _, c := range (Concurrent{}).Candidates(states, 1) {
		assert.NotEqual(pack.SubmitLog, c.Op, "window of 1 is full")
	}

	states[0].Apply(pack.CompleteLog)
	assert.Equal(0, InFlight(states))
	assert.Contains(Concurrent{}.Candidates(states, 1), cand(1, pack.SubmitLog),
		"a durable log leaves the window")
}

func TestEmptyIffCompleted(t *testing.T) {
	for _, p := range []Policy{Conservative{}, Concurrent{}} {
		states := mkStates(3)
		steps := 0
		for {
			cands := p.Candidates(states, 1)
			done := true
			for _, st := range states {
				if !st.Completed() {
					done = false
				}
			}
			assert.Equal(t, done, len(cands) == 0, "%s step %d", p.Name(), steps)
			if done {
				break
			}
			c := cands[len(cands)-1]
			states[c.Id].Apply(c.Op)
			steps++
		}
		assert.Equal(t, 12, steps)
		assert.Empty(t, p.Candidates(nil, 1))
	}
}

func TestLegal(t *testing.T) {
	assert := assert.New(t)
	states := mkStates(2)
	assert.True(Legal(states, cand(0, pack.SubmitLog)))
	assert.False(Legal(states, cand(1, pack.SubmitLog)))
	assert.False(Legal(states, cand(0, pack.SubmitData)))
	assert.False(Legal(states, cand(2, pack.SubmitLog)))
}

func TestNonPositivePlugPanics(t *testing.T) {
	assert.Panics(t, func() { Concurrent{}.Candidates(mkStates(1), 0) })
	assert.Panics(t, func() { Conservative{}.Candidates(mkStates(1), -1) })
}
