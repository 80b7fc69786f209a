// Package sim drives PackStateManager runs and checks the crash-consistency
// properties of the pack protocol.
//
// Simulate executes one run, choosing among legal candidates either
// deterministically (first candidate) or at random, and optionally stopping
// at a random tick to simulate a crash. Verify repeats independent runs and
// compares what recovery reconstructs against a reference run.
//
// All randomness is carried by an explicit *rand.Rand per run, so runs share
// no state and may execute in parallel.
package sim

import (
	"fmt"
	"math/rand"

	"github.com/mit-pdos/go-walbsim/common"
	"github.com/mit-pdos/go-walbsim/image"
	"github.com/mit-pdos/go-walbsim/pack"
	"github.com/mit-pdos/go-walbsim/util"
	"github.com/mit-pdos/go-walbsim/walb"
)

// History is the sequence of executed operations.
type History []pack.Candidate

func (h History) String() string {
	s := "["
	for i, c := range h {
		if i > 0 {
			s += " "
		}
		s += c.String()
	}
	return s + "]"
}

type Run struct {
	History History
	Mgr     *walb.PackStateManager
	// Crashed is true if the run stopped while operations were still
	// possible.
	Crashed bool
}

func (r *Run) Steps() int {
	return len(r.History)
}

// Simulate runs the pack protocol over groups starting from img.
//
// With rng == nil the first candidate is executed every time and the run
// never crashes. Otherwise a candidate is picked uniformly and, after each
// tick, the run stops with probability crashPct/100.
func Simulate(img image.Image, groups []pack.Group, nPlug int, fast bool,
	rng *rand.Rand, crashPct int) (*Run, error) {
	mgr, err := walb.MkPackStateManager(img, groups, fast)
	if err != nil {
		return nil, err
	}
	run := &Run{Mgr: mgr}
	cands := mgr.GetCandidates(nPlug)
	for len(cands) > 0 {
		var c pack.Candidate
		if rng == nil {
			c = cands[0]
		} else {
			c = cands[rng.Intn(len(cands))]
		}
		if mgr.Execute(c.Id, c.Op) {
			util.DPrintf(5, "END %d numOp(%d)\n", mgr.FirstNotEnded(), len(run.History)+1)
		}
		run.History = append(run.History, c)
		cands = mgr.GetCandidates(nPlug)

		if rng != nil && rng.Intn(100) < crashPct {
			run.Crashed = len(cands) > 0
			break
		}
	}
	return run, nil
}

// Reference returns img with packs 0..upto-1 applied in log order: the
// state recovery must produce for frontier upto.
func Reference(img image.Image, groups []pack.Group, upto common.PackId) image.Image {
	packs := pack.Flatten(groups)
	if uint64(upto) > uint64(len(packs)) {
		panic(fmt.Errorf("Reference: frontier %d beyond %d packs", upto, len(packs)))
	}
	for _, p := range packs[:upto] {
		img = p.Apply(img)
	}
	return img
}

// References returns Reference(img, groups, f) for every f in 0..N.
func References(img image.Image, groups []pack.Group) []image.Image {
	packs := pack.Flatten(groups)
	refs := make([]image.Image, 0, len(packs)+1)
	refs = append(refs, img)
	for _, p := range packs {
		img = p.Apply(img)
		refs = append(refs, img)
	}
	return refs
}
