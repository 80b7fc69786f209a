package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/mit-pdos/go-walbsim/common"
	"github.com/mit-pdos/go-walbsim/image"
	"github.com/mit-pdos/go-walbsim/pack"
	"github.com/mit-pdos/go-walbsim/util"
)

type Config struct {
	NPlug int
	// NLoop counts the reference run, so NLoop-1 randomized runs follow it.
	NLoop           int
	Fast            bool
	CrashPctPerTick int
	// Randomized run i uses the seed Seed+i.
	Seed int64
	// Workers is the number of goroutines running randomized runs; 0 or 1
	// runs them sequentially.
	Workers int
}

var ErrConfig = errors.New("invalid simulation config")

func (cfg Config) Validate() error {
	if cfg.NPlug <= 0 {
		return fmt.Errorf("nPlug %d must be positive: %w", cfg.NPlug, ErrConfig)
	}
	if cfg.NLoop <= 0 {
		return fmt.Errorf("nLoop %d must be positive: %w", cfg.NLoop, ErrConfig)
	}
	if cfg.CrashPctPerTick < 0 || cfg.CrashPctPerTick > 99 {
		return fmt.Errorf("crashPctPerTick %d not in 0..99: %w", cfg.CrashPctPerTick, ErrConfig)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("workers %d must not be negative: %w", cfg.Workers, ErrConfig)
	}
	return nil
}

type MismatchKind string

const (
	// vStorage and rStorage differ after a completed or recovered run
	ViewMismatch MismatchKind = "view"
	// the two policies disagree on an uncrashed run
	PolicyMismatch MismatchKind = "policy"
	// a full recovery differs from the reference run
	FullRecoveryMismatch MismatchKind = "full-recovery"
	// two recoveries to the same frontier differ
	FrontierMismatch MismatchKind = "frontier"
	// recovery differs from the reference prefix below its frontier
	PrefixMismatch MismatchKind = "prefix"
	// a second recovery changed the frontier or storage
	IdempotenceMismatch MismatchKind = "idempotence"
	// an uncrashed run took more than 4 steps per pack
	TerminationMismatch MismatchKind = "termination"
	// Diff was not symmetric
	DiffMismatch MismatchKind = "diff"
)

type Mismatch struct {
	Loop     int
	Kind     MismatchKind
	Frontier common.PackId
	History  History
	Diff     []common.Bnum
	Expected image.Image
	Got      image.Image
}

func (mm Mismatch) String() string {
	return fmt.Sprintf("loop %d: %s mismatch at frontier %d, diff %v\n  expected %v\n  got      %v\n  history  %v",
		mm.Loop, mm.Kind, mm.Frontier, mm.Diff, mm.Expected, mm.Got, mm.History)
}

// RunSummary describes one randomized run after recovery.
type RunSummary struct {
	Loop     int
	Steps    int
	Crashed  bool
	Frontier common.PackId
}

type Report struct {
	Reference image.Image
	Runs      []RunSummary
	// NumCheckCrashRecovery counts partial recoveries that could be checked
	// against an earlier run with the same frontier.
	NumCheckCrashRecovery int
	Frontiers             map[common.PackId]int
	Mismatches            []Mismatch
}

func (r *Report) OK() bool {
	return len(r.Mismatches) == 0
}

// outcome is what one randomized run hands back to the sequential fold.
type outcome struct {
	summary    RunSummary
	history    History
	rStorage   image.Image
	mismatches []Mismatch
}

type verifier struct {
	img     image.Image
	groups  []pack.Group
	cfg     Config
	npacks  common.PackId
	refs    []image.Image
	report  *Report
	results []*outcome
}

// Verify runs cfg.NLoop independent simulations over groups and checks the
// recovery properties. Mismatches are collected in the report; an error is
// returned only for invalid input or if ctx is done before every run was
// scheduled, in which case the report covers the runs that finished.
func Verify(ctx context.Context, img image.Image, groups []pack.Group, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	packs := pack.Flatten(groups)
	if err := pack.Validate(packs); err != nil {
		return nil, err
	}
	v := &verifier{
		img:    img,
		groups: groups,
		cfg:    cfg,
		npacks: common.PackId(len(packs)),
		refs:   References(img, groups),
		report: &Report{Frontiers: make(map[common.PackId]int)},
	}
	if err := v.reference(); err != nil {
		return nil, err
	}
	err := v.randomized(ctx)
	v.fold()
	return v.report, err
}

func (v *verifier) mismatch(loop int, kind MismatchKind, f common.PackId, h History,
	expected, got image.Image) Mismatch {
	return Mismatch{
		Loop:     loop,
		Kind:     kind,
		Frontier: f,
		History:  h,
		Diff:     image.Diff(expected, got),
		Expected: expected,
		Got:      got,
	}
}

// reference is loop 0: first-candidate order, no crash. Its rStorage is what
// every full recovery must match. The other policy is run the same way as an
// oracle.
func (v *verifier) reference() error {
	run, err := Simulate(v.img, v.groups, v.cfg.NPlug, v.cfg.Fast, nil, 0)
	if err != nil {
		return err
	}
	mgr := run.Mgr
	v.report.Reference = mgr.RStorage()
	util.DPrintf(1, "reference: %d steps, rStorage %v\n", run.Steps(), mgr.RStorage())

	var mms []Mismatch
	if len(image.Diff(mgr.VStorage(), mgr.RStorage())) != 0 {
		mms = append(mms, v.mismatch(0, ViewMismatch, v.npacks, run.History,
			mgr.VStorage(), mgr.RStorage()))
	}
	if len(image.Diff(v.refs[v.npacks], mgr.RStorage())) != 0 {
		mms = append(mms, v.mismatch(0, PrefixMismatch, v.npacks, run.History,
			v.refs[v.npacks], mgr.RStorage()))
	}
	if run.Steps() > 4*int(v.npacks) {
		mms = append(mms, v.mismatch(0, TerminationMismatch, v.npacks, run.History,
			v.refs[v.npacks], mgr.RStorage()))
	}

	oracle, err := Simulate(v.img, v.groups, v.cfg.NPlug, !v.cfg.Fast, nil, 0)
	if err != nil {
		return err
	}
	om := oracle.Mgr
	if len(image.Diff(mgr.RStorage(), om.RStorage())) != 0 ||
		len(image.Diff(mgr.VStorage(), om.VStorage())) != 0 {
		mms = append(mms, v.mismatch(0, PolicyMismatch, v.npacks, oracle.History,
			mgr.RStorage(), om.RStorage()))
	}
	v.report.Mismatches = append(v.report.Mismatches, mms...)
	return nil
}

func (v *verifier) randomized(ctx context.Context) error {
	n := v.cfg.NLoop - 1
	v.results = make([]*outcome, n)
	workers := v.cfg.Workers
	if workers <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			v.results[i] = v.runOne(i + 1)
		}
		return nil
	}

	loops := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for loop := range loops {
				// each worker writes only its own slots
				v.results[loop-1] = v.runOne(loop)
			}
		}()
	}
	var err error
schedule:
	for i := 0; i < n; i++ {
		select {
		case loops <- i + 1:
		case <-ctx.Done():
			err = ctx.Err()
			break schedule
		}
	}
	close(loops)
	wg.Wait()
	return err
}

// runOne performs randomized loop `loop` and the checks that need no other
// run.
func (v *verifier) runOne(loop int) *outcome {
	rng := rand.New(rand.NewSource(v.cfg.Seed + int64(loop)))
	run, err := Simulate(v.img, v.groups, v.cfg.NPlug, v.cfg.Fast, rng, v.cfg.CrashPctPerTick)
	if err != nil {
		// input was validated by Verify
		panic(err)
	}
	mgr := run.Mgr
	f := mgr.DoCrashRecovery()
	util.DPrintf(2, "loop %d: next of recovered packId %d\n", loop, f)

	o := &outcome{
		summary: RunSummary{
			Loop:     loop,
			Steps:    run.Steps(),
			Crashed:  run.Crashed,
			Frontier: f,
		},
		history:  run.History,
		rStorage: mgr.RStorage(),
	}
	add := func(kind MismatchKind, expected, got image.Image) {
		o.mismatches = append(o.mismatches, v.mismatch(loop, kind, f, run.History, expected, got))
	}

	vs, rs := mgr.VStorage(), mgr.RStorage()
	if len(image.Diff(vs, rs)) != 0 {
		add(ViewMismatch, vs, rs)
	}
	if len(image.Diff(vs, rs)) != len(image.Diff(rs, vs)) {
		add(DiffMismatch, vs, rs)
	}
	if len(image.Diff(v.refs[f], rs)) != 0 {
		add(PrefixMismatch, v.refs[f], rs)
	}
	if !run.Crashed && run.Steps() > 4*int(v.npacks) {
		add(TerminationMismatch, v.refs[v.npacks], rs)
	}
	if f2 := mgr.DoCrashRecovery(); f2 != f || len(image.Diff(rs, mgr.RStorage())) != 0 {
		add(IdempotenceMismatch, rs, mgr.RStorage())
	}
	return o
}

// fold combines finished runs in loop order: full recoveries are compared
// with the reference run, partial ones with the first run that recovered to
// the same frontier.
func (v *verifier) fold() {
	report := v.report
	seen := make(map[common.PackId]image.Image)
	for _, o := range v.results {
		if o == nil {
			continue
		}
		f := o.summary.Frontier
		report.Runs = append(report.Runs, o.summary)
		report.Frontiers[f]++
		report.Mismatches = append(report.Mismatches, o.mismatches...)

		if f == v.npacks {
			if len(image.Diff(report.Reference, o.rStorage)) != 0 {
				report.Mismatches = append(report.Mismatches, v.mismatch(o.summary.Loop,
					FullRecoveryMismatch, f, o.history, report.Reference, o.rStorage))
			}
			continue
		}
		if first, ok := seen[f]; ok {
			report.NumCheckCrashRecovery++
			if len(image.Diff(first, o.rStorage)) != 0 {
				report.Mismatches = append(report.Mismatches, v.mismatch(o.summary.Loop,
					FrontierMismatch, f, o.history, first, o.rStorage))
			}
		} else {
			seen[f] = o.rStorage
		}
	}
	util.DPrintf(1, "numCheckCrashRecovery %d\n", report.NumCheckCrashRecovery)
}
