package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-walbsim/fixture"
	"github.com/mit-pdos/go-walbsim/image"
	"github.com/mit-pdos/go-walbsim/pack"
	"github.com/mit-pdos/go-walbsim/sched"
	"github.com/mit-pdos/go-walbsim/sim"
)

var (
	runImagePath string
	runPacksPath string
	runPlug      int
	runLoop      int
	runPolicy    string
	runCrashPct  int
	runSeed      int64
	runWorkers   int
	runOutPath   string
	runOutBlocks uint64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate and verify crash recovery over a pack list",
	Long: `Run loop 0 in first-candidate order without crashing to obtain the
reference image, then nLoop-1 randomized runs that may crash at any tick.
Every run is recovered and compared with the reference: full recoveries
against the whole reference, partial ones against earlier runs and the
reference prefix with the same frontier.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := sched.ByName(runPolicy)
		if err != nil {
			return err
		}
		cfg := sim.Config{
			NPlug:           runPlug,
			NLoop:           runLoop,
			Fast:            policy.Name() == sched.FastName,
			CrashPctPerTick: runCrashPct,
			Seed:            runSeed,
			Workers:         runWorkers,
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		img := image.MkImage()
		if runImagePath != "" {
			img, err = fixture.LoadImage(runImagePath)
			if err != nil {
				return err
			}
		}
		groups, err := fixture.LoadGroups(runPacksPath)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printGroups(out, groups)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		report, err := sim.Verify(ctx, img, groups, cfg)
		if report == nil {
			return err
		}
		printImage(out, "testStorage:", report.Reference)
		if isTerminal(out) {
			for _, r := range report.Runs {
				printDim(out, "loop %d: %d steps, crashed %v, next of recovered packId %d",
					r.Loop, r.Steps, r.Crashed, r.Frontier)
			}
		}
		for _, mm := range report.Mismatches {
			printError(out, "%v", mm)
		}
		if err != nil {
			return fmt.Errorf("interrupted after %d runs: %w", len(report.Runs), err)
		}

		if runOutPath != "" {
			if err := writeRaw(runOutPath, runOutBlocks, report.Reference); err != nil {
				return err
			}
		}

		if !report.OK() {
			return fmt.Errorf("%d mismatches in %d loops", len(report.Mismatches), cfg.NLoop)
		}
		printSuccess(out, "%d loops, %d packs, policy %s, numCheckCrashRecovery %d",
			cfg.NLoop, len(pack.Flatten(groups)), policy.Name(), report.NumCheckCrashRecovery)
		return nil
	},
}

// writeRaw installs img into a raw disk file of numBlocks blocks, or just
// large enough for img if numBlocks is 0.
func writeRaw(path string, numBlocks uint64, img image.Image) error {
	if numBlocks == 0 {
		addrs := img.Addrs()
		if len(addrs) > 0 {
			numBlocks = uint64(addrs[len(addrs)-1]) + 1
		} else {
			numBlocks = 1
		}
	}
	d, err := disk.NewFileDisk(path, numBlocks)
	if err != nil {
		return fmt.Errorf("open raw disk %s: %w", path, err)
	}
	defer d.Close()
	return image.Install(d, img)
}

func init() {
	runCmd.Flags().StringVar(&runImagePath, "image", "", "base disk image fixture (default: empty image)")
	runCmd.Flags().StringVar(&runPacksPath, "packs", "", "plug pack list fixture")
	runCmd.Flags().IntVar(&runPlug, "plug", 1, "max packs with a log in flight")
	runCmd.Flags().IntVar(&runLoop, "loop", 10, "number of runs, including the reference run")
	runCmd.Flags().StringVar(&runPolicy, "policy", sched.FastName, "scheduling policy: fast or easy")
	runCmd.Flags().IntVar(&runCrashPct, "crash-pct", 0, "crash probability per tick in percent (0-99)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 1, "seed of the first randomized run")
	runCmd.Flags().IntVar(&runWorkers, "workers", 1, "goroutines running randomized runs")
	runCmd.Flags().StringVar(&runOutPath, "out", "", "write the reference image to this raw disk file")
	runCmd.Flags().Uint64Var(&runOutBlocks, "out-blocks", 0, "size of the raw disk file in blocks")
	_ = runCmd.MarkFlagRequired("packs")

	rootCmd.AddCommand(runCmd)
}
