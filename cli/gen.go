package cli

import (
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/mit-pdos/go-walbsim/fixture"
)

var (
	genImagePath string
	genPacksPath string
	genSeed      int64
	genCfg       fixture.GenConfig
)

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate random image and pack list fixtures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		img, groups, err := fixture.Generate(rand.New(rand.NewSource(genSeed)), genCfg)
		if err != nil {
			return err
		}
		if err := fixture.SaveImage(genImagePath, img); err != nil {
			return err
		}
		if err := fixture.SaveGroups(genPacksPath, groups); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "wrote %s (%d blocks) and %s (%d groups)",
			genImagePath, img.Len(), genPacksPath, len(groups))
		return nil
	},
}

func init() {
	genCmd.Flags().StringVar(&genImagePath, "image", "image.bin", "output image fixture")
	genCmd.Flags().StringVar(&genPacksPath, "packs", "packs.bin", "output pack list fixture")
	genCmd.Flags().Int64Var(&genSeed, "seed", 1, "random seed")
	genCmd.Flags().Uint64Var(&genCfg.Blocks, "blocks", 16, "size of the address space")
	genCmd.Flags().Uint64Var(&genCfg.BaseBlocks, "base-blocks", 4, "blocks written in the base image")
	genCmd.Flags().IntVar(&genCfg.Groups, "groups", 4, "number of plug groups")
	genCmd.Flags().IntVar(&genCfg.PacksPerGroup, "packs-per-group", 4, "packs in each plug group")
	genCmd.Flags().IntVar(&genCfg.WritesPerPack, "writes", 3, "max writes per pack")
	genCmd.Flags().IntVar(&genCfg.PayloadSize, "payload", 4, "payload size in bytes")

	rootCmd.AddCommand(genCmd)
}
