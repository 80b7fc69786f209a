package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mit-pdos/go-walbsim/fixture"
)

var (
	showImagePath string
	showPacksPath string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the contents of fixtures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showImagePath == "" && showPacksPath == "" {
			return errors.New("show: need --image or --packs")
		}
		out := cmd.OutOrStdout()
		if showImagePath != "" {
			img, err := fixture.LoadImage(showImagePath)
			if err != nil {
				return err
			}
			printImage(out, "image:", img)
		}
		if showPacksPath != "" {
			groups, err := fixture.LoadGroups(showPacksPath)
			if err != nil {
				return err
			}
			printGroups(out, groups)
		}
		return nil
	},
}

func init() {
	showCmd.Flags().StringVar(&showImagePath, "image", "", "image fixture")
	showCmd.Flags().StringVar(&showPacksPath, "packs", "", "pack list fixture")

	rootCmd.AddCommand(showCmd)
}
