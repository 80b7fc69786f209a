package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/mit-pdos/go-walbsim/image"
	"github.com/mit-pdos/go-walbsim/pack"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printHeader(w io.Writer, title string) {
	_, _ = headerColor.Fprintf(w, "%s\n", title)
}

func printSuccess(w io.Writer, format string, a ...interface{}) {
	_, _ = successColor.Fprintf(w, "OK "+format+"\n", a...)
}

func printError(w io.Writer, format string, a ...interface{}) {
	_, _ = errorColor.Fprintf(w, "ERROR "+format+"\n", a...)
}

func printDim(w io.Writer, format string, a ...interface{}) {
	_, _ = dimColor.Fprintf(w, format+"\n", a...)
}

func printGroups(w io.Writer, groups []pack.Group) {
	printHeader(w, "plug pack list:")
	for i, g := range groups {
		fmt.Fprintf(w, "  group %d:\n", i)
		for _, p := range g {
			fmt.Fprintf(w, "    %v\n", p)
		}
	}
}

func printImage(w io.Writer, title string, img image.Image) {
	printHeader(w, title)
	fmt.Fprintf(w, "  %v\n", img)
}
