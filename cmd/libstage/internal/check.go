package internal

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/goplus/libstage/internal/loader"
)

type checkReport struct {
	Path    string             `json:"path" yaml:"path"`
	Symbols map[string]uintptr `json:"symbols,omitempty" yaml:"symbols,omitempty"`
}

var checkCmd = &cobra.Command{
	Use:   "check [symbol...]",
	Short: "Load the staged library and resolve symbols",
	Long: `Check loads the staged library the way a binding would, from the in-source
directory or the directory named by the library path variable, and resolves
each given symbol.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	name := cfg.Library.StageAs
	if name == "" {
		name = cfg.Library.Name
	}
	opts := loader.Options{
		Platform:    cfg.Platform,
		Dir:         cfg.Source.FallbackDir,
		OverrideEnv: cfg.Search.PathEnv,
	}
	if dirs := cfg.Platform.SplitList(cfg.LibraryPath); len(dirs) > 0 {
		opts.Override = dirs[0]
	}

	lib, err := loader.Open(name, opts)
	if err != nil {
		return err
	}
	defer lib.Close()
	logger.Info().Str("path", lib.Path).Msg("library loaded")

	rep := checkReport{Path: lib.Path}
	for _, sym := range args {
		addr, err := lib.Symbol(sym)
		if err != nil {
			return fmt.Errorf("resolve %s in %s: %w", sym, lib.Path, err)
		}
		if rep.Symbols == nil {
			rep.Symbols = make(map[string]uintptr)
		}
		rep.Symbols[sym] = addr
	}

	return writeReport(cmd.OutOrStdout(), format, rep, func(w io.Writer) error {
		fmt.Fprintf(w, "loaded %s\n", rep.Path)
		for _, sym := range args {
			fmt.Fprintf(w, "%s %#x\n", sym, rep.Symbols[sym])
		}
		return nil
	})
}
