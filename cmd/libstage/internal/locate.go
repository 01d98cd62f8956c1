package internal

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/goplus/libstage/internal/locate"
	"github.com/goplus/libstage/internal/logging"
)

type locateReport struct {
	File        string   `json:"file" yaml:"file"`
	SearchPaths []string `json:"search_paths" yaml:"search_paths"`
	Match       string   `json:"match,omitempty" yaml:"match,omitempty"`
}

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Show the search path and the prebuilt library it finds",
	Args:  cobra.NoArgs,
	RunE:  runLocate,
}

func init() {
	rootCmd.AddCommand(locateCmd)
}

func runLocate(cmd *cobra.Command, args []string) error {
	l := locate.New(cfg.Platform)
	l.Log = logging.Component(logger, "locate")

	stagedName := cfg.Library.StageAs
	if stagedName == "" {
		stagedName = cfg.Library.Name
	}
	rep := locateReport{
		File:        cfg.StagedFileName(),
		SearchPaths: cfg.SearchPaths(),
	}
	path, found := l.Locate(stagedName, rep.SearchPaths)
	if found {
		rep.Match = path
	}

	err := writeReport(cmd.OutOrStdout(), format, rep, func(w io.Writer) error {
		for _, dir := range rep.SearchPaths {
			fmt.Fprintln(w, dir)
		}
		if found {
			_, err := fmt.Fprintf(w, "found %s\n", rep.Match)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s not found on the search path", rep.File)
	}
	return nil
}
