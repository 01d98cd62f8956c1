package internal

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/goplus/libstage/internal/build"
	"github.com/goplus/libstage/internal/logging"
	"github.com/goplus/libstage/internal/provision"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Stage the shared library, building it if needed",
	Long: `Provision searches for a prebuilt library, builds one with cmake when none is
found, and copies the result into every staging directory.`,
	Args: cobra.NoArgs,
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().String("parallel", "", "build parallelism (default is all cores)")
	provisionCmd.Flags().String("work-dir", "", "cmake build directory, relative to the working directory")
	provisionCmd.Flags().String("stage-as", "", "logical name of the staged library")
	rootCmd.AddCommand(provisionCmd)
}

func runProvision(cmd *cobra.Command, args []string) error {
	plog := logging.Component(logger, "provision")
	defer logging.Duration(plog, "provision")()

	// Toolchain output is shown only when verbose.
	var out io.Writer = io.Discard
	if verbosity > 0 {
		out = cmd.ErrOrStderr()
	}
	builder := build.New(build.Options{
		CMake:      cfg.Build.CMake,
		Generator:  cfg.Build.Generator,
		BuildType:  cfg.Build.BuildType,
		MinVersion: cfg.Build.MinVersion,
		Defines:    cfg.Build.Defines,
		Stdout:     out,
		Stderr:     out,
		Log:        logging.Component(logger, "build"),
	})

	res, err := provision.New(cfg.Platform, builder, plog).Provision(cmd.Context(), provision.Request{
		Name:        cfg.Library.Name,
		StageAs:     cfg.Library.StageAs,
		SearchPaths: cfg.SearchPaths(),
		Build: build.Request{
			SourceDir:    cfg.Source.Root,
			WorkDir:      cfg.Build.WorkDir,
			Targets:      []string{cfg.Library.Target},
			Parallelism:  cfg.Build.Parallel,
			OutputSubdir: cfg.Library.OutputSubdir,
		},
		Targets: cfg.StagingTargets(),
	})
	if err != nil {
		return err
	}

	return writeReport(cmd.OutOrStdout(), format, res, func(w io.Writer) error {
		how := "built"
		if res.Reused {
			how = "reused"
		}
		fmt.Fprintf(w, "%s %s\n", how, res.Source)
		for _, p := range res.Staged {
			fmt.Fprintf(w, "staged %s\n", p)
		}
		_, err := fmt.Fprintf(w, "blake3 %s\n", res.Digest)
		return err
	})
}
