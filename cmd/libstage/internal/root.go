package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goplus/libstage/internal/config"
	"github.com/goplus/libstage/internal/logging"
)

var (
	verbosity  int
	configFile string
	rootDir    string
	format     string

	cfg    *config.Config
	logger zerolog.Logger
)

// overrideFlags maps command line flags to configuration keys.
var overrideFlags = map[string]string{
	"parallel": "build.parallel",
	"work-dir": "build.work_dir",
	"stage-as": "library.stage_as",
}

var rootCmd = &cobra.Command{
	Use:   "libstage",
	Short: "libstage provisions native shared libraries",
	Long: `libstage makes sure a platform shared library exists where a native extension
expects it, reusing a prebuilt copy when one is on the search path and driving
cmake to produce one otherwise.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.Setup(verbosity, cmd.ErrOrStderr())
		logger.Debug().Str("command", cmd.Name()).Msg("Command started")

		ov, err := overrides(cmd)
		if err != nil {
			return err
		}
		c, err := config.Load(config.Options{
			File:      configFile,
			Dir:       rootDir,
			Overrides: ov,
		})
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is libstage.toml in the source root)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "directory to start source root discovery from (default is the working directory)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "output format: text, yaml or json")
}

// pathFlags are resolved against the working directory, not the source root.
var pathFlags = map[string]bool{
	"work-dir": true,
}

// overrides collects the flags set on the command line as configuration keys.
func overrides(cmd *cobra.Command) (map[string]any, error) {
	m := make(map[string]any)
	for flag, key := range overrideFlags {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		v := f.Value.String()
		if pathFlags[flag] && v != "" {
			abs, err := filepath.Abs(v)
			if err != nil {
				return nil, fmt.Errorf("--%s: %w", flag, err)
			}
			v = abs
		}
		m[key] = v
	}
	return m, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("libstage failed")
		os.Exit(1)
	}
}
