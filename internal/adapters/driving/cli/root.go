// Package cli provides the tablesync command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X ...cli.version=...".
var version = "dev"

// ErrInvalidParameter is returned when the mode argument is not recognised.
var ErrInvalidParameter = errors.New("invalid parameter")

// invalidParameterMessage is printed for an unknown or missing mode.
const invalidParameterMessage = "Invalid parameter. App will not run"

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tablesync [manual|schedule]",
	Short: "Copy remote CSV tables to an FTPS or S3 store",
	Long: `tablesync downloads every table listed in the sources file, writes each
one to <name>.CSV, uploads the file to the remote store and deletes the
local copy.

  tablesync manual     run once and exit
  tablesync schedule   run every day at 17:11 (see --at)

Remote store credentials are read from FTPHOST, FTPUSER and FTPPASS.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configFile, "config", "", "settings file (default tablesync.toml or tablesync.yaml in the working directory)")
	f.String("sources", "", "sources file (default config.json)")
	f.String("workdir", "", "directory for local artifacts (default .)")
	f.String("store", "", "remote store: ftps or s3 (default ftps)")
	f.String("history-db", "", "run history database (default ~/.tablesync/data/history.db)")
	f.Bool("no-history", false, "keep run history in memory only")
	f.String("timezone", "", "IANA time zone of the daily trigger (default local)")
	f.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	f.String("log-level", "", "log level: debug, info, warn or error")
	f.String("log-format", "", "log format: text or json")
}

// runRoot handles a mode that matched no command.
func runRoot(cmd *cobra.Command, args []string) error {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), invalidParameterMessage)
	if len(args) == 0 {
		cmd.PrintErrln("usage: tablesync manual|schedule")
		return fmt.Errorf("%w: no mode given", ErrInvalidParameter)
	}
	return fmt.Errorf("%w: %q", ErrInvalidParameter, args[0])
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context; a scheduled run in progress is allowed to finish.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:])
}

func execute(ctx context.Context, args []string) error {
	// Subcommands otherwise keep the context of their first execution.
	for _, c := range rootCmd.Commands() {
		c.SetContext(ctx)
	}
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, ErrInvalidParameter) {
		rootCmd.PrintErrln("Error:", err)
	}
	return err
}
