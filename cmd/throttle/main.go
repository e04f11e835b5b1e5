package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

func init() {
	// import maxprocs rather than go.uber.org/automaxprocs, whose init logs the change
	_, _ = maxprocs.Set()
}

var (
	flagService  bool
	flagDownload []string
	flagStatus   bool
)

// cmdRoot is the base command when no other command has been specified.
// The three top-level flags (--service, --download, --status) are
// spec.md §6's entire documented CLI surface; "role" below is an
// additive internal subcommand the supervisor uses to self-exec each role.
var cmdRoot = &cobra.Command{
	Use:               "throttle",
	Short:             "Host-local download orchestration and bandwidth throttling",
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case flagService:
			return runService(cmd.Context())
		case len(flagDownload) > 0:
			if len(flagDownload) != 2 {
				return fmt.Errorf("--download requires exactly URL and DEST")
			}
			return runDownload(cmd.Context(), flagDownload[0], flagDownload[1])
		case flagStatus:
			return runStatus(cmd.Context())
		default:
			return cmd.Help()
		}
	},
}

func init() {
	cmdRoot.Flags().BoolVar(&flagService, "service", false, "run as the bandwidth arbiter role")
	cmdRoot.Flags().StringSliceVar(&flagDownload, "download", nil, "URL DEST: run a one-shot download")
	cmdRoot.Flags().BoolVar(&flagStatus, "status", false, "print role-running and heartbeat freshness table")

	cmdRoot.AddCommand(roleCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmdRoot.ExecuteContext(ctx); err != nil {
		Warnf("%v\n", err)
		Exit(1)
	}
}
