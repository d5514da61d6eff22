package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "migr8",
		Short: "Rule-driven migration of JSX/TSX component usages",
		Long: `migr8 finds where components from a package are used across a
JavaScript/TypeScript project and rewrites those usages according to a
JSON rule file.

Typical flow:
  migr8 build . --package @old/ui     # scan usages, write .migr8/ reports and a rules template
  migr8 migrate .                     # dry-run: print the plan and diffs
  migr8 migrate . --yolo              # back up inputs, then write changes
  migr8 backups restore <id>          # put the originals back`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "log format: text or json")

	root.AddCommand(
		newBuildCmd(),
		newMigrateCmd(),
		newWatchCmd(),
		newBackupsCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "migr8 %s\n", version)
		},
	}
}
