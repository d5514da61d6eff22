package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gnana997/migr8/pkg/backup"
)

func newBackupsCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List, verify and restore migration backups",
	}
	cmd.PersistentFlags().StringVar(&root, "root", "", "project root (default MIGR8_ROOT or the working directory)")

	service := func(cmd *cobra.Command) (*backup.Service, error) {
		var args []string
		if root != "" {
			args = []string{root}
		}
		projectRoot, cfg, err := resolveConfig(cmd, args)
		if err != nil {
			return nil, err
		}
		return backup.NewService(projectRoot, cfg.BackupDir, newLogger(cmd, cfg)), nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			manifests, err := svc.ListBackups()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(manifests) == 0 {
				fmt.Fprintln(out, "No backups.")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %-20s  %5s  %s\n", "ID", "CREATED", "FILES", "NOTE")
			fmt.Fprintf(out, "%s\n", strings.Repeat("─", 80))
			for _, m := range manifests {
				note := m.Note
				if m.FinalizedAt.IsZero() {
					note = strings.TrimSpace(note + " (not finalized)")
				}
				fmt.Fprintf(out, "%-36s  %-20s  %5d  %s\n", m.ID, m.CreatedAt.Local().Format("2006-01-02 15:04:05"), len(m.Files), note)
			}
			return nil
		},
	}

	verify := &cobra.Command{
		Use:   "verify <id>",
		Short: "Check a backup's stored copies against their checksums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			if err := svc.Verify(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup %s is intact.\n", args[0])
			return nil
		},
	}

	restore := &cobra.Command{
		Use:   "restore <id>",
		Short: "Put the backed-up originals back in place",
		Long: `Restore every file of a backup. Files edited after the migration
are left alone and reported as conflicted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			res, err := svc.Restore(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "restored    %d\n", len(res.Restored))
			fmt.Fprintf(out, "conflicted  %d\n", len(res.Conflicted))
			fmt.Fprintf(out, "failed      %d\n", len(res.Failed))
			for _, p := range res.Conflicted {
				fmt.Fprintf(out, "  conflict  %s (changed since the migration)\n", p)
			}
			for _, f := range res.Failed {
				fmt.Fprintf(out, "  failed    %s: %s\n", f.Path, f.Reason)
			}
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d file(s) could not be restored", len(res.Failed))
			}
			return nil
		},
	}

	cmd.AddCommand(list, verify, restore)
	return cmd
}
