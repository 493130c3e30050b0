package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Job maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "recompute <job-id>...",
		Short: "Re-derive and persist job status from the jobs' tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, 0, len(args))
			for _, a := range args {
				id, err := uuid.Parse(a)
				if err != nil {
					return fmt.Errorf("job id %q: %w", a, err)
				}
				ids = append(ids, id)
			}

			cfg, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			b, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			for _, id := range ids {
				status, err := b.service.RecomputeStatus(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("recompute %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, status)
			}
			return nil
		},
	})
	return cmd
}
