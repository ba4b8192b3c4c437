package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

// newRemoveCmd builds the remove subcommand of a stage
func newRemoveCmd(kind store.JobKind, what, dependents string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("remove <%s>", what),
		Short: fmt.Sprintf("Delete a %s and its stored rows", what),
		Long: fmt.Sprintf(`Delete a %s job with everything it stored. A %s that %s
were built on is refused unless --cascade is given, which removes those
later stages as well. Running jobs are never removed.`, what, what, dependents),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], what)
			if err != nil {
				return err
			}
			cascade, _ := cmd.Flags().GetBool("cascade")

			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			return removeStage(context.Background(), db, id, kind, what, cascade)
		},
	}
	cmd.Flags().Bool("cascade", false, "also remove the stages built on it")
	return cmd
}

func removeStage(ctx context.Context, db *store.Store, id int64, kind store.JobKind, what string, cascade bool) error {
	removed, err := db.DeleteStage(ctx, id, kind, cascade)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s %d not found", what, id)
	case errors.Is(err, store.ErrInUse) && !cascade:
		return fmt.Errorf("cannot remove %s %d: %w (use --cascade to remove dependents)", what, id, err)
	case err != nil:
		return fmt.Errorf("cannot remove %s %d: %w", what, id, err)
	}

	if len(removed) > 1 {
		util.InfoLog("Removed dependent jobs: %v", removed[:len(removed)-1])
	}
	util.SuccessLog("Removed %s %d", what, id)
	return nil
}
