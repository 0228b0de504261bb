package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"loyalty-rewards-be/pkg/tour"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const commandTimeout = 10 * time.Second

func NewSeenCmd(open StoreOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seen",
		Short: "Inspect or reset the tooltips a user has seen",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <user-id>",
		Short: "Print the seen tooltip ids of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, open, func(ctx context.Context, store tour.Store) error {
				out := cmd.OutOrStdout()
				seen, err := tour.LoadSeen(ctx, store, args[0])
				if err != nil {
					return err
				}
				if len(seen) == 0 {
					fmt.Fprintf(out, "%s has not seen any tooltip\n", args[0])
				}
				for _, id := range seen {
					fmt.Fprintln(out, id)
				}

				inTour, err := tour.FlagSet(ctx, store, tour.FlagKey(args[0]))
				if err != nil {
					return err
				}
				if inTour {
					color.New(color.FgYellow).Fprintln(out, "tour in progress")
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <user-id>",
		Short: "Forget every tooltip a user has seen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, open, func(ctx context.Context, store tour.Store) error {
				if err := store.Remove(ctx, tour.SeenKey(args[0])); err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ seen set of %s cleared\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

func NewFlagCmd(open StoreOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flag",
		Short: "Manage the tour-in-progress flag",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <user-id>",
		Short: "Clear a stuck tour flag so background refresh resumes",
		Long: `Clear a user's tour-in-progress flag. Refresh for that user resumes on
the next interval tick. A tour still running in an API session is not
stopped; it ends at its next step.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, open, func(ctx context.Context, store tour.Store) error {
				key := tour.FlagKey(args[0])
				set, err := tour.FlagSet(ctx, store, key)
				if err != nil {
					return err
				}
				if !set {
					fmt.Fprintf(cmd.OutOrStdout(), "%s has no tour flag\n", args[0])
					return nil
				}
				if err := store.Remove(ctx, key); err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ tour flag of %s cleared\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

func withStore(cmd *cobra.Command, open StoreOpener, fn func(ctx context.Context, store tour.Store) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	store, release, err := open(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, store)
}

func sortedKeys(table map[string]tour.TooltipDefinition) []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
