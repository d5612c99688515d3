package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"number-duel-server/config"
	"number-duel-server/storage"
)

// seedOptions holds flags for the seed command.
type seedOptions struct {
	*rootOptions
	Count  int
	Prefix string
}

func newSeedCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &seedOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create test users in the database",
		Long: `Create (or reuse) a batch of test users directly in the database,
printing one "username user_id" line per user. Safe to run repeatedly:
existing usernames are reused, not duplicated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 10, "number of users to create")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "testuser", "username prefix")

	return cmd
}

func runSeed(cmd *cobra.Command, opts *seedOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := storage.NewStore(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()

	for i := 1; i <= opts.Count; i++ {
		username := fmt.Sprintf("%s-%d", opts.Prefix, i)
		userID, err := store.EnsureUser(cmd.Context(), username)
		if err != nil {
			return fmt.Errorf("creating %s: %w", username, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", username, userID)
	}
	return nil
}
