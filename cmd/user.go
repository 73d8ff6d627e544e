package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/auth"
	"github.com/example/resy-sniper/internal/config"
	"github.com/example/resy-sniper/internal/db"
	"github.com/example/resy-sniper/internal/migrate"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

// openDB opens and migrates the server database for one-off commands.
func openDB(ctx context.Context) (*db.DB, config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, config.Config{}, err
	}
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, config.Config{}, err
	}
	if err := migrate.Up(ctx, d); err != nil {
		d.Close()
		return nil, config.Config{}, err
	}
	return d, cfg, nil
}

func newUserAddCmd() *cobra.Command {
	var username, password string

	c := &cobra.Command{
		Use:   "add",
		Short: "Add a local user (username/password)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, cfg, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			store := auth.NewStore(d, cfg.CookieHashKey, cfg.CookieBlockKey)
			id, err := store.CreateUser(ctx, username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %q id=%d\n", username, id)
			return nil
		},
	}

	c.Flags().StringVar(&username, "username", "", "username")
	c.Flags().StringVar(&password, "password", "", "password (at least 8 characters)")
	_ = c.MarkFlagRequired("username")
	_ = c.MarkFlagRequired("password")
	return c
}
