package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/config"
	"github.com/example/resy-sniper/internal/resy"
)

func newPingCmd() *cobra.Command {
	var configPath string

	c := &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured Resy credentials are accepted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadSnipe(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			client := resy.New(cfg.Credentials, resy.WithBaseURL(cfg.APIURL))
			if err := client.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	c.Flags().StringVarP(&configPath, "config", "c", "config.json", "snipe config file (JSON or YAML)")
	return c
}
