package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hyperjump/shiryo/internal/cli"
	"github.com/spf13/cobra"
)

// watchClient returns a client for the watch commands, which always need a running server.
func (o *globalOptions) watchClient() (*cli.Client, error) {
	if o.serverURL == "" {
		return nil, errors.New("watch commands need a running server; set --server")
	}
	return o.remoteClient(), nil
}

func newWatchCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage inbox directories on the server",
		Long: `Inbox directories hold one subdirectory per owner. A file saved as
<inbox>/<owner>/report.pdf is ingested as report.pdf for that owner and deleted
when the file is removed.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List inbox directories",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				client, err := opts.watchClient()
				if err != nil {
					return err
				}
				dirs, err := client.WatchDirectories(cmd.Context())
				if err != nil {
					return err
				}
				if len(dirs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No inbox directories.")
					return nil
				}
				for _, d := range dirs {
					fmt.Fprintln(cmd.OutOrStdout(), d)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <path>",
			Short: "Watch an inbox directory and ingest its files",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := opts.watchClient()
				if err != nil {
					return err
				}
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				if err := client.AddWatchDirectory(cmd.Context(), abs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Watching %s\n", abs)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <path>",
			Short: "Stop watching an inbox directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := opts.watchClient()
				if err != nil {
					return err
				}
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				if err := client.RemoveWatchDirectory(cmd.Context(), abs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped watching %s\n", abs)
				return nil
			},
		},
	)
	return cmd
}
