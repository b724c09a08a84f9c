package main

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newThreadCmd() *cobra.Command {
	var history bool
	cmd := &cobra.Command{
		Use:   "thread <workflow> <thread-id>",
		Short: "Show the saved state of a thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := a.Workflow(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if !history {
				snap, err := w.State(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				return enc.Encode(snap)
			}

			snaps, err := w.History(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			for _, s := range snaps {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", dimStyle.Render(fmt.Sprintf("[%02d]", s.Step)), nodeStyle.Render(s.NodeName), dimStyle.Render("-> "+s.Next))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "List every checkpoint of the thread")
	return cmd
}
