package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "graph <workflow>",
		Short: "Export the workflow graph as Mermaid or Graphviz DOT",
		Args:  cobra.ExactArgs(1),
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
			switch format {
			case "mermaid":
				fmt.Fprint(cmd.OutOrStdout(), w.Mermaid())
			case "dot":
				fmt.Fprint(cmd.OutOrStdout(), w.DOT())
			default:
				return fmt.Errorf("unknown format %q, want mermaid or dot", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "mermaid", "Output format: mermaid or dot")
	return cmd
}

func newWorkflowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workflows",
		Short: "List the available workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.Close()

			for _, name := range a.Workflows() {
				w, err := a.Workflow(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", nodeStyle.Render(fmt.Sprintf("%-14s", name)), w.Description())
			}
			return nil
		},
	}
}
