package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallnest/ragflow/app"
	"github.com/smallnest/ragflow/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragflow",
		Short:         "ragflow runs retrieval augmented generation workflows",
		Long:          `ragflow runs graph based RAG workflows (corrective, self-reflective and adaptive RAG) and related agents from the command line or over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "ragflow.yaml", "Path to the YAML configuration file")
	root.PersistentFlags().String("env", ".env", "Path to a .env file")

	root.AddCommand(
		newRunCmd(),
		newResumeCmd(),
		newGraphCmd(),
		newIngestCmd(),
		newServeCmd(),
		newWorkflowsCmd(),
		newThreadCmd(),
	)
	return root
}

// openApp loads the configuration named by the persistent flags and builds
// the application. Metrics go to reg.
func openApp(cmd *cobra.Command, reg prometheus.Registerer) (*app.App, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env")

	cfg, err := config.Load(path, envFile)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, app.WithRegisterer(reg))
}
