package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallnest/ragflow/app"
	"github.com/smallnest/ragflow/report"
	"github.com/spf13/cobra"
)

type outputOptions struct {
	stream  bool
	verbose bool
	html    string
	json    bool
}

func (o *outputOptions) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&o.stream, "stream", "s", false, "Print every step as it completes")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "Print the partial state of every streamed step")
	cmd.Flags().StringVar(&o.html, "html", "", "Also write the answer as an HTML report to this file")
	cmd.Flags().BoolVar(&o.json, "json", false, "Print the result as JSON")
}

func newRunCmd() *cobra.Command {
	var (
		in     app.Input
		thread string
		out    outputOptions
	)
	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow",
		Example: `  ragflow run self-rag -q "What is task decomposition?"
  ragflow run translate --text "Hello" --language Italian`,
		Args: cobra.ExactArgs(1),
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
			if thread == "" {
				thread = uuid.NewString()
			}
			config := a.RunConfig(thread)

			var res *app.Result
			if out.stream {
				res, err = w.Stream(cmd.Context(), in, config, printEvent(cmd.OutOrStdout(), out.verbose))
			} else {
				res, err = w.Run(cmd.Context(), in, config)
			}
			if err != nil {
				return fmt.Errorf("%s failed (thread %s): %w", w.Name(), thread, err)
			}
			return printResult(cmd.OutOrStdout(), in.Question, res, out)
		},
	}
	cmd.Flags().StringVarP(&in.Question, "question", "q", "", "Question or task for the workflow")
	cmd.Flags().StringVar(&in.Text, "text", "", "Text to translate")
	cmd.Flags().StringVarP(&in.Language, "language", "l", "", "Target language for translate")
	cmd.Flags().StringVarP(&thread, "thread", "t", "", "Thread id for checkpoints (generated when empty)")
	out.register(cmd)
	return cmd
}

func newResumeCmd() *cobra.Command {
	var (
		thread string
		out    outputOptions
	)
	cmd := &cobra.Command{
		Use:   "resume <workflow>",
		Short: "Continue a thread from its latest checkpoint",
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
			var emit func(app.Event) error
			if out.stream {
				emit = printEvent(cmd.OutOrStdout(), out.verbose)
			}
			res, err := w.Resume(cmd.Context(), a.RunConfig(thread), emit)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), "", res, out)
		},
	}
	cmd.Flags().StringVarP(&thread, "thread", "t", "", "Thread id to resume")
	_ = cmd.MarkFlagRequired("thread")
	out.register(cmd)
	return cmd
}

func printEvent(w io.Writer, verbose bool) func(app.Event) error {
	return func(e app.Event) error {
		fmt.Fprintf(w, "%s %s %s\n", dimStyle.Render(fmt.Sprintf("[%02d]", e.Step)), nodeStyle.Render(e.Node), dimStyle.Render("-> "+e.Next))
		if verbose {
			data, err := json.MarshalIndent(e.Update, "     ", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "     %s\n", data)
		}
		return nil
	}
}

func printResult(w io.Writer, question string, res *app.Result, out outputOptions) error {
	if out.html != "" {
		f, err := os.Create(out.html)
		if err != nil {
			return err
		}
		r := report.Report{Title: res.Workflow, Question: question, Answer: res.Answer, Sources: res.Sources}
		if err := r.Write(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	if out.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintln(w, titleStyle.Render(res.Workflow)+" "+dimStyle.Render("thread "+res.ThreadID))
	fmt.Fprintln(w, answerStyle.Render(res.Answer))
	if len(res.Sources) > 0 {
		fmt.Fprintln(w, titleStyle.Render("Sources"))
		for i, d := range res.Sources {
			label := d.Source
			if label == "" {
				label = d.ID
			}
			fmt.Fprintf(w, "  %d. %s\n", i+1, label)
		}
	}
	if out.html != "" {
		fmt.Fprintln(w, dimStyle.Render("report written to "+out.html))
	}
	return nil
}
