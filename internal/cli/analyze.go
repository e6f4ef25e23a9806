package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kiranshivaraju/finsight/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type AnalyzeOptions struct {
	GlobalOptions

	Query string
	Fast  bool
	Wait  bool
}

func DefaultAnalyzeOptions() *AnalyzeOptions {
	return &AnalyzeOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdAnalyze() *cobra.Command {
	return newCmdAnalyze(DefaultAnalyzeOptions())
}

func newCmdAnalyze(o *AnalyzeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Upload a PDF financial report for analysis.",
		Example: "  finsightctl analyze annual-report.pdf --query \"Is the dividend sustainable?\" --wait\n" +
			"  finsightctl analyze q3.pdf --fast -o yaml",
		Args:         cobra.ExactArgs(1),
		RunE:         runE(o),
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *AnalyzeOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVarP(&o.Query, "query", "q", o.Query, "Question to answer from the report")
	fs.BoolVar(&o.Fast, "fast", o.Fast, "Analyze inline and wait for the result instead of queueing")
	fs.BoolVarP(&o.Wait, "wait", "w", o.Wait, "Poll a queued analysis until it completes or fails")
}

func (o *AnalyzeOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.Fast && o.Wait {
		return fmt.Errorf("--wait has no effect with --fast")
	}
	info, err := os.Stat(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", args[0])
	}
	return nil
}

func (o *AnalyzeOptions) Run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer f.Close()
	name := filepath.Base(args[0])

	if o.Fast {
		res, err := o.Client().AnalyzeFast(ctx, name, f, o.Query)
		if err != nil {
			return fmt.Errorf("analyzing %s: %w", name, err)
		}
		return o.print(cmd.OutOrStdout(), res)
	}

	c := o.Client()
	queued, err := c.Submit(ctx, name, f, o.Query)
	if err != nil {
		return fmt.Errorf("submitting %s: %w", name, err)
	}
	if !o.Wait {
		return o.print(cmd.OutOrStdout(), queued)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "task %s queued, waiting for result\n", queued.TaskID)
	c = client.New(o.ServerURL, o.APIKey, append(o.clientOpts, client.WithPollObserver(func(a *client.Analysis) {
		if a.Progress != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "[%3d%%] %s\n", a.Progress.Current, a.Progress.Status)
		}
	}))...)
	analysis, err := c.WaitForResult(ctx, queued.TaskID)
	if err != nil {
		return fmt.Errorf("waiting for task %s: %w", queued.TaskID, err)
	}
	return o.print(cmd.OutOrStdout(), analysis)
}
