package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type StatusOptions struct {
	GlobalOptions
}

func DefaultStatusOptions() *StatusOptions {
	return &StatusOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdStatus() *cobra.Command {
	o := DefaultStatusOptions()
	cmd := &cobra.Command{
		Use:          "status TASK_ID",
		Short:        "Show an analysis and its progress.",
		Args:         cobra.ExactArgs(1),
		RunE:         runE(o),
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *StatusOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if _, err := uuid.Parse(args[0]); err != nil {
		return fmt.Errorf("invalid task id %q: %w", args[0], err)
	}
	return nil
}

func (o *StatusOptions) Run(cmd *cobra.Command, args []string) error {
	id := uuid.MustParse(args[0])
	a, err := o.Client().Get(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("getting task %s: %w", id, err)
	}
	return o.print(cmd.OutOrStdout(), a)
}
