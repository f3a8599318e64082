package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/tasks"
)

// TaskOptions holds flags for the task subcommands.
type TaskOptions struct {
	*RootOptions

	Owner   int64
	Service string

	Trigger      string
	TriggerArgs  []string
	Reaction     string
	ReactionArgs []string
	OAuthToken   string
}

// NewTaskCommand creates the task command group.
func NewTaskCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TaskOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Long: `Create a task binding a trigger and its arguments to a reaction.

Example:
  area task create --owner 1 --service github --trigger push_event \
    --trigger-args octocat,hello,main --reaction send_email`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskCreate(opts, cmd)
		},
	}
	create.Flags().Int64Var(&opts.Owner, "owner", 0, "owning user id (required)")
	create.Flags().StringVar(&opts.Service, "service", "", "service the task belongs to (required)")
	create.Flags().StringVar(&opts.Trigger, "trigger", "", "trigger name (required)")
	create.Flags().StringSliceVar(&opts.TriggerArgs, "trigger-args", nil, "positional trigger arguments")
	create.Flags().StringVar(&opts.Reaction, "reaction", "", "reaction name (required)")
	create.Flags().StringSliceVar(&opts.ReactionArgs, "reaction-args", nil, "positional reaction arguments")
	create.Flags().StringVar(&opts.OAuthToken, "oauth-token", "", "provider access token; marks the task as requiring OAuth")
	for _, name := range []string{"owner", "service", "trigger", "reaction"} {
		_ = create.MarkFlagRequired(name)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the tasks of an owner or a service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskList(opts, cmd)
		},
	}
	list.Flags().Int64Var(&opts.Owner, "owner", 0, "owning user id")
	list.Flags().StringVar(&opts.Service, "service", "", "service name; attaches fresh OAuth tokens")
	list.MarkFlagsOneRequired("owner", "service")
	list.MarkFlagsMutuallyExclusive("owner", "service")

	get := &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskGet(opts, cmd, args[0])
		},
	}

	del := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskDelete(opts, cmd, args[0])
		},
	}

	cmd.AddCommand(create, list, get, del)
	return cmd
}

func runTaskCreate(opts *TaskOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	params := map[string]string{"service": opts.Service}
	if opts.OAuthToken != "" {
		params["oauth_token"] = opts.OAuthToken
	}
	task, err := a.tasks.Create(ctx, tasks.CreateRequest{
		Trigger:      opts.Trigger,
		TriggerArgs:  opts.TriggerArgs,
		ReactionName: opts.Reaction,
		ReactionArgs: opts.ReactionArgs,
		OwnerID:      opts.Owner,
		Params:       params,
	})
	if err != nil {
		if tasks.IsInvalidTask(err) {
			_ = formatter(opts.RootOptions, cmd).Error("invalid_task", err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid task", err)
		}
		return WrapExitError(ExitFailure, "failed to create task", err)
	}
	return formatter(opts.RootOptions, cmd).Success(redact(task))
}

func runTaskList(opts *TaskOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	if opts.Service != "" {
		items, err := a.tasks.ListForService(ctx, opts.Service)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list tasks", err)
		}
		for i := range items {
			items[i].Task = redact(items[i].Task)
		}
		return formatter(opts.RootOptions, cmd).Success(items)
	}

	list, err := a.tasks.ListForOwner(ctx, opts.Owner)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list tasks", err)
	}
	out := make([]ir.Task, len(list))
	for i, task := range list {
		out[i] = redact(task)
	}
	return formatter(opts.RootOptions, cmd).Success(out)
}

func runTaskGet(opts *TaskOptions, cmd *cobra.Command, arg string) error {
	id, err := parseTaskID(arg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	task, err := a.tasks.Get(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("task %d", id), err)
	}
	return formatter(opts.RootOptions, cmd).Success(redact(task))
}

func runTaskDelete(opts *TaskOptions, cmd *cobra.Command, arg string) error {
	id, err := parseTaskID(arg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.tasks.Delete(ctx, id); err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("delete task %d", id), err)
	}
	return formatter(opts.RootOptions, cmd).Success(fmt.Sprintf("task %d deleted", id))
}

func parseTaskID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid task id %q", arg), err)
	}
	return id, nil
}

// redact hides the cached access token of a task from terminal output.
func redact(task ir.Task) ir.Task {
	if task.OAuthToken != "" {
		task.OAuthToken = "[redacted]"
	}
	return task
}
