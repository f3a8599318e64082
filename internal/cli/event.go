package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/area/internal/engine"
	"github.com/roach88/area/internal/ir"
)

// EventOptions holds flags for the event command.
type EventOptions struct {
	*RootOptions
	File      string
	Trigger   string
	Service   string
	Params    map[string]string
	Context   map[string]string
	MessageID string
	UserID    string
}

// EventResult is the output of the event command.
type EventResult struct {
	EventID      string         `json:"event_id" yaml:"event_id"`
	Duplicate    bool           `json:"duplicate" yaml:"duplicate"`
	LastReaction string         `json:"last_reaction" yaml:"last_reaction"`
	Outcomes     []EventOutcome `json:"outcomes" yaml:"outcomes"`
}

// EventOutcome reports one dispatched task.
type EventOutcome struct {
	TaskID   int64  `json:"task_id" yaml:"task_id"`
	Reaction string `json:"reaction" yaml:"reaction"`
	Tier     string `json:"tier" yaml:"tier"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewEventCommand creates the event command.
func NewEventCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "event",
		Short: "Run the pipeline for one event against the database",
		Long: `Run the pipeline for one inbound event in this process: correlate it
with the stored tasks and run their reactions with the backends the
configuration enables.

The event is read from --file (JSON, "-" for stdin) or built from flags.

Example:
  area event --trigger push_event --service github \
    --param owner=octocat --param repo=hello --param branch=main
  area event --file event.json --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvent(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", `JSON event file ("-" for stdin)`)
	cmd.Flags().StringVar(&opts.Trigger, "trigger", "", "trigger name")
	cmd.Flags().StringVar(&opts.Service, "service", "", "emitting service")
	cmd.Flags().StringToStringVar(&opts.Params, "param", nil, "fingerprint parameter key=value")
	cmd.Flags().StringToStringVar(&opts.Context, "context", nil, "context parameter key=value")
	cmd.Flags().StringVar(&opts.MessageID, "message-id", "", "provider message id for deduplication")
	cmd.Flags().StringVar(&opts.UserID, "user-id", "", "owner of the deduplicated message")
	cmd.MarkFlagsMutuallyExclusive("file", "trigger")

	return cmd
}

func runEvent(opts *EventOptions, cmd *cobra.Command) error {
	ev, err := readEvent(opts, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read event", err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	eng, err := a.newEngine(ctx)
	if err != nil {
		return err
	}

	res, err := eng.HandleEvent(ctx, ev)
	if err != nil {
		out := formatter(opts.RootOptions, cmd)
		if engine.IsInvalidEvent(err) {
			_ = out.Error("invalid_event", err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid event", err)
		}
		return WrapExitError(ExitFailure, "event handling failed", err)
	}

	result := EventResult{
		EventID:      res.EventID,
		Duplicate:    res.Duplicate,
		LastReaction: res.LastReaction,
		Outcomes:     make([]EventOutcome, 0, len(res.Report.Outcomes)),
	}
	for _, o := range res.Report.Outcomes {
		item := EventOutcome{TaskID: o.TaskID, Reaction: o.Reaction, Tier: o.Tier}
		if o.Err != nil {
			item.Error = o.Err.Error()
		}
		result.Outcomes = append(result.Outcomes, item)
	}
	return formatter(opts.RootOptions, cmd).Success(result)
}

// readEvent decodes --file or assembles the event from flags.
func readEvent(opts *EventOptions, stdin io.Reader) (ir.InboundEvent, error) {
	var ev ir.InboundEvent
	if opts.File != "" {
		var (
			raw []byte
			err error
		)
		if opts.File == "-" {
			raw, err = io.ReadAll(stdin)
		} else {
			raw, err = os.ReadFile(opts.File)
		}
		if err != nil {
			return ev, err
		}
		if err := json.Unmarshal(raw, &ev); err != nil {
			return ev, fmt.Errorf("decode %s: %w", opts.File, err)
		}
		return ev, nil
	}

	ev = ir.InboundEvent{
		TriggerName:   opts.Trigger,
		Service:       opts.Service,
		Params:        opts.Params,
		ContextParams: opts.Context,
	}
	if ev.Params == nil {
		ev.Params = map[string]string{}
	}
	if ev.ContextParams == nil {
		ev.ContextParams = map[string]string{}
	}
	if opts.MessageID != "" || opts.UserID != "" {
		ev.Dedup = &ir.DedupInfo{MessageID: opts.MessageID, UserID: opts.UserID}
	}
	return ev, nil
}
