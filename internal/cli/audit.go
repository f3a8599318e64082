package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/store"
)

// NewAuditCommand creates the audit command group.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail and the dedup ledger",
	}

	query := func(use, short string, fn func(context.Context, *store.Store) (any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				a, err := openApp(ctx, rootOpts)
				if err != nil {
					return err
				}
				defer a.close()

				data, err := fn(ctx, a.store)
				if err != nil {
					return WrapExitError(ExitFailure, "audit query failed", err)
				}
				return formatter(rootOpts, cmd).Success(data)
			},
		}
	}

	cmd.AddCommand(
		query("events", "List every handled event and the last reaction it ran",
			func(ctx context.Context, s *store.Store) (any, error) {
				events, err := s.ListLastEvents(ctx)
				if events == nil {
					events = []ir.LastExecutedEvent{}
				}
				return events, err
			}),
		query("last", "Show the most recently handled event",
			func(ctx context.Context, s *store.Store) (any, error) {
				return s.LatestLastEvent(ctx)
			}),
		query("messages", "List the provider messages already processed",
			func(ctx context.Context, s *store.Store) (any, error) {
				records, err := s.ListProcessedMessages(ctx)
				if records == nil {
					records = []ir.DedupRecord{}
				}
				return records, err
			}),
		newAuditProcessedCommand(rootOpts),
	)
	return cmd
}

// ProcessedResult is the output of `audit processed`.
type ProcessedResult struct {
	MessageID string `json:"message_id"`
	UserID    int64  `json:"user_id"`
	Processed bool   `json:"processed"`
}

func newAuditProcessedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "processed <message-id> <user-id>",
		Short: "Report whether a provider message was already processed for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid user id %q", args[1]), err)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			processed, err := a.store.AlreadyProcessed(ctx, args[0], userID)
			if err != nil {
				return WrapExitError(ExitFailure, "audit query failed", err)
			}
			return formatter(rootOpts, cmd).Success(ProcessedResult{
				MessageID: args[0],
				UserID:    userID,
				Processed: processed,
			})
		},
	}
}
