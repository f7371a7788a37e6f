package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newEventsCommand() *cobra.Command {
	var (
		resourceID string
		eventType  string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the event journal",
		Long: `List the engine's append-only event journal, newest first. Events
record what happened to which resource and when.`,
		Example: `  # Last 20 events
  mast events

  # Everything that happened to one resource
  mast events --resource 2f1c...

  # Only failures
  mast events --type operation.failed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			var resFilter, typeFilter *string
			if resourceID != "" {
				resFilter = &resourceID
			}
			if eventType != "" {
				typeFilter = &eventType
			}
			events, err := app.store.GetEvents(ctx, resFilter, typeFilter, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(events)
			}

			for _, e := range events {
				resource := ""
				if e.ResourceID != nil {
					resource = *e.ResourceID
				}
				fmt.Printf("%-25s  %-28s  %-36s  %s\n",
					e.Timestamp.Format(time.RFC3339), e.EventType, resource, e.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&resourceID, "resource", "", "filter by resource ID")
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events to show")

	return cmd
}

func newAuditCommand() *cobra.Command {
	var (
		action string
		actor  string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail",
		Long:  `List who ran which command against what, newest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			var actionFilter, actorFilter *string
			if action != "" {
				actionFilter = &action
			}
			if actor != "" {
				actorFilter = &actor
			}
			entries, err := app.store.ListAuditEntries(ctx, actionFilter, actorFilter, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(entries)
			}

			for _, e := range entries {
				target := ""
				if e.TargetID != nil {
					target = *e.TargetID
				}
				fmt.Printf("%-25s  %-12s  %-28s  %s\n",
					e.Timestamp.Format(time.RFC3339), e.Actor, e.Action, target)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "filter by action")
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")

	return cmd
}
