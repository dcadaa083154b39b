package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"courier/internal/client"
	"courier/internal/constants"
	"courier/internal/submission"
	"courier/pkg/models"
)

func sendCmd() *cobra.Command {
	var (
		eventType   string
		message     string
		source      string
		level       string
		tags        []string
		properties  map[string]string
		referenceID string
		value       float64
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Submit one event and flush it",
		Example: `  courier send --type log --source app.worker --level warn --message "disk almost full"
  courier send --type error --message "connection refused" --tags db
  courier send --type usage --source export-csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			c, err := client.New(cfg, log)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			if err := c.Startup(ctx); err != nil {
				_ = c.Close(ctx)
				return err
			}

			var b *client.EventBuilder
			switch eventType {
			case models.EventTypeLog:
				b = c.CreateLog(source, message, level)
			case models.EventTypeError:
				b = c.CreateException(errors.New(message))
			case models.EventTypeUsage:
				b = c.CreateFeatureUsage(source)
			case models.EventTypeNotFound:
				b = c.CreateNotFound(source)
			default:
				b = c.CreateEvent().SetType(eventType).SetSource(source).SetMessage(message)
			}
			if eventType == models.EventTypeError && source != "" {
				b.SetSource(source)
			}
			b.AddTags(tags...)
			for k, v := range properties {
				b.SetProperty(k, v)
			}
			if cmd.Flags().Changed("value") {
				b.SetValue(value)
			}
			if referenceID != "" {
				b.SetReferenceID(referenceID)
			}

			pctx := b.Submit(ctx)
			if err := c.Close(ctx); err != nil {
				log.WarnwCtx(ctx, "Client shutdown reported errors", "error", err)
			}

			if pctx.Cancelled {
				printf(cmd, "event discarded by plugins\n")
				return nil
			}
			if ref := c.LastReferenceID(); ref != "" {
				printf(cmd, "reference id: %s\n", ref)
			}
			printf(cmd, "queued events remaining: %d\n", c.Queue().Len())
			return nil
		},
	}

	cmd.Flags().StringVar(&eventType, "type", models.EventTypeLog, "Event type (log, error, usage, 404 or any custom type)")
	cmd.Flags().StringVar(&message, "message", "", "Event message")
	cmd.Flags().StringVar(&source, "source", "", "Event source, feature name or missing resource")
	cmd.Flags().StringVar(&level, "level", "info", "Log level for log events")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Tags to attach")
	cmd.Flags().StringToStringVar(&properties, "property", nil, "Extra data as key=value")
	cmd.Flags().StringVar(&referenceID, "reference-id", "", "Reference id to attach")
	cmd.Flags().Float64Var(&value, "value", 0, "Numeric value")
	return cmd
}

func flushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Deliver events persisted by earlier runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			c, err := client.New(cfg, log)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			if err := c.Startup(ctx); err != nil {
				_ = c.Close(ctx)
				return err
			}

			for ctx.Err() == nil {
				before := c.Queue().Len()
				c.ProcessQueue(ctx)
				after := c.Queue().Len()
				if after == 0 || after >= before || c.Queue().IsProcessingSuspended() {
					break
				}
			}

			if err := c.Close(ctx); err != nil {
				log.WarnwCtx(ctx, "Client shutdown reported errors", "error", err)
			}
			printf(cmd, "queued events remaining: %d\n", c.Queue().Len())
			return nil
		},
	}
}

// submitSyncCmd performs one request described on stdin and writes the
// outcome to stdout. Failures are reported in the response document, so the
// exit code is always zero.
func submitSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit-sync",
		Short: "Perform one blocking submission read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return nil
			}
			defer log.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			timeout := cfg.Submission.Timeout
			if timeout <= 0 {
				timeout = constants.DefaultHTTPTimeout
			}
			if err := submission.RunBridge(ctx, os.Stdin, cmd.OutOrStdout(), &http.Client{Timeout: timeout}); err != nil {
				log.ErrorwCtx(ctx, "Sync submission failed", "error", err)
			}
			return nil
		},
	}
}
