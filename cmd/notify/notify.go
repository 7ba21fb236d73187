// Package notify implements the `syncwave notify` command.
package notify

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/notify"
	runtimectx "github.com/syncwave/syncwave/internal/runtime"
)

// Command returns a cobra command that sends a test notification to the
// configured service URLs.
func Command(rt *runtimectx.Context) *cobra.Command {
	var (
		title   string
		message string
		urls    []string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test notification",
		Long: `Send a test notification through the configured shoutrrr URLs.

Examples:
  syncwave notify
  syncwave notify --title "Hello" --message "Testing delivery"
  syncwave notify --url "ntfy://ntfy.sh/my-topic"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := rt.Settings.Notify
			if len(urls) > 0 {
				settings.Enabled = true
				settings.URLs = urls
			}
			if timeout > 0 {
				settings.Timeout = timeout
			}
			sender, err := NewSender(&settings)
			if err != nil {
				return err
			}
			return Deliver(cmd.OutOrStdout(), sender, title, message)
		},
	}

	cmd.Flags().StringVar(&title, "title", "SyncWave test", "Notification title")
	cmd.Flags().StringVar(&message, "message", "This is a test notification from SyncWave", "Notification message")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "Send to these URLs instead of notify.urls")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Delivery timeout (default: notify.timeout)")
	return cmd
}

// NewSender builds a sender from settings. Notifications must be enabled.
func NewSender(settings *conf.NotifySettings) (notify.Sender, error) {
	if !settings.Enabled {
		return nil, errors.Newf("notifications are disabled, set notify.enabled or pass --url").
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return notify.NewShoutrrrSender(settings.URLs, settings.Timeout)
}

// Deliver sends one message synchronously and reports the outcome on w.
func Deliver(w io.Writer, sender notify.Sender, title, message string) error {
	start := time.Now()
	if err := sender.Send(title, message); err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Notification sent in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}
