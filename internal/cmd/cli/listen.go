package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/hubflow/internal/runtime"
	"github.com/drblury/hubflow/internal/runtime/envelope"
	"github.com/drblury/hubflow/internal/runtime/jsoncodec"
	"github.com/drblury/hubflow/internal/runtime/listener"
	"github.com/drblury/hubflow/internal/runtime/metadata"
)

// errLimitReached keeps envelopes past --limit un-checkpointed.
var errLimitReached = errors.New("listen limit reached")

// receivedEnvelope is one line of `listen` output.
type receivedEnvelope struct {
	ID           string            `json:"id"`
	MessageType  string            `json:"message_type"`
	ContentType  string            `json:"content_type,omitempty"`
	PartitionKey string            `json:"partition_key,omitempty"`
	ParentID     string            `json:"parent_id,omitempty"`
	Source       string            `json:"source,omitempty"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Destination  string            `json:"destination"`
	Headers      metadata.Metadata `json:"headers,omitempty"`
	Data         any               `json:"data,omitempty"`
}

func toReceived(env *envelope.Envelope) receivedEnvelope {
	out := receivedEnvelope{
		ID:           env.ID.String(),
		MessageType:  env.MessageType,
		ContentType:  env.ContentType,
		PartitionKey: env.PartitionKey,
		ParentID:     env.ParentID,
		Source:       env.Source,
		Destination:  env.Destination,
		Headers:      env.Headers,
	}
	if !env.SentAt.IsZero() {
		sentAt := env.SentAt
		out.SentAt = &sentAt
	}
	if len(env.Data) > 0 {
		if jsoncodec.Valid(env.Data) {
			out.Data = jsoncodec.RawMessage(env.Data)
		} else {
			out.Data = string(env.Data)
		}
	}
	return out
}

// newListenCommand constructs the `listen` subcommand.
func newListenCommand(deps runtime.ServiceDependencies) *cobra.Command {
	listenCmd := &cobra.Command{
		Use:   "listen <address>",
		Short: "Print envelopes received on an endpoint as JSON lines",
		Long: "Print envelopes received on an endpoint as JSON lines. Each printed envelope is " +
			"checkpointed for the consumer group, so use a dedicated group to inspect a stream.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			svc, err := newService(cmd, deps)
			if err != nil {
				return err
			}

			var (
				mu    sync.Mutex
				count int
			)
			out := cmd.OutOrStdout()
			_, err = svc.Listen(args[0], listener.ReceiverFunc(func(_ context.Context, env *envelope.Envelope) error {
				mu.Lock()
				defer mu.Unlock()
				if limit > 0 && count >= limit {
					return errLimitReached
				}
				if err := jsoncodec.Encode(out, toReceived(env)); err != nil {
					return err
				}
				count++
				if limit > 0 && count >= limit {
					cancel()
				}
				return nil
			}))
			if err != nil {
				_ = svc.Close()
				return err
			}
			return svc.Start(ctx)
		},
	}
	listenCmd.Flags().Int("limit", 0, "Stop after N envelopes (0 = until interrupted)")
	return listenCmd
}
