package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drblury/hubflow/internal/runtime"
	"github.com/drblury/hubflow/internal/runtime/envelope"
	"github.com/drblury/hubflow/internal/runtime/jsoncodec"
)

type sendResult struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	MessageType  string `json:"message_type"`
	PartitionKey string `json:"partition_key,omitempty"`
}

// newSendCommand constructs the `send` subcommand.
func newSendCommand(deps runtime.ServiceDependencies) *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send <address>",
		Short: "Send one envelope to a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgType, _ := cmd.Flags().GetString("type")
			data, _ := cmd.Flags().GetString("data")
			contentType, _ := cmd.Flags().GetString("content-type")
			key, _ := cmd.Flags().GetString("key")
			headers, _ := cmd.Flags().GetStringArray("header")

			payload, err := readData(data)
			if err != nil {
				return err
			}
			env := envelope.New(msgType, payload)
			env.ContentType = contentType
			env.PartitionKey = key
			for _, h := range headers {
				name, value, ok := strings.Cut(h, "=")
				if !ok || name == "" {
					return fmt.Errorf("invalid --header %q; expected name=value", h)
				}
				env.SetHeader(name, value)
			}

			svc, err := newService(cmd, deps)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.SendEnvelope(cmd.Context(), args[0], env); err != nil {
				return err
			}
			return jsoncodec.Encode(cmd.OutOrStdout(), sendResult{
				ID:           env.ID.String(),
				Address:      args[0],
				MessageType:  env.MessageType,
				PartitionKey: env.PartitionKey,
			})
		},
	}
	sendCmd.Flags().String("type", "", "Message type (required)")
	sendCmd.Flags().String("data", "", "Payload, or @path to read it from a file")
	sendCmd.Flags().String("content-type", "application/json", "Payload content type")
	sendCmd.Flags().String("key", "", "Partition key (default: envelope id)")
	sendCmd.Flags().StringArray("header", nil, "Header as name=value (repeatable)")
	_ = sendCmd.MarkFlagRequired("type")
	return sendCmd
}

func readData(arg string) ([]byte, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read --data file: %w", err)
		}
		return b, nil
	}
	return []byte(arg), nil
}
