// Package cli contains the Cobra commands of the hubflow operator CLI.
package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drblury/hubflow/internal/runtime"
	"github.com/drblury/hubflow/internal/runtime/config"
	"github.com/drblury/hubflow/internal/runtime/logging"
)

// NewRoot constructs the root command. deps are handed to every Service the
// commands create.
func NewRoot(deps runtime.ServiceDependencies) *cobra.Command {
	root := &cobra.Command{
		Use:           "hubflow",
		Short:         "Send, receive and administer partitioned event streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("transport", "", "Broker transport: kafka|memory (default from HUBFLOW_TRANSPORT or memory)")
	flags.StringSlice("brokers", nil, "Kafka broker addresses")
	flags.String("environment", "", "Environment name; only development environments may provision streams")
	flags.Bool("auto-provision", false, "Allow setup to create missing streams")
	flags.String("log-level", "warn", "Log level: trace|debug|info|warn|error")

	root.AddCommand(
		newSendCommand(deps),
		newListenCommand(deps),
		newCheckCommand(deps),
		newSetupCommand(deps),
	)
	return root
}

func newService(cmd *cobra.Command, deps runtime.ServiceDependencies) (*runtime.Service, error) {
	cfg := config.Default()
	config.FromEnv(&cfg)

	flags := cmd.Flags()
	if v, _ := flags.GetString("transport"); v != "" {
		cfg.Transport = v
	}
	if v, _ := flags.GetStringSlice("brokers"); len(v) > 0 {
		cfg.KafkaBrokers = v
	}
	if v, _ := flags.GetString("environment"); v != "" {
		cfg.Environment = v
	}
	if flags.Changed("auto-provision") {
		cfg.AutoProvision, _ = flags.GetBool("auto-provision")
	}

	levelName, _ := flags.GetString("log-level")
	level, err := parseLevel(levelName)
	if err != nil {
		return nil, err
	}
	logger := logging.NewSlogServiceLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	return runtime.TryNewService(&cfg, logger, cmd.Context(), deps)
}

func parseLevel(name string) (slog.Level, error) {
	if strings.EqualFold(name, "trace") {
		return logging.LevelTrace, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q; use trace|debug|info|warn|error", name)
	}
	return level, nil
}
