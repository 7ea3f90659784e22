package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/hubflow/internal/runtime"
)

// newCheckCommand constructs the `check` subcommand.
func newCheckCommand(deps runtime.ServiceDependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "check <address>...",
		Short: "Verify that the addressed streams exist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(cmd, deps, args, (*runtime.Service).Check)
		},
	}
}

// newSetupCommand constructs the `setup` subcommand.
func newSetupCommand(deps runtime.ServiceDependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "setup <address>...",
		Short: "Create the addressed streams (development environments with --auto-provision only)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(cmd, deps, args, (*runtime.Service).Setup)
		},
	}
}

func runAdmin(cmd *cobra.Command, deps runtime.ServiceDependencies, addresses []string, op func(*runtime.Service, context.Context) error) error {
	svc, err := newService(cmd, deps)
	if err != nil {
		return err
	}
	defer svc.Close()

	for _, address := range addresses {
		if _, err := svc.Transport().Endpoint(address); err != nil {
			return err
		}
	}
	if err := op(svc, cmd.Context()); err != nil {
		return err
	}
	for _, ep := range svc.Transport().Endpoints() {
		fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", ep.Address())
	}
	return nil
}
