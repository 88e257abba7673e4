package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidemark/normstore/query"
	"github.com/tidemark/normstore/resource"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "delete <type> <id>",
		Short:         "Delete a resource on the remote",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runDelete(opts *RootOptions, resourceType, id string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	coord, err := NewCoordinator(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "configure backend", err)
	}

	ident := resource.Identifier{Type: resourceType, ID: id}

	// Prime the cache so the deletion has a persisted baseline to verify
	// against; a record never fetched would have nothing to tombstone.
	rec, err := coord.FindOne(cmd.Context(), query.Query{Type: resourceType, ID: id}, true)
	if err != nil {
		out.Error("E102", err.Error())
		return WrapExitError(ExitFailure, "fetch failed", err)
	}
	if rec == nil {
		out.Error("E102", fmt.Sprintf("%s not found", ident))
		return WrapExitError(ExitFailure, "not found", nil)
	}

	if err := coord.DeleteResource(cmd.Context(), ident, true); err != nil {
		out.Error("E202", err.Error())
		return WrapExitError(ExitFailure, "delete failed", err)
	}
	return out.Success(fmt.Sprintf("deleted %s", ident))
}
