package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tidemark/normstore/query"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Include []string
	Expand  bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Fetch a single resource from the remote",
		Long: `Fetch a single resource from the remote and print it.

Example:
  normstore get articles 42 --include author,comments.author`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Include, "include", nil, "relationship paths to fetch alongside (dotted, comma-separated)")
	cmd.Flags().BoolVar(&opts.Expand, "expand", false, "print the resource with relationships expanded into nested documents")

	return cmd
}

func runGet(opts *GetOptions, resourceType, id string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	coord, err := NewCoordinator(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "configure backend", err)
	}

	q := query.Query{Type: resourceType, ID: id}
	if len(opts.Include) > 0 {
		q.Params = &query.Params{Include: opts.Include}
	}
	out.VerboseLog("fetching %s/%s (include: %s)", resourceType, id, strings.Join(opts.Include, ","))

	record, err := coord.FindOne(cmd.Context(), q, true)
	if err != nil {
		out.Error("E101", err.Error())
		return WrapExitError(ExitFailure, "fetch failed", err)
	}
	if record == nil {
		out.Error("E102", fmt.Sprintf("%s/%s not found", resourceType, id))
		return WrapExitError(ExitFailure, "not found", nil)
	}

	if opts.Expand {
		node, err := expandRecord(coord, record)
		if err != nil {
			out.Error("E103", err.Error())
			return WrapExitError(ExitFailure, "expand failed", err)
		}
		return out.Success(node)
	}
	return out.Success(record.Resource)
}
