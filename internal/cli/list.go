package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tidemark/normstore/denorm"
	"github.com/tidemark/normstore/query"
	"github.com/tidemark/normstore/store"
	"github.com/tidemark/normstore/syncer"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Filter  []string
	Expr    string
	Sort    []string
	Include []string
	Offset  int
	Limit   int
	Expand  bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "Fetch a collection of resources from the remote",
		Long: `Fetch a collection of resources from the remote and print them.

Filters are attribute=value pairs combined with AND; --expr accepts a
predicate over {id, type, attributes}.

Example:
  normstore list articles --filter status=published --sort -views --limit 10
  normstore list articles --expr 'attributes.views > 100'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Filter, "filter", nil, "attribute=value filter (repeatable)")
	cmd.Flags().StringVar(&opts.Expr, "expr", "", "predicate expression over {id, type, attributes}")
	cmd.Flags().StringSliceVar(&opts.Sort, "sort", nil, "sort keys, prefix with - for descending")
	cmd.Flags().StringSliceVar(&opts.Include, "include", nil, "relationship paths to fetch alongside")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "skip this many results")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "cap the result count (0 = no limit)")
	cmd.Flags().BoolVar(&opts.Expand, "expand", false, "print resources with relationships expanded")

	return cmd
}

func runList(opts *ListOptions, resourceType string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	coord, err := NewCoordinator(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "configure backend", err)
	}

	params, err := buildParams(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "build query", err)
	}

	records, err := coord.FindMany(cmd.Context(), query.Query{
		Type:   resourceType,
		Params: params,
	}, true)
	if err != nil {
		out.Error("E101", err.Error())
		return WrapExitError(ExitFailure, "fetch failed", err)
	}
	out.VerboseLog("matched %d %s", len(records), resourceType)

	if opts.Expand {
		nodes := make([]*denorm.Node, 0, len(records))
		for _, rec := range records {
			node, err := expandRecord(coord, rec)
			if err != nil {
				out.Error("E103", err.Error())
				return WrapExitError(ExitFailure, "expand failed", err)
			}
			nodes = append(nodes, node)
		}
		return out.Success(nodes)
	}

	resources := make([]any, 0, len(records))
	for _, rec := range records {
		resources = append(resources, rec.Resource)
	}
	return out.Success(resources)
}

// buildParams translates the list flags into query params.
func buildParams(opts *ListOptions) (*query.Params, error) {
	p := &query.Params{
		Expr:    opts.Expr,
		Sort:    opts.Sort,
		Include: opts.Include,
		Offset:  opts.Offset,
		Limit:   opts.Limit,
	}
	if len(opts.Filter) > 0 {
		p.Filter = make(map[string]any, len(opts.Filter))
		for _, pair := range opts.Filter {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("invalid filter %q: want attribute=value", pair)
			}
			p.Filter[key] = value
		}
	}
	if p.Filter == nil && p.Expr == "" && len(p.Sort) == 0 &&
		len(p.Include) == 0 && p.Offset == 0 && p.Limit == 0 {
		return nil, nil
	}
	return p, nil
}

// expandRecord denormalizes a record against the coordinator's cache.
func expandRecord(coord *syncer.Coordinator, rec *store.Record) (*denorm.Node, error) {
	node := denorm.Expand(coord.Store(), rec.Identifier)
	if node == nil {
		return nil, fmt.Errorf("%s not in cache", rec.Identifier)
	}
	return node, nil
}
