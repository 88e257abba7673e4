package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tidemark/normstore/resource"
)

// EditOptions holds flags shared by the post and patch commands.
type EditOptions struct {
	*RootOptions
	File string
}

// NewPostCommand creates the post command.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Create a resource on the remote",
		Long: `Create a resource on the remote. The resource is read as JSON
({"type": ..., "id": ..., "attributes": ...}) from --file, or from stdin
when --file is "-" or omitted.

Example:
  normstore post -f article.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(opts, cmd, "post")
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "-", "resource JSON file (- for stdin)")
	return cmd
}

// NewPatchCommand creates the patch command.
func NewPatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Update a resource on the remote",
		Long: `Update a resource on the remote with the JSON body read from
--file or stdin. The full resource body replaces the remote state.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(opts, cmd, "patch")
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "-", "resource JSON file (- for stdin)")
	return cmd
}

func runEdit(opts *EditOptions, cmd *cobra.Command, verb string) error {
	out := newFormatter(opts.RootOptions, cmd)

	res, err := readResource(opts.File, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "read resource", err)
	}

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	coord, err := NewCoordinator(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "configure backend", err)
	}

	out.VerboseLog("%s %s", verb, res.Identifier())
	switch verb {
	case "post":
		err = coord.PostResource(cmd.Context(), res, true)
	case "patch":
		err = coord.PatchResource(cmd.Context(), res, true)
	}
	if err != nil {
		out.Error("E201", err.Error())
		return WrapExitError(ExitFailure, verb+" failed", err)
	}

	// Echo the committed state, canonicalized by the remote if it was.
	return out.Success(coord.GetResourceSnapshot(res.Identifier()))
}

// readResource decodes a resource body from a file or stdin.
func readResource(path string, stdin io.Reader) (*resource.Resource, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var res resource.Resource
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	if !res.Identifier().Valid() {
		return nil, fmt.Errorf("resource must carry non-empty type and id")
	}
	return &res, nil
}
