package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/tidemark/normstore/query"
	"github.com/tidemark/normstore/resource"
	"github.com/tidemark/normstore/syncer"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	File  string
	Retry int
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a changeset of edits to the remote",
		Long: `Stage every edit in a changeset locally, then push them all.
Pushes for distinct resources run concurrently; failures are independent
and reported per resource. With --retry, failed pushes are retried with
exponential backoff while successes stay committed.

Changeset format:

  changes:
    - op: post
      type: articles
      id: "10"
      attributes:
        title: Draft
    - op: delete
      type: articles
      id: "3"

Example:
  normstore apply -f changes.yaml --retry 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "changeset YAML file (required)")
	cmd.Flags().IntVar(&opts.Retry, "retry", 0, "retry failed pushes up to N times with backoff")
	cmd.MarkFlagRequired("file")

	return cmd
}

// applyResult is the per-change outcome reported to the caller.
type applyResult struct {
	Op       string `json:"op"`
	Resource string `json:"resource"`
	Status   string `json:"status"` // "committed" or "failed"
	Error    string `json:"error,omitempty"`
}

func runApply(opts *ApplyOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	cs, err := LoadChangeset(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "load changeset", err)
	}
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	coord, err := NewCoordinator(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "configure backend", err)
	}

	ops := make(map[resource.Identifier]string, len(cs.Changes))
	if err := stageChanges(cmd.Context(), coord, cs, ops, out); err != nil {
		return err
	}

	errs := pushWithRetry(cmd.Context(), coord, cs, opts.Retry, out)

	results := make([]applyResult, 0, len(ops))
	for id, op := range ops {
		r := applyResult{Op: op, Resource: id.String(), Status: "committed"}
		if pushErr, failed := errs[id]; failed {
			r.Status = "failed"
			r.Error = pushErr.Error()
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Resource < results[j].Resource })

	if len(errs) > 0 {
		if err := out.Success(results); err != nil {
			return err
		}
		return WrapExitError(ExitFailure,
			fmt.Sprintf("%d of %d changes failed", len(errs), len(ops)), nil)
	}
	return out.Success(results)
}

// stageChanges applies every change to the local cache without pushing.
// Patch and delete targets are fetched first so the edit lands on a
// persisted baseline rather than minting a NEW record.
func stageChanges(ctx context.Context, coord *syncer.Coordinator, cs *Changeset, ops map[resource.Identifier]string, out *OutputFormatter) error {
	for _, ch := range cs.Changes {
		id := ch.Identifier()
		if ch.Op != "post" {
			rec, err := coord.FindOne(ctx, query.Query{Type: id.Type, ID: id.ID}, true)
			if err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("fetch %s", id), err)
			}
			if rec == nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("%s %s: target not found", ch.Op, id), nil)
			}
		}

		var err error
		switch ch.Op {
		case "post", "patch":
			var res *resource.Resource
			res, err = ch.Resource()
			if err == nil && ch.Op == "post" {
				err = coord.PostResource(ctx, res, false)
			} else if err == nil {
				err = coord.PatchResource(ctx, res, false)
			}
		case "delete":
			err = coord.DeleteResource(ctx, id, false)
		}
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("stage %s %s", ch.Op, id), err)
		}
		ops[id] = ch.Op
		out.VerboseLog("staged %s %s", ch.Op, id)
	}
	return nil
}

// pushWithRetry pushes all pending edits, retrying the failures with
// exponential backoff. Committed pushes never rerun. A failed push rolls
// the record back to its baseline, so each failed change is re-staged
// before the next attempt.
func pushWithRetry(ctx context.Context, coord *syncer.Coordinator, cs *Changeset, retries int, out *OutputFormatter) map[resource.Identifier]error {
	byID := make(map[resource.Identifier]Change, len(cs.Changes))
	for _, ch := range cs.Changes {
		byID[ch.Identifier()] = ch
	}

	var errs map[resource.Identifier]error
	attempt := 0

	push := func() error {
		if attempt > 0 {
			for id := range errs {
				if err := restage(ctx, coord, byID[id]); err != nil {
					out.VerboseLog("re-stage %s failed: %v", id, err)
				}
			}
		}
		attempt++
		errs = coord.Apply(ctx)
		if len(errs) > 0 {
			out.VerboseLog("attempt %d: %d pushes failed", attempt, len(errs))
			return fmt.Errorf("%d pushes failed", len(errs))
		}
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)),
		ctx)
	// The final error state is reported through errs.
	_ = backoff.Retry(push, bo)
	return errs
}

// restage reapplies a change whose push was rolled back.
func restage(ctx context.Context, coord *syncer.Coordinator, ch Change) error {
	switch ch.Op {
	case "post", "patch":
		res, err := ch.Resource()
		if err != nil {
			return err
		}
		if ch.Op == "post" {
			return coord.PostResource(ctx, res, false)
		}
		return coord.PatchResource(ctx, res, false)
	case "delete":
		return coord.DeleteResource(ctx, ch.Identifier(), false)
	}
	return nil
}
