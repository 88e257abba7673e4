package syncer

import (
	"context"

	"github.com/tidemark/normstore/query"
	"github.com/tidemark/normstore/resource"
)

// Remote is the boundary to the remote source of truth. Implementations
// live in remote/httpremote (wire transport) and remote/sqliteremote
// (in-process stand-in); the coordinator is agnostic.
//
// Errors returned by a Remote are wrapped as REMOTE_FAILURE; returning a
// *Error built with NewRemoteError preserves status and detail.
type Remote interface {
	// Fetch resolves a query to a document. Single-resource queries that
	// match nothing must return a REMOTE_FAILURE with a not-found status,
	// or an empty single document - both map to an empty result.
	Fetch(ctx context.Context, q query.Query) (*resource.Document, error)

	// Create persists a new resource. The returned resource is the
	// canonical remote state (the server may normalize or amend fields);
	// nil means the submitted body was stored as-is.
	Create(ctx context.Context, res *resource.Resource) (*resource.Resource, error)

	// Update persists a modified resource, returning the canonical
	// remote state like Create.
	Update(ctx context.Context, res *resource.Resource) (*resource.Resource, error)

	// Delete removes the identified resource.
	Delete(ctx context.Context, id resource.Identifier) error
}
