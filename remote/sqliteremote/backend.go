// Package sqliteremote implements syncer.Remote over an in-process
// SQLite database. It is a stand-in for a real remote API in tests,
// demos, and offline use: the cache in front of it still behaves exactly
// as it would against a network backend, including failure shapes
// (not-found, conflict) expressed as REMOTE_FAILURE errors.
//
// Collection queries apply the same filter/sort/slice semantics as local
// store evaluation, so a query answered here and one answered from the
// cache agree. Include paths are walked server-side and returned as
// side-loaded resources.
package sqliteremote

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tidemark/normstore/query"
	"github.com/tidemark/normstore/resource"
	"github.com/tidemark/normstore/syncer"
)

//go:embed schema.sql
var schemaSQL string

// Backend is a SQLite-backed syncer.Remote.
type Backend struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given DSN and applies
// the schema. SQLite supports one writer at a time, so the connection
// pool is pinned to a single connection.
func Open(dsn string) (*Backend, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Backend{db: db}, nil
}

// OpenInMemory opens a fresh in-memory backend.
func OpenInMemory() (*Backend, error) {
	return Open(":memory:")
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Seed inserts or replaces resources directly, bypassing the conflict
// rules. Intended for test and demo setup.
func (b *Backend) Seed(ctx context.Context, resources ...*resource.Resource) error {
	for _, res := range resources {
		attrs, rels, err := marshalBodies(res)
		if err != nil {
			return err
		}
		_, err = b.db.ExecContext(ctx,
			`INSERT INTO resources (type, id, attributes, relationships)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (type, id) DO UPDATE
			 SET attributes = excluded.attributes, relationships = excluded.relationships`,
			res.Type, res.ID, attrs, rels)
		if err != nil {
			return fmt.Errorf("seed %s: %w", res.Identifier(), err)
		}
	}
	return nil
}

// Fetch implements syncer.Remote.
func (b *Backend) Fetch(ctx context.Context, q query.Query) (*resource.Document, error) {
	if q.ID != "" {
		res, err := b.load(ctx, q.Identifier())
		if err != nil {
			return nil, err
		}
		doc := resource.SingleDocument(res)
		if q.Params != nil {
			doc.Included, err = b.walkIncludes(ctx, doc.Data, q.Params.Include)
			if err != nil {
				return nil, err
			}
		}
		return doc, nil
	}

	rows, err := b.db.QueryContext(ctx,
		`SELECT type, id, attributes, relationships FROM resources WHERE type = ? ORDER BY seq`,
		q.Type)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Type, err)
	}
	defer rows.Close()

	var all []*resource.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", q.Type, err)
	}

	matched := all
	if q.Params != nil {
		matched, err = query.ApplyParams(q.Params, all)
		if err != nil {
			return nil, syncer.NewRemoteError(http.StatusBadRequest, "unprocessable query params", err)
		}
	}

	doc := resource.CollectionDocument(matched...)
	if q.Params != nil {
		doc.Included, err = b.walkIncludes(ctx, matched, q.Params.Include)
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// Create implements syncer.Remote. An existing identifier is a conflict.
func (b *Backend) Create(ctx context.Context, res *resource.Resource) (*resource.Resource, error) {
	attrs, rels, err := marshalBodies(res)
	if err != nil {
		return nil, err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO resources (type, id, attributes, relationships) VALUES (?, ?, ?, ?)`,
		res.Type, res.ID, attrs, rels)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, syncer.NewRemoteError(http.StatusConflict,
				fmt.Sprintf("resource %s already exists", res.Identifier()), nil)
		}
		return nil, fmt.Errorf("insert %s: %w", res.Identifier(), err)
	}
	return nil, nil
}

// Update implements syncer.Remote. Unknown identifiers are not found.
func (b *Backend) Update(ctx context.Context, res *resource.Resource) (*resource.Resource, error) {
	attrs, rels, err := marshalBodies(res)
	if err != nil {
		return nil, err
	}
	result, err := b.db.ExecContext(ctx,
		`UPDATE resources SET attributes = ?, relationships = ? WHERE type = ? AND id = ?`,
		attrs, rels, res.Type, res.ID)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", res.Identifier(), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, notFound(res.Identifier())
	}
	return nil, nil
}

// Delete implements syncer.Remote.
func (b *Backend) Delete(ctx context.Context, id resource.Identifier) error {
	result, err := b.db.ExecContext(ctx,
		`DELETE FROM resources WHERE type = ? AND id = ?`, id.Type, id.ID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

func (b *Backend) load(ctx context.Context, id resource.Identifier) (*resource.Resource, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT type, id, attributes, relationships FROM resources WHERE type = ? AND id = ?`,
		id.Type, id.ID)
	res, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	return res, err
}

// walkIncludes resolves dotted relationship paths from the primary
// resources, collecting each referenced resource once. References that
// do not resolve are skipped - inclusion is best effort, like
// denormalization on the client side.
func (b *Backend) walkIncludes(ctx context.Context, primary []*resource.Resource, paths []string) ([]*resource.Resource, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	seen := make(map[resource.Identifier]bool, len(primary))
	for _, res := range primary {
		seen[res.Identifier()] = true
	}

	var included []*resource.Resource
	for _, path := range paths {
		frontier := primary
		for _, segment := range strings.Split(path, ".") {
			var next []*resource.Resource
			for _, res := range frontier {
				rel, ok := res.Relationships[segment]
				if !ok {
					continue
				}
				for _, ref := range rel.References() {
					target, err := b.load(ctx, ref)
					if err != nil {
						if syncer.IsRemoteFailure(err) {
							continue
						}
						return nil, err
					}
					next = append(next, target)
					if !seen[ref] {
						seen[ref] = true
						included = append(included, target)
					}
				}
			}
			frontier = next
		}
	}
	return included, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(row scanner) (*resource.Resource, error) {
	var (
		res   resource.Resource
		attrs string
		rels  string
	)
	if err := row.Scan(&res.Type, &res.ID, &attrs, &rels); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attrs), &res.Attributes); err != nil {
		return nil, fmt.Errorf("decode attributes for %s: %w", res.Identifier(), err)
	}
	if err := json.Unmarshal([]byte(rels), &res.Relationships); err != nil {
		return nil, fmt.Errorf("decode relationships for %s: %w", res.Identifier(), err)
	}
	if len(res.Attributes) == 0 {
		res.Attributes = nil
	}
	if len(res.Relationships) == 0 {
		res.Relationships = nil
	}
	return &res, nil
}

func marshalBodies(res *resource.Resource) (string, string, error) {
	attrs := res.Attributes
	if attrs == nil {
		attrs = resource.Attributes{}
	}
	rels := res.Relationships
	if rels == nil {
		rels = map[string]resource.Relationship{}
	}
	attrData, err := json.Marshal(attrs)
	if err != nil {
		return "", "", fmt.Errorf("encode attributes for %s: %w", res.Identifier(), err)
	}
	relData, err := json.Marshal(rels)
	if err != nil {
		return "", "", fmt.Errorf("encode relationships for %s: %w", res.Identifier(), err)
	}
	return string(attrData), string(relData), nil
}

func notFound(id resource.Identifier) *syncer.Error {
	return syncer.NewRemoteError(http.StatusNotFound,
		fmt.Sprintf("resource %s not found", id), nil)
}
