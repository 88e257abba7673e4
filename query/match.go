package query

import (
	"fmt"
	"sort"
	"strings"

	exprlang "github.com/expr-lang/expr"
	"golang.org/x/text/unicode/norm"

	"github.com/tidemark/normstore/resource"
	"github.com/tidemark/normstore/store"
)

// Matches reports whether a record belongs to a query's match set.
//
// A single-resource query matches only the record with the identical
// identifier (regardless of pending deletion - snapshot views still see
// it); filter criteria still apply to that candidate. A collection query
// matches records of the query's type whose state is not DELETED and
// which pass the filter criteria.
func Matches(q Query, rec *store.Record) (bool, error) {
	if q.EffectiveKind() == KindOne && q.ID != "" {
		if rec.Identifier != q.Identifier() {
			return false, nil
		}
		return matchesParams(q.params(), rec.Resource)
	}
	if rec.Identifier.Type != q.Type || rec.State == store.StateDeleted {
		return false, nil
	}
	return matchesParams(q.params(), rec.Resource)
}

// Evaluate computes the ordered identifier set a query resolves to
// against the store. Pure: mutates neither the store nor any registry.
//
// A KindOne query matching nothing yields an empty set; matching more
// than one record yields a NonUniqueError.
func Evaluate(q Query, s *store.Store) ([]resource.Identifier, error) {
	if q.ID != "" {
		rec, ok := s.Snapshot(q.Identifier())
		if !ok {
			return nil, nil
		}
		// The identifier addresses the candidate; filter criteria still
		// have to hold for it to count as a match.
		matched, err := matchesParams(q.params(), rec.Resource)
		if err != nil || !matched {
			return nil, err
		}
		return []resource.Identifier{q.Identifier()}, nil
	}

	records := s.ByType(q.Type)
	candidates := make([]*resource.Resource, 0, len(records))
	for _, rec := range records {
		if rec.State == store.StateDeleted {
			continue
		}
		candidates = append(candidates, rec.Resource)
	}

	matched, err := ApplyParams(q.params(), candidates)
	if err != nil {
		return nil, err
	}

	ids := make([]resource.Identifier, len(matched))
	for i, res := range matched {
		ids[i] = res.Identifier()
	}

	if q.EffectiveKind() == KindOne && len(ids) > 1 {
		return nil, &NonUniqueError{QueryID: q.QueryID, Matches: ids}
	}
	return ids, nil
}

// ApplyParams filters, sorts, and slices resources per the params.
// The same semantics serve local evaluation and the in-process remote
// backends, so a query answered locally and one answered by a stand-in
// remote agree.
func ApplyParams(p *Params, list []*resource.Resource) ([]*resource.Resource, error) {
	out := make([]*resource.Resource, 0, len(list))
	for _, res := range list {
		ok, err := matchesParams(p, res)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, res)
		}
	}

	if len(p.Sort) > 0 {
		keys, err := parseSortKeys(p.Sort)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(out, func(i, j int) bool {
			return lessResources(out[i], out[j], keys)
		})
	}

	// Offset/limit apply to the final ordered set.
	if p.Offset > 0 {
		if p.Offset >= len(out) {
			return nil, nil
		}
		out = out[p.Offset:]
	}
	if p.Limit > 0 && p.Limit < len(out) {
		out = out[:p.Limit]
	}
	return out, nil
}

func matchesParams(p *Params, res *resource.Resource) (bool, error) {
	for field, expected := range p.Filter {
		if !looseEqual(fieldValue(res, field), expected) {
			return false, nil
		}
	}
	if p.Expr != "" {
		env := map[string]any{
			"id":         res.ID,
			"type":       res.Type,
			"attributes": resource.InterfaceMap(res.Attributes),
		}
		result, err := exprlang.Eval(p.Expr, env)
		if err != nil {
			return false, fmt.Errorf("filter expression %q: %w", p.Expr, err)
		}
		ok, isBool := result.(bool)
		if !isBool {
			return false, fmt.Errorf("filter expression %q: result is %T, want bool", p.Expr, result)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// fieldValue resolves a filter or sort field against a resource.
// "id" and "type" address the identity; everything else is an attribute.
func fieldValue(res *resource.Resource, field string) any {
	switch field {
	case "id":
		return res.ID
	case "type":
		return res.Type
	default:
		if v, ok := res.Attributes[field]; ok {
			return resource.Interface(v)
		}
		return nil
	}
}

// looseEqual compares a resolved field value with a caller-supplied
// expectation, tolerating the int/int64/float64 spread callers produce.
func looseEqual(got, want any) bool {
	if gn, ok := asFloat(got); ok {
		if wn, ok := asFloat(want); ok {
			return gn == wn
		}
		return false
	}
	if gs, ok := got.(string); ok {
		if ws, ok := want.(string); ok {
			return norm.NFC.String(gs) == norm.NFC.String(ws)
		}
		return false
	}
	return got == want
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

type sortKey struct {
	field string
	desc  bool
}

func parseSortKeys(fields []string) ([]sortKey, error) {
	keys := make([]sortKey, 0, len(fields))
	for _, f := range fields {
		desc := strings.HasPrefix(f, "-")
		field := strings.TrimPrefix(f, "-")
		if field == "" {
			return nil, fmt.Errorf("empty sort field")
		}
		keys = append(keys, sortKey{field: field, desc: desc})
	}
	return keys, nil
}

func lessResources(a, b *resource.Resource, keys []sortKey) bool {
	for _, key := range keys {
		cmp := compareValues(fieldValue(a, key.field), fieldValue(b, key.field))
		if cmp == 0 {
			continue
		}
		if key.desc {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

// compareValues orders plain values: nulls first, then booleans, numbers,
// and strings. Mixed kinds order by that kind ranking. Strings are
// NFC-normalized so composed and decomposed forms compare equal.
func compareValues(a, b any) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0: // both nil
		return 0
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		af, _ := asFloat(a)
		bf, _ := asFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	default:
		return strings.Compare(norm.NFC.String(stringify(a)), norm.NFC.String(stringify(b)))
	}
}

func kindRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int64, float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
