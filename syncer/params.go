package syncer

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/tidemark/normstore/query"
)

// Encoder translates one query-param concern into remote-request
// parameters.
type Encoder func(p *query.Params, vals url.Values)

// Encoding is the pluggable translation from query params to
// remote-request parameters, one function per concern plus the final
// assembly. Any concern left nil uses the documented default:
//
//	Filter:   filter[<field>]=<value> per entry
//	Sort:     sort=<field>,-<field>,...
//	Fields:   fields[<type>]=<a>,<b> per type
//	Include:  include=<a.b>,<c>
//	Page:     page[offset]=<n>, page[limit]=<n>
//	Assemble: url.Values.Encode (sorted keys)
//
// The default Filter encoder transmits equality entries only; an Expr
// predicate is a local/stand-in concern and callers who want it on the
// wire override Filter.
type Encoding struct {
	Filter   Encoder
	Sort     Encoder
	Fields   Encoder
	Include  Encoder
	Page     Encoder
	Assemble func(vals url.Values) string
}

// DefaultEncoding returns the documented default for every concern.
func DefaultEncoding() Encoding {
	return Encoding{
		Filter:   encodeFilter,
		Sort:     encodeSort,
		Fields:   encodeFields,
		Include:  encodeInclude,
		Page:     encodePage,
		Assemble: url.Values.Encode,
	}
}

// Encode renders the params as a query string, with nil concerns
// falling back to the defaults.
func (e Encoding) Encode(p *query.Params) string {
	if p == nil {
		return ""
	}
	defaults := DefaultEncoding()
	vals := url.Values{}
	pick(e.Filter, defaults.Filter)(p, vals)
	pick(e.Sort, defaults.Sort)(p, vals)
	pick(e.Fields, defaults.Fields)(p, vals)
	pick(e.Include, defaults.Include)(p, vals)
	pick(e.Page, defaults.Page)(p, vals)
	assemble := e.Assemble
	if assemble == nil {
		assemble = defaults.Assemble
	}
	return assemble(vals)
}

func pick(enc, fallback Encoder) Encoder {
	if enc != nil {
		return enc
	}
	return fallback
}

func encodeFilter(p *query.Params, vals url.Values) {
	fields := make([]string, 0, len(p.Filter))
	for field := range p.Filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		vals.Set(fmt.Sprintf("filter[%s]", field), fmt.Sprintf("%v", p.Filter[field]))
	}
}

func encodeSort(p *query.Params, vals url.Values) {
	if len(p.Sort) > 0 {
		vals.Set("sort", strings.Join(p.Sort, ","))
	}
}

func encodeFields(p *query.Params, vals url.Values) {
	types := make([]string, 0, len(p.Fields))
	for t := range p.Fields {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		vals.Set(fmt.Sprintf("fields[%s]", t), strings.Join(p.Fields[t], ","))
	}
}

func encodeInclude(p *query.Params, vals url.Values) {
	if len(p.Include) > 0 {
		vals.Set("include", strings.Join(p.Include, ","))
	}
}

func encodePage(p *query.Params, vals url.Values) {
	if p.Offset > 0 {
		vals.Set("page[offset]", strconv.Itoa(p.Offset))
	}
	if p.Limit > 0 {
		vals.Set("page[limit]", strconv.Itoa(p.Limit))
	}
}
