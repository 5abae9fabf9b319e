package connection

import (
	"strings"

	"relgraph/internal/cursor"
)

// Row is one node's column values keyed by column name.
type Row = map[string]interface{}

// Keyer derives cursors for one node type ordered by key columns.
type Keyer struct {
	TypeName string
	Columns  []string
	// Numeric flags the columns whose values order as numbers.
	Numeric []bool
}

// OrderKey names the ordering a cursor was issued for.
func (k Keyer) OrderKey() string {
	return strings.Join(k.Columns, ",")
}

func (k Keyer) values(row Row) []string {
	out := make([]string, len(k.Columns))
	for i, col := range k.Columns {
		out[i] = cursor.Coerce(row[col])
	}
	return out
}

// locate returns the index of the row at pos, searching from start, or -1.
func (k Keyer) locate(rows []Row, start int, pos cursor.Position) int {
	for i := start; i < len(rows); i++ {
		if pos.Matches(k.values(rows[i])) {
			return i
		}
	}
	return -1
}

// Cursor encodes row's position.
func (k Keyer) Cursor(row Row) string {
	vals := make([]interface{}, len(k.Columns))
	for i, col := range k.Columns {
		vals[i] = row[col]
	}
	return cursor.Encode(k.TypeName, k.OrderKey(), vals...)
}

// Edge is one paginated node.
type Edge struct {
	Cursor string
	Node   Row
}

// PageInfo describes the window relative to the full row set.
type PageInfo struct {
	HasNextPage     bool
	HasPreviousPage bool
	StartCursor     *string
	EndCursor       *string
}

// Page is a built connection. It is not mutated after Paginate returns.
type Page struct {
	Edges      []Edge
	PageInfo   PageInfo
	TotalCount int
}

// Paginate windows rows, which must already be in key order.
//
// after/before select the rows strictly after/before the cursor's row, found
// by exact key match. A cursor whose row is gone resumes by comparing key
// values.
// first/last then trim from the front/back; a trimmed element beyond the
// window sets hasNextPage/hasPreviousPage. TotalCount is len(rows).
func Paginate(rows []Row, args Args, keyer Keyer) (Page, error) {
	if args.Forward() && args.Backward() {
		return Page{}, &AmbiguousPaginationArgsError{Forward: []string{"first/after"}, Backward: []string{"last/before"}}
	}

	start, end := 0, len(rows)
	var hasNext, hasPrev bool

	if args.After != nil {
		pos, err := cursor.DecodeFor(*args.After, keyer.TypeName, keyer.OrderKey(), len(keyer.Columns))
		if err != nil {
			return Page{}, err
		}
		if i := keyer.locate(rows, start, pos); i >= 0 {
			start = i + 1
		} else {
			for start < end && pos.Compare(keyer.values(rows[start]), keyer.Numeric) <= 0 {
				start++
			}
		}
		hasPrev = start > 0
	}
	if args.Before != nil {
		pos, err := cursor.DecodeFor(*args.Before, keyer.TypeName, keyer.OrderKey(), len(keyer.Columns))
		if err != nil {
			return Page{}, err
		}
		if i := keyer.locate(rows, start, pos); i >= 0 {
			end = i
		} else {
			end = start
			for end < len(rows) && pos.Compare(keyer.values(rows[end]), keyer.Numeric) < 0 {
				end++
			}
		}
		hasNext = end < len(rows)
	}

	if args.First != nil && end-start > *args.First {
		end = start + *args.First
		hasNext = true
	}
	if args.Last != nil && end-start > *args.Last {
		start = end - *args.Last
		hasPrev = true
	}

	page := Page{
		Edges:      make([]Edge, 0, end-start),
		TotalCount: len(rows),
		PageInfo:   PageInfo{HasNextPage: hasNext, HasPreviousPage: hasPrev},
	}
	for _, row := range rows[start:end] {
		page.Edges = append(page.Edges, Edge{Cursor: keyer.Cursor(row), Node: row})
	}
	if n := len(page.Edges); n > 0 {
		first, last := page.Edges[0].Cursor, page.Edges[n-1].Cursor
		page.PageInfo.StartCursor = &first
		page.PageInfo.EndCursor = &last
	}
	return page, nil
}

// Map renders the page in the shape the connection object types resolve from.
func (p Page) Map() map[string]interface{} {
	edges := make([]map[string]interface{}, len(p.Edges))
	nodes := make([]Row, len(p.Edges))
	for i, e := range p.Edges {
		edges[i] = map[string]interface{}{"cursor": e.Cursor, "node": e.Node}
		nodes[i] = e.Node
	}
	var startCursor, endCursor interface{}
	if p.PageInfo.StartCursor != nil {
		startCursor = *p.PageInfo.StartCursor
		endCursor = *p.PageInfo.EndCursor
	}
	return map[string]interface{}{
		"edges": edges,
		"nodes": nodes,
		"pageInfo": map[string]interface{}{
			"hasNextPage":     p.PageInfo.HasNextPage,
			"hasPreviousPage": p.PageInfo.HasPreviousPage,
			"startCursor":     startCursor,
			"endCursor":       endCursor,
		},
		"totalCount": p.TotalCount,
	}
}
