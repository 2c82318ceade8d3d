package tickets

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-chamados-sync/internal/utils"
)

// DefaultPageSize is used when the caller does not choose one.
const DefaultPageSize = 10

const defaultFetchTimeout = 30 * time.Second

// Filter narrows a ticket query. Matching is done by the server.
type Filter struct {
	TitleContains       string
	DescriptionContains string
}

// Query identifies one server page.
type Query struct {
	Page     int
	PageSize int
	Filter   Filter
}

// Values encodes q as request parameters. Empty filters are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("pageSize", strconv.Itoa(q.PageSize))
	if t := strings.TrimSpace(q.Filter.TitleContains); t != "" {
		v.Set("title", t)
	}
	if d := strings.TrimSpace(q.Filter.DescriptionContains); d != "" {
		v.Set("description", d)
	}
	return v
}

// PageWindow is the locally held page of tickets. Page and PageSize are the
// values the server acknowledged, not the ones last requested.
type PageWindow struct {
	Page      int
	PageSize  int
	Total     int
	Filter    Filter
	Items     []Ticket
	FetchedAt time.Time
}

// TotalPages returns the number of pages at the window's page size.
func (w PageWindow) TotalPages() int {
	if w.PageSize < 1 || w.Total < 1 {
		return 0
	}
	return (w.Total + w.PageSize - 1) / w.PageSize
}

// Query returns the query that produced w.
func (w PageWindow) Query() Query {
	return Query{Page: w.Page, PageSize: w.PageSize, Filter: w.Filter}
}

func (w PageWindow) clone() PageWindow {
	w.Items = utils.Clone(w.Items)
	return w
}

func emptyWindow(q Query) PageWindow {
	return PageWindow{Page: q.Page, PageSize: q.PageSize, Filter: q.Filter, Items: []Ticket{}}
}
