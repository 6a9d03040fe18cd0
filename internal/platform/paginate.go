package platform

import (
	"context"
	"net/url"
	"strconv"
)

// DefaultPageSize is the page size used when a caller passes zero.
const DefaultPageSize = 50

// PageFunc fetches one page starting at skip.
type PageFunc[T any] func(ctx context.Context, limit, skip int) ([]T, error)

// Paginate requests pages of limit items with an increasing skip until a
// page comes back empty. Items are accumulated as returned; no page is
// fetched twice and nothing is de-duplicated.
func Paginate[T any](ctx context.Context, limit int, fetch PageFunc[T]) ([]T, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	var all []T
	for skip := 0; ; skip += limit {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		page, err := fetch(ctx, limit, skip)
		if err != nil {
			return all, err
		}
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
	}
}

// pageParams copies base and adds the limit and skip query parameters.
func pageParams(base url.Values, limit, skip int) url.Values {
	params := url.Values{}
	for k, v := range base {
		params[k] = append([]string(nil), v...)
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("skip", strconv.Itoa(skip))
	return params
}
