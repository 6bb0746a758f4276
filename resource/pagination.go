package resource

import "context"

// ListResult is the list envelope. The page fields are only set in counted mode.
type ListResult struct {
	Objects     []Payload `json:"objects" msgpack:"objects"`
	TotalCount  int       `json:"total_count" msgpack:"total_count"`
	NumPages    *int      `json:"num_pages,omitempty" msgpack:"num_pages,omitempty"`
	CurrentPage *int      `json:"current_page,omitempty" msgpack:"current_page,omitempty"`
}

// Page is a selected slice of records plus its metadata.
type Page[T any] struct {
	Records     []T
	TotalCount  int
	NumPages    *int
	CurrentPage *int
}

// Paginate selects records from collection according to window.
//
// Counted mode (no bottom) turns the offset into a page number and returns
// the whole page holding that offset. A page past the end is clamped to the
// last page. Range mode returns exactly [top, bottom).
// In both modes TotalCount is the size of the full filtered collection.
func Paginate[T any](ctx context.Context, collection Collection[T], q Query, w Window, pageSize int) (Page[T], error) {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	total, err := collection.Count(ctx, q)
	if err != nil {
		return Page[T]{}, err
	}

	top := w.Offset(pageSize)
	if top < 0 {
		top = 0
	}

	if w.Ranged() {
		page := Page[T]{TotalCount: total}
		end := min(*w.Bottom, total)
		if end <= top {
			return page, nil
		}
		page.Records, err = collection.Slice(ctx, q, top, end-top)
		return page, err
	}

	numPages := (total + pageSize - 1) / pageSize
	current := top/pageSize + 1
	if current > numPages {
		current = max(numPages, 1)
	}

	page := Page[T]{
		TotalCount:  total,
		NumPages:    &numPages,
		CurrentPage: &current,
	}
	if total == 0 {
		return page, nil
	}

	page.Records, err = collection.Slice(ctx, q, (current-1)*pageSize, pageSize)
	return page, err
}
