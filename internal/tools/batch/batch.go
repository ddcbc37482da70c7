package batch

import (
	"context"
	"fmt"
)

// MaxItems bounds the number of IDs a single call may carry.
const MaxItems = 50

// Item statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Item is the outcome for one ID.
type Item struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Summary aggregates the items of one call.
type Summary struct {
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Items      []Item `json:"items"`
}

// ParseIDs reads a parameter that is either a single ID or an array of IDs.
// Duplicates are dropped, keeping the first occurrence.
func ParseIDs(param any, name string) ([]string, error) {
	var raw []any
	switch v := param.(type) {
	case nil:
		return nil, fmt.Errorf("%s is required", name)
	case string:
		raw = []any{v}
	case []string:
		for _, s := range v {
			raw = append(raw, s)
		}
	case []any:
		raw = v
	default:
		return nil, fmt.Errorf("%s must be a string or an array of strings", name)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", name)
	}

	ids := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, item := range raw {
		id, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", name, i)
		}
		if id == "" {
			return nil, fmt.Errorf("%s[%d] cannot be empty", name, i)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) > MaxItems {
		return nil, fmt.Errorf("%s accepts at most %d items, got %d", name, MaxItems, len(ids))
	}
	return ids, nil
}

// Process calls fn for each ID in order. Once ctx is done the remaining IDs
// fail with the context error.
func Process(ctx context.Context, ids []string, fn func(ctx context.Context, id string) (any, error)) Summary {
	sum := Summary{Total: len(ids), Items: make([]Item, 0, len(ids))}
	for _, id := range ids {
		item := Item{ID: id}

		var (
			res any
			err = ctx.Err()
		)
		if err == nil {
			res, err = fn(ctx, id)
		}
		if err != nil {
			item.Status = StatusError
			item.Error = err.Error()
			sum.Failed++
		} else {
			item.Status = StatusSuccess
			item.Result = res
			sum.Successful++
		}
		sum.Items = append(sum.Items, item)
	}
	return sum
}
