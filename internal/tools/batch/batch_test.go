package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIDs(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    []string
		wantErr string
	}{
		{name: "single string", input: "task-1", want: []string{"task-1"}},
		{name: "array", input: []any{"task-1", "task-2"}, want: []string{"task-1", "task-2"}},
		{name: "string slice", input: []string{"task-1", "task-2"}, want: []string{"task-1", "task-2"}},
		{name: "duplicates dropped", input: []any{"task-1", "task-2", "task-1"}, want: []string{"task-1", "task-2"}},
		{name: "nil", input: nil, wantErr: "taskIds is required"},
		{name: "empty string", input: "", wantErr: "taskIds[0] cannot be empty"},
		{name: "empty array", input: []any{}, wantErr: "taskIds cannot be empty"},
		{name: "non-string item", input: []any{"task-1", 7}, wantErr: "taskIds[1] must be a string"},
		{name: "wrong type", input: 42, wantErr: "must be a string or an array of strings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIDs(tt.input, "taskIds")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIDs_TooMany(t *testing.T) {
	ids := make([]any, MaxItems+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("task-%d", i)
	}
	_, err := ParseIDs(ids, "taskIds")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most")
}

func TestProcess(t *testing.T) {
	sum := Process(context.Background(), []string{"a", "b", "c"}, func(_ context.Context, id string) (any, error) {
		if id == "b" {
			return nil, errors.New("boom")
		}
		return "done " + id, nil
	})

	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Successful)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Items, 3)
	assert.Equal(t, Item{ID: "a", Status: StatusSuccess, Result: "done a"}, sum.Items[0])
	assert.Equal(t, Item{ID: "b", Status: StatusError, Error: "boom"}, sum.Items[1])
	assert.Equal(t, StatusSuccess, sum.Items[2].Status)
}

func TestProcess_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	sum := Process(ctx, []string{"a", "b", "c"}, func(_ context.Context, id string) (any, error) {
		calls++
		cancel()
		return id, nil
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, sum.Successful)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, context.Canceled.Error(), sum.Items[2].Error)
}
