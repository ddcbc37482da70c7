package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breezapp/breez/internal/server"
)

func TestUserFromArgs(t *testing.T) {
	authed := server.WithUser(context.Background(), "user-1")
	local := server.WithLocalCaller(context.Background())

	tests := []struct {
		name    string
		ctx     context.Context
		args    map[string]any
		want    string
		wantErr bool
	}{
		{name: "argument on stdio", ctx: local, args: map[string]any{"userId": "user-2"}, want: "user-2"},
		{name: "argument without authentication", ctx: context.Background(), args: map[string]any{"userId": "user-2"}, wantErr: true},
		{name: "authenticated user wins on stdio", ctx: server.WithUser(local, "user-1"), args: map[string]any{}, want: "user-1"},
		{name: "context only", ctx: authed, args: map[string]any{}, want: "user-1"},
		{name: "matching both", ctx: authed, args: map[string]any{"userId": "user-1"}, want: "user-1"},
		{name: "mismatch", ctx: authed, args: map[string]any{"userId": "user-2"}, wantErr: true},
		{name: "missing", ctx: local, args: map[string]any{}, wantErr: true},
		{name: "non-string", ctx: local, args: map[string]any{"userId": 123}, wantErr: true},
		{name: "nil args", ctx: local, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UserFromArgs(tt.ctx, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
