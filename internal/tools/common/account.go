package common

import (
	"context"
	"fmt"

	"github.com/breezapp/breez/internal/server"
)

// UserFromArgs returns the user a tool call acts for.
//
// Priority order:
//  1. The user authenticated by the HTTP transport (set from the proxy header)
//  2. The explicit "userId" argument, honoured only on the stdio transport
//
// When both are present they must agree. An HTTP call without an
// authenticated user is rejected even when it names a userId.
func UserFromArgs(ctx context.Context, args map[string]any) (string, error) {
	argUser, _ := args["userId"].(string)

	if ctxUser, ok := server.UserFromContext(ctx); ok {
		if argUser != "" && argUser != ctxUser {
			return "", fmt.Errorf("userId %q does not match the authenticated user", argUser)
		}
		return ctxUser, nil
	}
	if !server.IsLocalCaller(ctx) {
		return "", fmt.Errorf("authentication required")
	}
	if argUser == "" {
		return "", fmt.Errorf("userId is required")
	}
	return argUser, nil
}
