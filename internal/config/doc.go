// Package config loads breez settings from the environment.
//
// Values come from process environment variables, optionally seeded from a
// .env file (see LoadDotEnv). Command line flags override them in cmd.
//
//	GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET   OAuth client (required)
//	BREEZ_BASE_URL                           public URL; redirect is BASE_URL/callback
//	BREEZ_HTTP_ADDR                          listen address (default :8080)
//	BREEZ_STORAGE                            memory, sqlite or postgres (default sqlite)
//	BREEZ_DATABASE_URL                       DSN or SQLite path (default breez.db)
//	BREEZ_ENCRYPTION_KEY                     base64 AES-256 key for tokens at rest
//	BREEZ_STATE_SECRET                       OAuth state signing key, >= 32 bytes
//	BREEZ_TIME_ZONE                          zone task times are read in (default UTC)
//	BREEZ_CALENDAR_NAME                      dedicated calendar summary (default breez)
//	BREEZ_TOKEN_SKEW                         refresh this long before expiry (default 5m)
//	BREEZ_SYNC_ENABLED                       calendar sync on/off (default true)
//	BREEZ_USER_HEADER                        trusted proxy user header
//	BREEZ_STATUS_URL, BREEZ_LOGIN_URL        browser redirect targets
//	BREEZ_TRANSPORT                          MCP transport: streamable-http or stdio
//	BREEZ_ALLOW_WRITES                       register MCP write tools
//	BREEZ_RATE_LIMIT, BREEZ_RATE_BURST       per caller requests/s and burst (default 10, 20)
//	METRICS_ENABLED, METRICS_ADDR            dedicated metrics listener
package config
