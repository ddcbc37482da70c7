// Package store persists calendar integrations and tasks.
//
// Two implementations share the Store interface: MemoryStore, a mutex
// guarded in-process store, and SQLStore, a GORM store backed by SQLite or
// PostgreSQL.
//
// Token writes are always targeted field updates. UpdateTokenIfExpiresBefore
// is the conditional variant used after a refresh, so a slower refresh that
// finishes last cannot replace a token with a later expiry.
package store
