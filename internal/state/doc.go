// Package state provides the durable SQLite store for sessions and
// long-term memory.
package state

import "github.com/user/axiomos/internal/types"

// Compile-time interface compliance checks.
var _ types.SessionStore = (*Store)(nil)
var _ types.MemoryStore = (*Store)(nil)
var _ types.Pinger = (*Store)(nil)
