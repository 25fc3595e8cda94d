// Package cache provides the ephemeral key-value stores backing session
// memory: Redis, and an in-process TTL map used when Redis is not configured.
package cache

import "github.com/user/axiomos/internal/types"

var _ types.KVStore = (*RedisStore)(nil)
var _ types.KVStore = (*MemoryStore)(nil)
var _ types.Pinger = (*RedisStore)(nil)
var _ types.Pinger = (*MemoryStore)(nil)
