// Package store is the token store: a TTL key/value capability used for
// refresh credentials, one-time codes and password reset tokens.
//
// # Key namespaces
//
//   - refresh:<credential>   → user id
//   - otc:<code>             → JSON pending-action payload
//   - reset-token:<code>     → user id
//
// [RedisStore] runs on a pooled redis.UniversalClient; there is no process-wide
// lock around store calls. Optional capabilities ([Rotator], [Creator],
// [Sweeper]) are discovered by type assertion so that alternative backends
// only need Get, Set and Delete.
//
// # What this package must NOT do
//
//   - Interpret values. Payload encoding belongs to the callers.
//   - Cache reads. The backend is the single source of truth for liveness.
package store
