// Package store provides the SQLite-backed persistent storage namespace for pnmtrack.
//
// The namespace is a flat set of string-keyed slots. Each slot holds one opaque
// string value (in practice a JSON-serialized backup log or a session credential).
//
// # Write Discipline
//
// Set replaces a slot's full value in a single statement. A later reader sees
// either the prior value or the new one, never a partial write. There is no
// read-modify-write support here: callers read the full value, compute a new
// full value, and write it back. Two processes doing this against the same key
// are not coordinated; the last writer wins.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: A completed Set survives power loss
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// A nil *Store is valid and reports ErrUnavailable from every operation. This is
// how non-interactive contexts (no database configured) are represented.
package store
