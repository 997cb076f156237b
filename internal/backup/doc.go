// Package backup implements the local durable backup log.
//
// A backup is a versioned, append-only list of pre-rendered CSV rows stored as
// JSON in one storage slot:
//
//	{"version": 1, "headers": ["timestamp", ...], "rows": ["\"...\",\"...\"", ...]}
//
// Flows append to the log before any network attempt, so a record of the event
// exists locally whatever happens to the submission afterwards.
//
// # Append Contract
//
//   - Append never returns an error. Storage failures are absorbed and reported
//     through AppendResult so the caller's submission path is never blocked.
//   - Storage unavailable means a silent skip (AppendResult.Skipped).
//   - A persisted value that fails to decode is discarded and a fresh backup is
//     started with the caller's headers (AppendResult.Recovered).
//   - Persisted headers win over the caller's when non-empty, so historical
//     column order survives schema constant changes.
//   - The new row always goes to the end; the full backup is written back as a
//     single replace.
//
// # Concurrency
//
// A Log serializes its own read-modify-write cycles. Separate Log instances (or
// separate processes) writing the same key are not coordinated: the last full
// replace wins and a concurrently appended row can be lost.
package backup
