// Package flow implements the check-in kiosk and ingest submission state machines.
//
// Both flows follow one ordering rule: once input is accepted, a row is
// appended to the durable backup log before any network attempt. The gateway's
// result only changes what the operator sees. It never decides whether the
// log row exists.
//
// Each flow instance serializes its own submissions. While one is in flight
// the flow is in its submitting step and further submissions and resets are
// rejected with a BUSY error, the equivalent of a disabled input.
//
// Flow state is in memory only. Abandoning a flow does not retract a log row
// or an in-flight network call.
package flow
