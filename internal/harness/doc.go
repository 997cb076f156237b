// Package harness runs kiosk scenarios written in YAML against the real
// check-in and ingest flows.
//
// Each scenario runs with an in-memory backup store, a fake clock, and a
// scripted gateway, so the trace it produces is fully deterministic. The trace
// records every flow step transition and every gateway call in order; after
// the steps run, the backup logs are decoded and attached to the result.
//
// Scenario format:
//
//	name: checkin_happy_path
//	description: A scanned ID is logged, submitted, and auto-returns.
//	password: secret            # omit to run logged out
//	gateway:                    # scripted replies, in call order
//	  - ok: true
//	    name: Jane Doe
//	steps:
//	  - start: "Event 2: Speaker Series"
//	  - scan: "98765432101"
//	    expect: {step: success, name: Jane Doe}
//	  - advance: 2s
//	    expect: {step: scanning}
//	assertions:
//	  - type: log_rows
//	    key: checkInCsvBackup
//	    count: 1
//
// Golden files under testdata/golden hold the JSON trace of each scenario.
// Regenerate them with:
//
//	go test ./internal/harness -update
package harness
