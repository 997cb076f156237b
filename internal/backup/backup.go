package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CurrentVersion is the backup schema version written by this package.
//
// Version history:
// 0 - Legacy payloads with no version field (same shape as 1)
// 1 - {version, headers, rows}
const CurrentVersion = 1

// Backup is the persisted unit of one logical log.
type Backup struct {
	Version int      `json:"version"`
	Headers []string `json:"headers"`
	Rows    []string `json:"rows"`
}

// NewBackup returns an empty backup at the current version.
// The headers slice is copied.
func NewBackup(headers []string) Backup {
	return Backup{
		Version: CurrentVersion,
		Headers: append([]string(nil), headers...),
		Rows:    []string{},
	}
}

// RecoveryReason describes why a persisted value was discarded.
type RecoveryReason string

const (
	// ReasonNone means the persisted value was absent or decoded cleanly.
	ReasonNone RecoveryReason = ""

	// ReasonInvalidJSON means the value was not parseable JSON of the right types.
	ReasonInvalidJSON RecoveryReason = "invalid_json"

	// ReasonMalformedShape means headers or rows were missing or not string arrays.
	ReasonMalformedShape RecoveryReason = "malformed_shape"

	// ReasonUnsupportedVersion means the value was written by a newer schema.
	ReasonUnsupportedVersion RecoveryReason = "unsupported_version"
)

// wireBackup is the first decode pass: field presence is checked before any
// field meaning is assumed.
type wireBackup struct {
	Version *int            `json:"version"`
	Headers json.RawMessage `json:"headers"`
	Rows    json.RawMessage `json:"rows"`
}

// Decode parses a persisted value.
//
// It returns the decoded backup, or a fresh backup built from fallbackHeaders
// together with the reason the persisted value was rejected. Decode never fails:
// rejection is a value, not an error.
//
// Decoding is per version. Version 0 (field absent) is migrated to the current
// version; versions newer than CurrentVersion are never interpreted.
func Decode(raw string, fallbackHeaders []string) (Backup, RecoveryReason, error) {
	var wire wireBackup
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return NewBackup(fallbackHeaders), ReasonInvalidJSON, fmt.Errorf("decode backup: %w", err)
	}

	version := 0
	if wire.Version != nil {
		version = *wire.Version
	}
	if version > CurrentVersion {
		return NewBackup(fallbackHeaders), ReasonUnsupportedVersion,
			fmt.Errorf("decode backup: version %d is newer than supported version %d", version, CurrentVersion)
	}

	// Versions 0 and 1 share one shape.
	headers, err := decodeStrings(wire.Headers)
	if err != nil {
		return NewBackup(fallbackHeaders), ReasonMalformedShape, fmt.Errorf("decode backup headers: %w", err)
	}
	rows, err := decodeStrings(wire.Rows)
	if err != nil {
		return NewBackup(fallbackHeaders), ReasonMalformedShape, fmt.Errorf("decode backup rows: %w", err)
	}

	if len(headers) == 0 {
		headers = append([]string(nil), fallbackHeaders...)
	}

	return Backup{
		Version: CurrentVersion,
		Headers: headers,
		Rows:    rows,
	}, ReasonNone, nil
}

// decodeStrings requires raw to be a JSON array of strings.
func decodeStrings(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("expected array")
	}
	out := []string{}
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode serializes b for storage.
func Encode(b Backup) (string, error) {
	if b.Rows == nil {
		b.Rows = []string{}
	}
	if b.Headers == nil {
		b.Headers = []string{}
	}
	// No HTML escaping: the stored value stays readable when inspected by hand.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(b); err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
