package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHeaders = []string{"timestamp", "eventType", "idNumber"}

func TestDecode_WellFormed(t *testing.T) {
	raw := `{"version":1,"headers":["a","b"],"rows":["\"1\",\"2\"","\"3\",\"4\""]}`

	b, reason, err := Decode(raw, testHeaders)
	require.NoError(t, err)
	assert.Equal(t, ReasonNone, reason)
	assert.Equal(t, 1, b.Version)
	assert.Equal(t, []string{"a", "b"}, b.Headers, "persisted headers win")
	assert.Equal(t, []string{`"1","2"`, `"3","4"`}, b.Rows)
}

func TestDecode_LegacyWithoutVersion(t *testing.T) {
	b, reason, err := Decode(`{"headers":["a"],"rows":["\"x\""]}`, testHeaders)
	require.NoError(t, err)
	assert.Equal(t, ReasonNone, reason)
	assert.Equal(t, CurrentVersion, b.Version)
	assert.Equal(t, []string{`"x"`}, b.Rows)
}

func TestDecode_EmptyHeadersFallBack(t *testing.T) {
	b, reason, err := Decode(`{"version":1,"headers":[],"rows":[]}`, testHeaders)
	require.NoError(t, err)
	assert.Equal(t, ReasonNone, reason)
	assert.Equal(t, testHeaders, b.Headers)
	assert.NotNil(t, b.Rows)
}

func TestDecode_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason RecoveryReason
	}{
		{"not json", "{not json", ReasonInvalidJSON},
		{"empty string", "", ReasonInvalidJSON},
		{"array", `["a"]`, ReasonInvalidJSON},
		{"string version", `{"version":"1","headers":[],"rows":[]}`, ReasonInvalidJSON},
		{"null", "null", ReasonMalformedShape},
		{"missing rows", `{"version":1,"headers":["a"]}`, ReasonMalformedShape},
		{"missing headers", `{"version":1,"rows":[]}`, ReasonMalformedShape},
		{"rows object", `{"version":1,"headers":["a"],"rows":{}}`, ReasonMalformedShape},
		{"rows null", `{"version":1,"headers":["a"],"rows":null}`, ReasonMalformedShape},
		{"rows numbers", `{"version":1,"headers":["a"],"rows":[1,2]}`, ReasonMalformedShape},
		{"future version", `{"version":2,"headers":["a"],"rows":[]}`, ReasonUnsupportedVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, reason, err := Decode(tt.raw, testHeaders)
			assert.Error(t, err)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, NewBackup(testHeaders), b, "rejection yields a fresh backup")
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	original := Backup{
		Version: CurrentVersion,
		Headers: []string{"timestamp", "pnmName", "note"},
		Rows: []string{
			`"2026-01-29T18:00:00.000Z","Zoë & Co","<b>"`,
			"\"2026-01-29T18:00:01.000Z\",\"multi\nline\",\"\"",
		},
	}

	raw, err := Encode(original)
	require.NoError(t, err)
	assert.Contains(t, raw, "Zoë & Co", "stored value is not HTML-escaped")

	decoded, reason, err := Decode(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonNone, reason)
	assert.Equal(t, original, decoded)
}

func TestEncode_NilSlices(t *testing.T) {
	raw, err := Encode(Backup{Version: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"headers":[],"rows":[]}`, raw)
}

func TestNewBackup_CopiesHeaders(t *testing.T) {
	headers := []string{"a", "b"}
	b := NewBackup(headers)
	headers[0] = "changed"
	assert.Equal(t, "a", b.Headers[0])
}
