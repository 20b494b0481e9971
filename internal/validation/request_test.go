package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/extbridge/pkg/schema"
)

func newValidator(t *testing.T) *RequestValidator {
	t.Helper()
	v, err := NewRequestValidator()
	require.NoError(t, err)
	return v
}

func TestDecode_ValidRequests(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		raw  string
		want schema.Request
	}{
		{`{"action":"status"}`, schema.Request{Action: schema.ActionStatus}},
		{`{"action":"scan","extra":true}`, schema.Request{Action: schema.ActionScan}},
		{`{"action":"load","path":"/ext/a"}`, schema.Request{Action: schema.ActionLoad, Path: "/ext/a"}},
		{`{"action":"unload_all"}`, schema.Request{Action: schema.ActionUnloadAll}},
		{`{"action":"something_new"}`, schema.Request{Action: "something_new"}},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := v.Decode(json.RawMessage(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecode_InvalidRequests(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"not an object", `["status"]`},
		{"missing action", `{"path":"/ext"}`},
		{"action not a string", `{"action":3}`},
		{"empty action", `{"action":""}`},
		{"load without path", `{"action":"load"}`},
		{"unload with empty path", `{"action":"unload","path":""}`},
		{"set_folder without path", `{"action":"set_folder"}`},
		{"path not a string", `{"action":"scan","path":5}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Decode(json.RawMessage(tc.raw))
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
		})
	}
}

func TestDecode_MalformedJSON(t *testing.T) {
	_, err := newValidator(t).Decode(json.RawMessage(`{"action":`))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeMalformedBody, schema.CodeOf(err))
}
