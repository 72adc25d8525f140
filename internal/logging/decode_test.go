package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEntry(t *testing.T) {
	line := []byte(`{"event":"updated","status":"PROCESSED","fields":{
		"Request.Method":"GET",
		"Request.URL":"http://example.com",
		"Response.Status":200,
		"Response.Time":"2024-03-01T10:00:00Z",
		"Response.Complete":"true",
		"Request.Headers":["Host: example.com","Accept: */*"],
		"Something.Else":"ignored"
	}}`)

	event, entry, err := DecodeEntry(line)
	require.NoError(t, err)

	assert.Equal(t, EventUpdated, event)
	assert.Equal(t, StatusProcessed, entry.Status)

	method, ok := entry.ValueByKey(FieldMethod)
	assert.True(t, ok)
	assert.Equal(t, "GET", method)

	status, _ := entry.ValueByKey(FieldStatus)
	assert.Equal(t, 200, status)

	when, _ := entry.ValueByKey(FieldResponseTime)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), when.(time.Time).UTC())

	complete, _ := entry.ValueByKey(FieldComplete)
	assert.Equal(t, true, complete)

	headers, _ := entry.ValueByKey(FieldRequestHeaders)
	assert.Equal(t, []string{"Host: example.com", "Accept: */*"}, headers)
}

func TestDecodeEntry_Defaults(t *testing.T) {
	event, entry, err := DecodeEntry([]byte(`{"fields":{"Request.Method":"POST"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventNew, event)
	assert.Equal(t, StatusPending, entry.Status)

	_, ok := entry.ValueByKey(FieldURL)
	assert.False(t, ok)
}

func TestDecodeEntry_Errors(t *testing.T) {
	_, _, err := DecodeEntry([]byte(`not json`))
	assert.Error(t, err)

	_, _, err = DecodeEntry([]byte(`{"event":"deleted"}`))
	assert.Error(t, err)

	_, _, err = DecodeEntry([]byte(`{"fields":{"Response.Status":"two hundred"}}`))
	assert.Error(t, err)
}

func TestFieldByLabel(t *testing.T) {
	f, ok := FieldByLabel("request.method")
	assert.True(t, ok)
	assert.Equal(t, FieldMethod, f)
	assert.Equal(t, "Request.Method", f.FullLabel())

	_, ok = FieldByLabel("Request.Nope")
	assert.False(t, ok)

	fields, err := ParseFields([]string{"Request.URL", "Response.Status"})
	require.NoError(t, err)
	assert.Equal(t, []Field{FieldURL, FieldStatus}, fields)

	_, err = ParseFields([]string{"Request.URL", "bogus"})
	assert.Error(t, err)
}

func TestNewEntry_CopiesValues(t *testing.T) {
	values := map[Field]any{FieldMethod: "GET"}
	entry := NewEntry(StatusProcessed, values)
	values[FieldMethod] = "PUT"

	v, _ := entry.ValueByKey(FieldMethod)
	assert.Equal(t, "GET", v)
}
