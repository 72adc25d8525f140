package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/LogShipper/internal/logging"
)

func sampleEntry() *logging.Entry {
	return logging.NewEntry(logging.StatusProcessed, map[logging.Field]any{
		logging.FieldMethod:          "GET",
		logging.FieldURL:             "http://example.com/api/users",
		logging.FieldStatus:          404,
		logging.FieldComplete:        true,
		logging.FieldResponseHeaders: []string{"Server: nginx", "X-Trace: abc"},
	})
}

func TestCompile_Blank(t *testing.T) {
	p, err := Compile("   ")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestCompile_Matches(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"Request.Method == GET", true},
		{"Request.Method != GET", false},
		{"Response.Status >= 400", true},
		{"Response.Status < 400", false},
		{"Response.Status == 404", true},
		{`Request.URL contains "/api/"`, true},
		{"Request.URL contains /admin", false},
		{"Response.Headers contains nginx", true},
		{"Response.Complete == true", true},
		{"Request.Method == GET && Response.Status > 500", false},
		{"Request.Method == GET && Response.Status > 399", true},
		{"Request.Query == anything", false},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			p, err := Compile(tc.expr)
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, tc.want, p(sampleEntry()))
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	for _, expr := range []string{
		"Request.Method",
		"Request.Method ==",
		"Request.Nope == GET",
		"Request.Method ~= GET",
		"Response.Status > many",
		"Request.Method == GET && ",
	} {
		_, err := Compile(expr)
		assert.Error(t, err, expr)
	}
}

func TestCompile_QuotedAmpersands(t *testing.T) {
	e := logging.NewEntry(logging.StatusProcessed, map[logging.Field]any{
		logging.FieldMethod: "GET",
		logging.FieldURL:    "http://example.com/search?q=a&&b",
	})

	p, err := Compile(`Request.URL contains "a&&b"`)
	require.NoError(t, err)
	assert.True(t, p(e))

	p, err = Compile(`Request.Method == GET && Request.URL contains "q=a&&b" && Request.URL contains "\"&&"`)
	require.NoError(t, err)
	assert.False(t, p(e))

	p, err = Compile(`Request.URL contains "a&&b"&&Request.Method == GET`)
	require.NoError(t, err)
	assert.True(t, p(e))
}

func TestSplitClauses(t *testing.T) {
	assert.Equal(t, []string{"a == 1 ", " b == 2"}, splitClauses("a == 1 && b == 2"))
	assert.Equal(t, []string{`a contains "x&&y"`}, splitClauses(`a contains "x&&y"`))
	assert.Equal(t, []string{`a == "q\"&&"`, " b == 1"}, splitClauses(`a == "q\"&&"&& b == 1`))
}
