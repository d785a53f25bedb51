package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
		wantArgs []string
		wantErr  bool
	}{
		{name: "simple", input: "/status", wantName: "status"},
		{name: "with args", input: "/send 5 Hello there", wantName: "send", wantArgs: []string{"5", "Hello", "there"}},
		{name: "leading whitespace", input: "  /help  ", wantName: "help"},
		{name: "empty", input: "", wantErr: true},
		{name: "no slash", input: "status", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, cmd.Name)
			if tt.wantArgs != nil {
				assert.Equal(t, tt.wantArgs, cmd.Args)
			}
		})
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1", "42", "7"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 42, 7}, ids)

	_, err = parseIDs([]string{"1", "abc"})
	assert.Error(t, err)

	ids, err = parseIDs(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, 25, parseLimit([]string{"25"}, 0, 10))
	assert.Equal(t, 10, parseLimit([]string{"abc"}, 0, 10))
	assert.Equal(t, 10, parseLimit(nil, 0, 10))
	assert.Equal(t, 10, parseLimit([]string{"-3"}, 0, 10))
	assert.Equal(t, 30, parseLimit([]string{"5", "30"}, 1, 10))
}
