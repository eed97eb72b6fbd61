package target

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		raw  string
		want Target
	}{
		{"/", Target{}},
		{"/alice", Target{User: "alice"}},
		{"/Alice", Target{User: "Alice"}},
		{"/alice?entries=5", Target{User: "alice", Query: QueryParams{Entries: 5, EntriesState: EntriesSet}}},
		{"/alice?ENTRIES=2&Debug=true", Target{User: "alice", Query: QueryParams{Entries: 2, EntriesState: EntriesSet, Debug: true}}},
		{"/alice?entries=0", Target{User: "alice", Query: QueryParams{EntriesState: EntriesSet}}},
		{"/adduser?name=bob", Target{User: "adduser", Query: QueryParams{Name: "bob"}}},
		{"/adduser?name=b%20ob&color=red", Target{User: "adduser", Query: QueryParams{Name: "b ob"}}},
		{"/alice?debug", Target{User: "alice"}},
		{"/alice?", Target{User: "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_InvalidEntries(t *testing.T) {
	for _, raw := range []string{"/alice?entries=-1", "/alice?entries=abc", "/alice?entries="} {
		got, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, EntriesInvalid, got.Query.EntriesState, raw)
		assert.Equal(t, 0, got.Query.Tail(), raw)
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		raw    string
		reason string
	}{
		{"", "target must start with '/'"},
		{"alice", "target must start with '/'"},
		{"/..", "target must not contain '..'"},
		{"/..%2fetc", "target must not contain '..'"},
		{"/alice/../bob", "target must not contain '..'"},
		{"/alice?name=..", "target must not contain '..'"},
		{"/alice/logs", "target must be a single path segment"},
		{"//alice", "target must be a single path segment"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := Parse(tt.raw)
			var bad *BadTargetError
			require.True(t, errors.As(err, &bad), "expected BadTargetError, got %v", err)
			assert.Equal(t, tt.reason, bad.Reason)
		})
	}
}

func TestQueryParams_Tail(t *testing.T) {
	assert.Equal(t, 0, QueryParams{}.Tail())
	assert.Equal(t, 3, QueryParams{Entries: 3, EntriesState: EntriesSet}.Tail())
	assert.Equal(t, 0, QueryParams{Entries: 3, EntriesState: EntriesInvalid}.Tail())
}

func TestValidateUser(t *testing.T) {
	require.NoError(t, ValidateUser("alice"))
	require.Error(t, ValidateUser(""))
	require.Error(t, ValidateUser("a/b"))
	require.Error(t, ValidateUser("a\\b"))
	require.Error(t, ValidateUser(".."))
}
