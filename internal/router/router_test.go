package router

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akave-ai/logserver/internal/logstore"
	"github.com/akave-ai/logserver/internal/model"
	"github.com/akave-ai/logserver/internal/response"
	"github.com/akave-ai/logserver/internal/token"
)

var (
	keysOnce sync.Once
	keys     *token.KeyPair
	keysErr  error
)

type memJournal struct {
	mu     sync.Mutex
	events []model.JournalEvent
	err    error
}

func (j *memJournal) Record(_ context.Context, e model.JournalEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
	return j.err
}

func (j *memJournal) kinds() []model.JournalKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]model.JournalKind, 0, len(j.events))
	for _, e := range j.events {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	router  *Router
	store   *logstore.Store
	tokens  *token.Service
	journal *memJournal
}

func newFixture(t *testing.T, debugBypass bool) *fixture {
	t.Helper()
	keysOnce.Do(func() { keys, keysErr = token.GenerateKeyPair(token.DefaultKeyBits) })
	require.NoError(t, keysErr)

	store, err := logstore.New(filepath.Join(t.TempDir(), "logs"))
	require.NoError(t, err)
	tokens := token.NewService(keys, "logserver")
	journal := &memJournal{}
	return &fixture{
		router:  New(tokens, store, Options{DebugBypass: debugBypass, Journal: journal}),
		store:   store,
		tokens:  tokens,
		journal: journal,
	}
}

func (f *fixture) do(t *testing.T, method, target, tok, body string) (int, string, string) {
	t.Helper()
	req := Request{Method: method, Target: target, Body: []byte(body)}
	if tok != "" {
		req.Authorization = "Bearer " + tok
	}
	resp := f.router.Route(context.Background(), req)
	defer resp.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, resp.Length, int64(len(b)))
	return resp.Status, resp.ContentType, string(b)
}

func TestRoute_AddUserReadAppendTail(t *testing.T) {
	f := newFixture(t, false)

	status, ctype, tok := f.do(t, http.MethodGet, "/adduser?name=alice", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, response.ContentTypeToken, ctype)
	assert.True(t, f.tokens.Verify(tok, "alice"))

	status, _, body := f.do(t, http.MethodGet, "/alice", tok, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "", body)

	status, _, echoed := f.do(t, http.MethodPost, "/alice", tok, "hello")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, tok, echoed)

	status, _, body = f.do(t, http.MethodGet, "/alice?entries=1", tok, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello\n", body)

	assert.Equal(t, []model.JournalKind{
		model.JournalUserCreated,
		model.JournalTokenIssued,
		model.JournalAppended,
	}, f.journal.kinds())
}

func TestRoute_FirstPostBypassesAuth(t *testing.T) {
	f := newFixture(t, false)

	status, _, body := f.do(t, http.MethodGet, "/nobody", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "nobody")

	status, ctype, tok := f.do(t, http.MethodPost, "/nobody", "", "first")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, response.ContentTypeToken, ctype)
	assert.True(t, f.tokens.Verify(tok, "nobody"))
	assert.False(t, f.tokens.Verify(tok, "somebody"))

	status, _, body = f.do(t, http.MethodGet, "/nobody", tok, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "first\n", body)
}

func TestRoute_ForeignTokenRejected(t *testing.T) {
	f := newFixture(t, false)
	_, _, _ = f.do(t, http.MethodPost, "/alice", "", "a")
	_, _, bobTok := f.do(t, http.MethodPost, "/bob", "", "b")

	status, _, body := f.do(t, http.MethodGet, "/alice", bobTok, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token not valid for user 'alice'\n", body)

	status, _, _ = f.do(t, http.MethodPost, "/alice", bobTok, "sneaky")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRoute_MissingAndMalformedCredentials(t *testing.T) {
	f := newFixture(t, false)
	_, _, _ = f.do(t, http.MethodPost, "/alice", "", "a")

	status, _, body := f.do(t, http.MethodGet, "/alice", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing bearer token\n", body)

	resp := f.router.Route(context.Background(), Request{
		Method:        http.MethodGet,
		Target:        "/alice",
		Authorization: "Basic YWxpY2U6cHc=",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Status)

	status, _, _ = f.do(t, http.MethodGet, "/alice", "not.a.token", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _, _ = f.do(t, http.MethodPost, "/alice", "", "more")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRoute_DebugBypass(t *testing.T) {
	enabled := newFixture(t, true)
	_, _, _ = enabled.do(t, http.MethodPost, "/alice", "", "secret")
	status, _, body := enabled.do(t, http.MethodGet, "/alice?debug=true", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "secret\n", body)

	disabled := newFixture(t, false)
	_, _, _ = disabled.do(t, http.MethodPost, "/alice", "", "secret")
	status, _, _ = disabled.do(t, http.MethodGet, "/alice?debug=true", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRoute_EntriesPolicy(t *testing.T) {
	f := newFixture(t, false)
	_, _, tok := f.do(t, http.MethodPost, "/alice", "", "e1")
	for _, e := range []string{"e2", "e3\n"} {
		status, _, _ := f.do(t, http.MethodPost, "/alice", tok, e)
		require.Equal(t, http.StatusOK, status)
	}

	full := "e1\ne2\ne3\n"
	tests := map[string]string{
		"/alice":            full,
		"/alice?entries=0":  full,
		"/alice?entries=-2": full,
		"/alice?entries=x":  full,
		"/alice?entries=2":  "e2\ne3\n",
		"/alice?entries=3":  full,
		"/alice?entries=99": full,
	}
	for target, want := range tests {
		status, _, body := f.do(t, http.MethodGet, target, tok, "")
		assert.Equal(t, http.StatusOK, status, target)
		assert.Equal(t, want, body, target)
	}
}

func TestRoute_AddUserErrors(t *testing.T) {
	f := newFixture(t, false)

	status, _, _ := f.do(t, http.MethodGet, "/adduser", "", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = f.do(t, http.MethodGet, "/adduser?name=pubkey", "", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = f.do(t, http.MethodGet, "/adduser?name=a%2Fb", "", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = f.do(t, http.MethodGet, "/adduser?name=alice", "", "")
	require.Equal(t, http.StatusOK, status)
	status, _, body := f.do(t, http.MethodGet, "/adduser?name=alice", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "user 'alice' already exists\n", body)
}

func TestRoute_PseudoPaths(t *testing.T) {
	f := newFixture(t, false)

	status, ctype, body := f.do(t, http.MethodGet, "/pubkey", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, response.ContentTypeText, ctype)
	assert.Equal(t, string(f.tokens.PublicKey()), body)

	for _, target := range []string{"/", "/index.html"} {
		status, _, _ := f.do(t, http.MethodGet, target, "", "")
		assert.Equal(t, http.StatusNotImplemented, status, target)
	}
}

func TestRoute_BadRequests(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		method, target, body string
	}{
		{http.MethodPut, "/alice", "x"},
		{http.MethodDelete, "/alice", ""},
		{http.MethodGet, "/..%2fetc", ""},
		{http.MethodGet, "/a/b", ""},
		{http.MethodPost, "/../passwd", "x"},
		{http.MethodPost, "/alice", ""},
		{http.MethodPost, "/", "x"},
		{http.MethodPost, "/pubkey", "x"},
		{http.MethodGet, "/a\\b", ""},
	}
	for _, tt := range tests {
		status, ctype, body := f.do(t, tt.method, tt.target, "", tt.body)
		assert.Equal(t, http.StatusBadRequest, status, "%s %s", tt.method, tt.target)
		assert.Equal(t, response.ContentTypeText, ctype)
		assert.True(t, strings.HasSuffix(body, "\n"))
	}

	users, err := f.store.Users()
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRoute_JournalFailureDoesNotChangeResponse(t *testing.T) {
	f := newFixture(t, false)
	f.journal.err = errors.New("database down")

	status, _, tok := f.do(t, http.MethodPost, "/alice", "", "x")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, f.tokens.Verify(tok, "alice"))
}

func TestConnID(t *testing.T) {
	ctx := WithConnID(context.Background(), "c-1")
	assert.Equal(t, "c-1", ConnID(ctx))
	assert.Equal(t, "", ConnID(context.Background()))
}
