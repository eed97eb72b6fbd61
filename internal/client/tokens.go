package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ErrTokenExists is returned by Put when a token is already stored for the
// user and force is not set.
var ErrTokenExists = errors.New("token already stored")

// TokenStore remembers the tokens a server issued, keyed by user, in a JSON
// file.
type TokenStore struct {
	path   string
	tokens map[string]string
}

// LoadTokens reads the token file at path. A missing file is an empty store.
func LoadTokens(path string) (*TokenStore, error) {
	ts := &TokenStore{path: path, tokens: map[string]string{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ts, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	if err := json.Unmarshal(data, &ts.tokens); err != nil {
		return nil, fmt.Errorf("parse tokens %s: %w", path, err)
	}
	return ts, nil
}

func (ts *TokenStore) Get(user string) (string, bool) {
	tok, ok := ts.tokens[user]
	return tok, ok
}

// Put stores tok for user. It refuses to replace an existing token unless
// force is set.
func (ts *TokenStore) Put(user, tok string, force bool) error {
	if _, ok := ts.tokens[user]; ok && !force {
		return fmt.Errorf("%w for user %q", ErrTokenExists, user)
	}
	ts.tokens[user] = tok
	return nil
}

// Delete forgets user's token and reports whether one was stored.
func (ts *TokenStore) Delete(user string) bool {
	_, ok := ts.tokens[user]
	delete(ts.tokens, user)
	return ok
}

func (ts *TokenStore) DeleteAll() {
	ts.tokens = map[string]string{}
}

// Users returns the users with a stored token, sorted.
func (ts *TokenStore) Users() []string {
	users := make([]string, 0, len(ts.tokens))
	for u := range ts.tokens {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Save writes the store back to its file with owner-only permissions.
func (ts *TokenStore) Save() error {
	if dir := filepath.Dir(ts.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(ts.tokens, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(ts.path, data, 0o600); err != nil {
		return fmt.Errorf("write tokens: %w", err)
	}
	return nil
}
