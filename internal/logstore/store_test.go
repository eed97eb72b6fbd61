package logstore

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "logs"))
	require.NoError(t, err)
	return s
}

func readAll(t *testing.T, s *Store, user string, entries int) string {
	t.Helper()
	c, err := s.Open(user, entries)
	require.NoError(t, err)
	defer c.Close()
	b, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, c.Size, int64(len(b)))
	return string(b)
}

func TestStore_ExistsAndCreate(t *testing.T) {
	s := newStore(t)

	ok, err := s.Exists("alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Create("alice"))
	ok, err = s.Exists("alice")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, s.Create("alice"), ErrUserExists)
	assert.Equal(t, "", readAll(t, s, "alice", 0))
}

func TestStore_AppendRoundTrip(t *testing.T) {
	s := newStore(t)

	for _, entry := range []string{"e1", "e2\n", "e3"} {
		_, err := s.Append("alice", []byte(entry))
		require.NoError(t, err)
	}
	assert.Equal(t, "e1\ne2\ne3\n", readAll(t, s, "alice", 0))
	assert.FileExists(t, filepath.Join(s.Dir(), "alice.log"))
}

func TestStore_AppendCountsBytes(t *testing.T) {
	s := newStore(t)
	n, err := s.Append("alice", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestStore_OpenTail(t *testing.T) {
	s := newStore(t)
	_, err := s.Append("alice", []byte("one\ntwo\nthree"))
	require.NoError(t, err)

	assert.Equal(t, "three\n", readAll(t, s, "alice", 1))
	assert.Equal(t, "two\nthree\n", readAll(t, s, "alice", 2))
	assert.Equal(t, "one\ntwo\nthree\n", readAll(t, s, "alice", 10))
	// Repeated tails without appends are identical.
	assert.Equal(t, readAll(t, s, "alice", 2), readAll(t, s, "alice", 2))
}

func TestStore_OpenUnknown(t *testing.T) {
	s := newStore(t)
	_, err := s.Open("nobody", 0)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStore_RejectsUnsafeNames(t *testing.T) {
	s := newStore(t)
	for _, user := range []string{"", "..", "../etc", "a/b"} {
		_, err := s.Exists(user)
		assert.Error(t, err, user)
		_, err = s.Append(user, []byte("x"))
		assert.Error(t, err, user)
	}
}

func TestStore_AppendFailureIsStoreError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	s := newStore(t)
	require.NoError(t, os.Chmod(s.Dir(), 0o500))
	t.Cleanup(func() { os.Chmod(s.Dir(), 0o755) })

	_, err := s.Append("alice", []byte("x"))
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "open", storeErr.Op)
}

func TestStore_Users(t *testing.T) {
	s := newStore(t)
	_, err := s.Append("bob", []byte("b"))
	require.NoError(t, err)
	require.NoError(t, s.Create("alice"))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o644))

	users, err := s.Users()
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Name)
	assert.Equal(t, int64(0), users[0].Size)
	assert.Equal(t, "bob", users[1].Name)
	assert.Equal(t, int64(2), users[1].Size)
}

func TestUserLocks_Serializes(t *testing.T) {
	locks := newUserLocks()
	unlock := locks.lock("alice")

	acquired := make(chan struct{})
	go func() {
		release := locks.lock("alice")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}

	// Other users are independent.
	locks.lock("bob")()

	unlock()
	<-acquired
	unlock()

	assert.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStore_ConcurrentAppendsSameUser(t *testing.T) {
	s := newStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("alice")
			defer unlock()
			_, err := s.Append("alice", []byte("entry"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := s.Open("alice", 0)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, int64(20*len("entry\n")), c.Size)
}
