// Package logstore keeps one append-only text file per user. A user is known
// exactly when their file exists.
package logstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/akave-ai/logserver/internal/model"
	"github.com/akave-ai/logserver/internal/tail"
	"github.com/akave-ai/logserver/internal/target"
)

// Extension is appended to the user name to form the log file name.
const Extension = ".log"

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)

// StoreError wraps a filesystem failure with the operation and user.
type StoreError struct {
	Op   string
	User string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("logstore: %s %q: %v", e.Op, e.User, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

type Store struct {
	dir   string
	locks *userLocks
}

// New returns a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logstore: create %s: %w", dir, err)
	}
	return &Store{dir: dir, locks: newUserLocks()}, nil
}

// Dir returns the directory holding the log files.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(user string) (string, error) {
	if err := target.ValidateUser(user); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, user+Extension), nil
}

// Lock serializes operations on user's log across connections. The
// returned function releases it.
func (s *Store) Lock(user string) func() {
	return s.locks.lock(user)
}

// Exists reports whether user has a log.
func (s *Store) Exists(user string) (bool, error) {
	path, err := s.path(user)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, &StoreError{Op: "stat", User: user, Err: err}
	}
}

// Create makes an empty log for user. It fails with ErrUserExists when the
// log is already there.
func (s *Store) Create(user string) error {
	path, err := s.path(user)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrUserExists
		}
		return &StoreError{Op: "create", User: user, Err: err}
	}
	if err := f.Close(); err != nil {
		return &StoreError{Op: "create", User: user, Err: err}
	}
	return nil
}

// Append adds data to user's log, creating the log when absent. The stored
// bytes always end with a newline; one is added if data lacks it. It
// returns the number of bytes written.
func (s *Store) Append(user string, data []byte) (int64, error) {
	path, err := s.path(user)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		terminated := make([]byte, len(data)+1)
		copy(terminated, data)
		terminated[len(data)] = '\n'
		data = terminated
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return 0, &StoreError{Op: "open", User: user, Err: err}
	}
	n, err := f.Write(data)
	if err != nil {
		f.Close()
		return int64(n), &StoreError{Op: "append", User: user, Err: err}
	}
	if err := f.Close(); err != nil {
		return int64(n), &StoreError{Op: "close", User: user, Err: err}
	}
	return int64(n), nil
}

// Contents is an open view of a log. Size is fixed at open time, so appends
// that land while it is being read are not included.
type Contents struct {
	io.Reader
	Size int64
	file *os.File
}

func (c *Contents) Close() error {
	return c.file.Close()
}

// Open returns user's whole log when entries <= 0, otherwise its last
// entries lines.
func (s *Store) Open(user string, entries int) (*Contents, error) {
	path, err := s.path(user)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrUserNotFound
		}
		return nil, &StoreError{Op: "open", User: user, Err: err}
	}

	if entries <= 0 {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, &StoreError{Op: "stat", User: user, Err: err}
		}
		return &Contents{Reader: io.NewSectionReader(f, 0, info.Size()), Size: info.Size(), file: f}, nil
	}

	span, err := tail.Locate(f, entries)
	if err != nil {
		f.Close()
		return nil, &StoreError{Op: "tail", User: user, Err: err}
	}
	return &Contents{Reader: span.Reader(f), Size: span.Size(), file: f}, nil
}

// Users lists every user with a log, sorted by name.
func (s *Store) Users() ([]model.User, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("logstore: list %s: %w", s.dir, err)
	}
	users := make([]model.User, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, Extension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		users = append(users, model.User{
			Name:       strings.TrimSuffix(name, Extension),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}
