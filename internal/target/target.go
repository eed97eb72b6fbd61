// Package target parses request targets of the form /<user>?k=v&... into a
// user identifier and the recognized query parameters.
package target

import (
	"net/url"
	"strconv"
	"strings"
)

// EntriesState tells an absent entries parameter apart from one that was
// present but unusable.
type EntriesState int

const (
	EntriesAbsent EntriesState = iota
	EntriesSet
	EntriesInvalid
)

// QueryParams is the parsed view over a target's query string.
type QueryParams struct {
	Entries      int
	EntriesState EntriesState
	Debug        bool
	Name         string
}

// Tail returns the requested line count, or 0 for the full log. Absent,
// zero, negative and unparseable values all mean the full log.
func (q QueryParams) Tail() int {
	if q.EntriesState != EntriesSet {
		return 0
	}
	return q.Entries
}

// Target is a validated request target.
type Target struct {
	User  string
	Query QueryParams
}

// BadTargetError reports a target that failed validation.
type BadTargetError struct {
	Target string
	Reason string
}

func (e *BadTargetError) Error() string {
	return "bad target '" + e.Target + "': " + e.Reason
}

// Parse validates raw and splits it into user and query parameters. The
// rules are applied in order: raw must start with '/', must not contain
// "..", and its path must be a single segment. The root target "/" yields
// an empty user.
func Parse(raw string) (Target, error) {
	if raw == "" || raw[0] != '/' {
		return Target{}, &BadTargetError{Target: raw, Reason: "target must start with '/'"}
	}
	if strings.Contains(raw, "..") {
		return Target{}, &BadTargetError{Target: raw, Reason: "target must not contain '..'"}
	}
	path, query, _ := strings.Cut(raw, "?")
	user := path[1:]
	if strings.Contains(user, "/") {
		return Target{}, &BadTargetError{Target: raw, Reason: "target must be a single path segment"}
	}
	return Target{User: user, Query: parseQuery(query)}, nil
}

func parseQuery(query string) QueryParams {
	var q QueryParams
	if query == "" {
		return q
	}
	for _, pair := range strings.Split(query, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if unescaped, err := url.QueryUnescape(value); err == nil {
			value = unescaped
		}
		switch strings.ToLower(key) {
		case "entries":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				q.Entries = 0
				q.EntriesState = EntriesInvalid
				continue
			}
			q.Entries = n
			q.EntriesState = EntriesSet
		case "debug":
			q.Debug, _ = strconv.ParseBool(value)
		case "name":
			q.Name = value
		}
	}
	return q
}

// ValidateUser applies the single-segment rules to a user name taken from
// somewhere other than the path, such as the adduser name parameter.
func ValidateUser(name string) error {
	switch {
	case name == "":
		return &BadTargetError{Target: name, Reason: "user name must not be empty"}
	case strings.Contains(name, ".."):
		return &BadTargetError{Target: name, Reason: "user name must not contain '..'"}
	case strings.ContainsAny(name, "/\\\x00"):
		return &BadTargetError{Target: name, Reason: "user name must not contain path separators"}
	}
	return nil
}
