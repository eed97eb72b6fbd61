// Package client talks to a log server over its one-request-per-connection
// protocol.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds one request when the caller's context has no
// deadline of its own.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error reply is kept in StatusError.
const maxErrorBody = 4096

// StatusError is returned for any non-200 reply.
type StatusError struct {
	Status int
	Reason string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Reason)
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for the server at addr ("host:port" or a URL).
func New(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http: &http.Client{
			// The server closes every connection after one response.
			Transport: &http.Transport{DisableKeepAlives: true},
			Timeout:   DefaultTimeout,
		},
	}
}

// AddUser registers user and returns the token the server issued.
func (c *Client) AddUser(ctx context.Context, user string) (string, error) {
	q := url.Values{"name": {user}}
	body, err := c.do(ctx, http.MethodGet, "/adduser?"+q.Encode(), "", nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Send appends entries to user's log. An empty token is only accepted by
// the server when user has no log yet. It returns the token echoed back,
// which for a new user is freshly issued.
func (c *Client) Send(ctx context.Context, user, token string, entries []byte) (string, error) {
	if len(entries) == 0 || entries[len(entries)-1] != '\n' {
		entries = append(entries[:len(entries):len(entries)], '\n')
	}
	body, err := c.do(ctx, http.MethodPost, "/"+url.PathEscape(user), token, entries)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Get copies user's log to w: the whole log when entries <= 0, otherwise
// its last entries lines.
func (c *Client) Get(ctx context.Context, user, token string, entries int, w io.Writer) (int64, error) {
	target := "/" + url.PathEscape(user)
	if entries > 0 {
		target += "?entries=" + strconv.Itoa(entries)
	}
	resp, err := c.send(ctx, http.MethodGet, target, token, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

// PublicKey returns the server's PEM-encoded verification key.
func (c *Client) PublicKey(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/pubkey", "", nil)
}

func (c *Client) do(ctx context.Context, method, target, token string, body []byte) ([]byte, error) {
	resp, err := c.send(ctx, method, target, token, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// send performs one request and turns every non-200 reply into a
// StatusError.
func (c *Client) send(ctx context.Context, method, target, token string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+target, r)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Status: resp.StatusCode, Reason: strings.TrimSpace(string(reason))}
	}
	return resp, nil
}
