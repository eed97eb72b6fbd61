// Package router maps one parsed request onto the log store and token
// service and returns the reply to send. It knows nothing about sockets.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/akave-ai/logserver/internal/logstore"
	"github.com/akave-ai/logserver/internal/model"
	"github.com/akave-ai/logserver/internal/response"
	"github.com/akave-ai/logserver/internal/target"
	"github.com/akave-ai/logserver/internal/token"
)

// Pseudo-users with fixed meaning. They can never be registered.
const (
	PathPublicKey = "pubkey"
	PathAddUser   = "adduser"
	PathIndex     = "index.html"
)

const (
	placeholder       = "no frontend available; use GET /<user> or POST /<user>"
	genericServerFail = "internal server error"
)

// Request is the transport-independent part of an HTTP request the router
// looks at.
type Request struct {
	Method        string
	Target        string
	Authorization string
	Body          []byte
}

type Tokens interface {
	Issue(user string) (string, error)
	Verify(tok, user string) bool
	PublicKey() []byte
}

type Store interface {
	Lock(user string) func()
	Exists(user string) (bool, error)
	Create(user string) error
	Append(user string, data []byte) (int64, error)
	Open(user string, entries int) (*logstore.Contents, error)
}

// Journal receives a record of every successful state change. A nil Journal
// disables recording.
type Journal interface {
	Record(ctx context.Context, event model.JournalEvent) error
}

type Options struct {
	// DebugBypass lets GET requests with debug=true skip token checks.
	DebugBypass bool
	Journal     Journal
}

type Router struct {
	tokens      Tokens
	store       Store
	journal     Journal
	debugBypass bool
}

func New(tokens Tokens, store Store, opts Options) *Router {
	return &Router{
		tokens:      tokens,
		store:       store,
		journal:     opts.Journal,
		debugBypass: opts.DebugBypass,
	}
}

// Route decides and performs the operation for req. The logger is taken
// from ctx (zerolog.Ctx).
func (r *Router) Route(ctx context.Context, req Request) *response.Response {
	switch req.Method {
	case http.MethodGet, http.MethodPost:
	default:
		return response.BadRequest(fmt.Sprintf("invalid request-method '%s'", req.Method))
	}

	t, err := target.Parse(req.Target)
	if err != nil {
		return response.BadRequest(err.Error())
	}

	if req.Method == http.MethodGet {
		switch t.User {
		case "", PathIndex:
			return response.NotImplemented(placeholder)
		case PathPublicKey:
			return response.PublicKey(r.tokens.PublicKey())
		case PathAddUser:
			return r.addUser(ctx, t.Query.Name)
		}
		return r.read(ctx, t, req.Authorization)
	}
	return r.append(ctx, t.User, req)
}

func isReserved(user string) bool {
	return user == PathPublicKey || user == PathAddUser || user == PathIndex
}

func (r *Router) read(ctx context.Context, t target.Target, authorization string) *response.Response {
	user := t.User
	exists, err := r.store.Exists(user)
	if err != nil {
		return r.storeFailure(ctx, "exists", user, err)
	}
	if !exists {
		return response.NotFound(user)
	}

	if t.Query.Debug && r.debugBypass {
		zerolog.Ctx(ctx).Warn().Str("user", user).Msg("token check skipped by debug flag")
	} else if _, denied := r.authorize(user, authorization); denied != nil {
		return denied
	}

	contents, err := r.store.Open(user, t.Query.Tail())
	if err != nil {
		if errors.Is(err, logstore.ErrUserNotFound) {
			return response.NotFound(user)
		}
		return r.storeFailure(ctx, "open", user, err)
	}
	return response.Logfile(contents, contents.Size, contents)
}

func (r *Router) addUser(ctx context.Context, name string) *response.Response {
	if name == "" {
		return response.BadRequest("missing query parameter 'name'")
	}
	if err := target.ValidateUser(name); err != nil {
		return response.BadRequest(err.Error())
	}
	if isReserved(name) {
		return response.BadRequest(fmt.Sprintf("'%s' is a reserved name", name))
	}

	unlock := r.store.Lock(name)
	defer unlock()

	if err := r.store.Create(name); err != nil {
		if errors.Is(err, logstore.ErrUserExists) {
			return response.Unauthorized(fmt.Sprintf("user '%s' already exists", name))
		}
		return r.storeFailure(ctx, "create", name, err)
	}
	r.record(ctx, name, model.JournalUserCreated, 0)
	return r.issue(ctx, name)
}

func (r *Router) append(ctx context.Context, user string, req Request) *response.Response {
	if user == "" {
		return response.BadRequest("missing user in target")
	}
	if isReserved(user) {
		return response.BadRequest(fmt.Sprintf("'%s' is a reserved name", user))
	}
	if len(req.Body) == 0 {
		return response.BadRequest("empty request body")
	}

	unlock := r.store.Lock(user)
	defer unlock()

	exists, err := r.store.Exists(user)
	if err != nil {
		return r.storeFailure(ctx, "exists", user, err)
	}

	// The first write for an unknown user needs no token and hands one out.
	if !exists {
		n, err := r.store.Append(user, req.Body)
		if err != nil {
			return r.storeFailure(ctx, "append", user, err)
		}
		r.record(ctx, user, model.JournalUserCreated, 0)
		r.record(ctx, user, model.JournalAppended, n)
		return r.issue(ctx, user)
	}

	tok, denied := r.authorize(user, req.Authorization)
	if denied != nil {
		return denied
	}
	n, err := r.store.Append(user, req.Body)
	if err != nil {
		return r.storeFailure(ctx, "append", user, err)
	}
	r.record(ctx, user, model.JournalAppended, n)
	return response.Token(tok)
}

// authorize returns the presented token when it is valid for user, or the
// 401 to send instead.
func (r *Router) authorize(user, authorization string) (string, *response.Response) {
	tok, err := token.ExtractBearer(authorization)
	if err != nil {
		return "", response.Unauthorized(err.Error())
	}
	if !r.tokens.Verify(tok, user) {
		return "", response.Unauthorized(fmt.Sprintf("token not valid for user '%s'", user))
	}
	return tok, nil
}

func (r *Router) issue(ctx context.Context, user string) *response.Response {
	tok, err := r.tokens.Issue(user)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("user", user).Msg("issue token")
		return response.ServerError(genericServerFail)
	}
	r.record(ctx, user, model.JournalTokenIssued, 0)
	return response.Token(tok)
}

func (r *Router) storeFailure(ctx context.Context, op, user string, err error) *response.Response {
	var bad *target.BadTargetError
	if errors.As(err, &bad) {
		return response.BadRequest(bad.Error())
	}
	zerolog.Ctx(ctx).Error().Err(err).Str("op", op).Str("user", user).Msg("log store failure")
	return response.ServerError(genericServerFail)
}
