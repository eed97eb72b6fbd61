package router

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akave-ai/logserver/internal/model"
)

type connIDKey struct{}

// WithConnID tags ctx with the connection that issued the request; journal
// events carry it.
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connIDKey{}, id)
}

// ConnID returns the connection ID stored by WithConnID, or "".
func ConnID(ctx context.Context) string {
	id, _ := ctx.Value(connIDKey{}).(string)
	return id
}

// record writes a journal event. Failures are logged and never change the
// response.
func (r *Router) record(ctx context.Context, user string, kind model.JournalKind, n int64) {
	if r.journal == nil {
		return
	}
	event := model.JournalEvent{
		ID:        uuid.New(),
		User:      user,
		Kind:      kind,
		Bytes:     n,
		ConnID:    ConnID(ctx),
		CreatedAt: time.Now().UTC(),
	}
	if err := r.journal.Record(ctx, event); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user", user).Str("kind", string(kind)).Msg("journal record failed")
	}
}
