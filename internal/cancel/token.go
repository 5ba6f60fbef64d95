// Package cancel provides the cooperative cancellation token threaded
// through every long-running loop in the core (content scan, fuzzy scan,
// FTS build, semantic build, semantic search).
package cancel

import (
	"context"

	"github.com/lasmarois/notesbridge/internal/noteserr"
)

// Token wraps a context.Context with a cheap per-iteration check so hot
// loops don't pay ctx.Err()'s cost on every element.
type Token struct {
	ctx context.Context
}

// FromContext wraps an existing context as a Token.
func FromContext(ctx context.Context) Token {
	if ctx == nil {
		ctx = context.Background()
	}
	return Token{ctx: ctx}
}

// Background returns a Token that never cancels.
func Background() Token { return Token{ctx: context.Background()} }

// Check returns noteserr.Cancelled if the underlying context is done.
func (t Token) Check() error {
	select {
	case <-t.ctx.Done():
		return noteserr.Cancelled
	default:
		return nil
	}
}

// Context exposes the underlying context for calls that need to pass it on
// (e.g. database/sql's QueryContext).
func (t Token) Context() context.Context { return t.ctx }
