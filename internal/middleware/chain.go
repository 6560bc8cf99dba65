package middleware

import (
	"log/slog"
	"net/http"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain composes middleware in declaration order.
type Chain struct {
	middlewares []Middleware
}

func New(middlewares ...Middleware) Chain {
	return Chain{middlewares: middlewares}
}

// Then appends more middleware to the chain.
func (c Chain) Then(middlewares ...Middleware) Chain {
	return Chain{middlewares: append(c.middlewares, middlewares...)}
}

// Handler applies the chain to a handler, outermost first.
func (c Chain) Handler(handler http.Handler) http.Handler {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		handler = c.middlewares[i](handler)
	}

	return handler
}

// Set holds the configured middleware for route wiring.
type Set struct {
	CORS    Middleware
	Logging Middleware
}

func NewSet(logger *slog.Logger) Set {
	return Set{
		CORS:    NewCORSMiddleware(),
		Logging: NewLoggingMiddleware(logger),
	}
}

// DefaultChain is applied to every route: compatibility headers first so
// even error responses carry them, then request logging.
func (s Set) DefaultChain() Chain {
	return New(
		s.CORS,
		s.Logging,
	)
}
