// Package guard implements the per-request authorization decision: token to
// session, session to user, user to effective abilities.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stratus-console/stratus/internal/projection"
	"github.com/stratus-console/stratus/internal/session"
)

// Outcome is the terminal state of one authorization decision.
type Outcome int

const (
	// Allow lets the request through.
	Allow Outcome = iota
	// DenyUnauthorized means authentication failed: no token, or the token
	// resolves to nothing.
	DenyUnauthorized
	// DenyForbidden means the session is real but the privilege is not.
	DenyForbidden
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case DenyUnauthorized:
		return "unauthorized"
	case DenyForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Decision is the result of Authorize. UserID is zero unless a token
// resolved to a session.
type Decision struct {
	Outcome Outcome
	UserID  int64
}

// SessionReader resolves tokens to session records.
type SessionReader interface {
	Get(ctx context.Context, token string) (*session.Record, error)
}

// AbilitySource resolves users to their effective ability set.
type AbilitySource interface {
	EffectiveAbilities(userID int64) (projection.AbilitySet, bool)
}

// Observer receives decision telemetry. Implemented by observability.Metrics.
type Observer interface {
	IncGuardDecision(outcome string)
	IncSessionError(op string)
}

// Guard evaluates authorization decisions. Protected operations declare their
// required ability ids statically; possession of any one of them satisfies
// the requirement.
type Guard struct {
	sessions SessionReader
	source   AbilitySource
	header   string
	bypass   []string
	logger   *slog.Logger
	observer Observer
}

// Config collects Guard dependencies.
type Config struct {
	Sessions SessionReader
	Source   AbilitySource
	// TokenHeader is the request header carrying the opaque token.
	TokenHeader string
	// BypassPaths are matched before any token inspection. An entry ending
	// in "/" matches as a prefix, anything else matches exactly.
	BypassPaths []string
	Logger      *slog.Logger
	Observer    Observer
}

// New constructs a Guard.
func New(cfg Config) *Guard {
	header := cfg.TokenHeader
	if header == "" {
		header = "X-Auth-Token"
	}
	return &Guard{
		sessions: cfg.Sessions,
		source:   cfg.Source,
		header:   header,
		bypass:   cfg.BypassPaths,
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}
}

// Token extracts the opaque token from the request.
func (g *Guard) Token(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(g.header))
}

// Bypassed reports whether the path skips authorization entirely. These are
// the endpoints that establish identity and the probes that must answer
// without one.
func (g *Guard) Bypassed(path string) bool {
	for _, p := range g.bypass {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// Authorize runs the decision procedure for one request. required lists the
// target operation's ability ids; an empty list means any user present in
// the projection may pass. A user absent from the projection is denied with
// DenyForbidden even on a zero-requirement route: disabled users fail closed
// regardless of what the route asks for.
func (g *Guard) Authorize(ctx context.Context, path, token string, required []int64) Decision {
	return g.observe(g.authorize(ctx, path, token, required))
}

func (g *Guard) authorize(ctx context.Context, path, token string, required []int64) Decision {
	if g.Bypassed(path) {
		return Decision{Outcome: Allow}
	}
	if token == "" {
		return Decision{Outcome: DenyUnauthorized}
	}

	rec, err := g.sessions.Get(ctx, token)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			// Store unavailable: fail closed rather than guessing.
			if g.logger != nil {
				g.logger.Error("guard: resolve token", slog.Any("error", err))
			}
			if g.observer != nil {
				g.observer.IncSessionError("get")
			}
		}
		return Decision{Outcome: DenyUnauthorized}
	}

	abilities, ok := g.source.EffectiveAbilities(rec.UserID)
	if !ok {
		return Decision{Outcome: DenyForbidden, UserID: rec.UserID}
	}
	if len(required) == 0 {
		return Decision{Outcome: Allow, UserID: rec.UserID}
	}
	if abilities.ContainsAny(required) {
		return Decision{Outcome: Allow, UserID: rec.UserID}
	}
	return Decision{Outcome: DenyForbidden, UserID: rec.UserID}
}

func (g *Guard) observe(d Decision) Decision {
	if g.observer != nil {
		g.observer.IncGuardDecision(d.Outcome.String())
	}
	return d
}
