package pipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/otherjamesbrown/caseflow-api/internal/audit"
	"github.com/otherjamesbrown/caseflow-api/internal/storage"
)

// SessionManager enforces session lifecycle policy: inactivity and absolute
// timeouts, the per-user concurrent session cap, and throttled activity
// touches.
type SessionManager struct {
	Store  storage.Store
	Audit  audit.Emitter
	Logger zerolog.Logger

	InactivityTimeout time.Duration
	AbsoluteTimeout   time.Duration
	ActivityInterval  time.Duration
	MaxPerUser        int

	// Now is injectable for tests. Nil means time.Now.
	Now func() time.Time
	// Background runs best-effort work (activity touch, cap trimming) without
	// blocking the request. Nil means a goroutine with its own timeout;
	// tests substitute an inline runner.
	Background func(fn func(ctx context.Context))
}

func (m *SessionManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *SessionManager) background(fn func(ctx context.Context)) {
	if m.Background != nil {
		m.Background(fn)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

// Resolve validates the session behind a token hash. It returns the session
// when it is live, a rejection when it is expired or revoked, and (nil, nil)
// when no such session exists so the caller falls back to unauthenticated.
// Expired sessions are deleted so the cookie is dead on the next request.
func (m *SessionManager) Resolve(ctx context.Context, r *http.Request, tokenHash string) (*storage.Session, *Rejection) {
	sess, err := m.Store.GetSession(ctx, tokenHash)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, nil
		}
		return nil, rejectInternal(err)
	}

	if sess.RevokedAt != nil {
		return nil, rejectUnauthenticated()
	}

	now := m.now()
	if now.Sub(sess.CreatedAt) > m.AbsoluteTimeout {
		m.expire(ctx, r, sess, CodeSessionAbsoluteTimeout)
		return nil, reject(http.StatusUnauthorized, CodeSessionAbsoluteTimeout,
			"session expired, please sign in again", "session_timeout")
	}
	if now.Sub(sess.LastActivityAt) > m.InactivityTimeout {
		m.expire(ctx, r, sess, CodeSessionTimeout)
		return nil, reject(http.StatusUnauthorized, CodeSessionTimeout,
			"session expired, please sign in again", "session_timeout")
	}

	m.touch(sess, now)
	m.trim(sess.UserID, tokenHash)
	return &sess, nil
}

// expire deletes a timed-out session and records the event. Deletion failure
// is logged only: the request is rejected either way.
func (m *SessionManager) expire(ctx context.Context, r *http.Request, sess storage.Session, code string) {
	if err := m.Store.DeleteSession(ctx, sess.TokenHash); err != nil {
		m.Logger.Error().Err(err).Msg("delete expired session")
	}
	event := audit.BuildEvent(uuidNil, sess.UserID, audit.ActorTypeUser,
		audit.ActionSessionExpired, map[string]any{"code": code})
	if err := m.Audit.Emit(ctx, audit.WithRequest(event, r)); err != nil {
		m.Logger.Warn().Err(err).Msg("emit session audit event")
	}
}

// touch updates last activity, at most once per ActivityInterval per session
// to bound write amplification. Fire-and-forget.
func (m *SessionManager) touch(sess storage.Session, now time.Time) {
	if now.Sub(sess.LastActivityAt) < m.ActivityInterval {
		return
	}
	m.background(func(ctx context.Context) {
		if err := m.Store.TouchSession(ctx, sess.TokenHash, now); err != nil {
			m.Logger.Warn().Err(err).Msg("touch session activity")
		}
	})
}

// trim force-expires the oldest-by-activity sessions beyond the per-user cap.
// Best-effort: errors are logged and the request proceeds. Concurrent trims
// are tolerated because each run re-derives oldest-over-cap from scratch.
func (m *SessionManager) trim(userID uuid.UUID, keepHash string) {
	if m.MaxPerUser <= 0 {
		return
	}
	m.background(func(ctx context.Context) {
		sessions, err := m.Store.ListSessionsByUser(ctx, userID)
		if err != nil {
			m.Logger.Warn().Err(err).Msg("list sessions for trimming")
			return
		}
		if len(sessions) <= m.MaxPerUser {
			return
		}
		for _, old := range sessions[m.MaxPerUser:] {
			if old.TokenHash == keepHash {
				continue
			}
			if err := m.Store.DeleteSession(ctx, old.TokenHash); err != nil {
				m.Logger.Warn().Err(err).Msg("trim session")
				continue
			}
			event := audit.BuildEvent(uuidNil, old.UserID, audit.ActorTypeUser,
				audit.ActionSessionTrimmed, map[string]any{"reason": "session cap exceeded"})
			if err := m.Audit.Emit(ctx, event); err != nil {
				m.Logger.Warn().Err(err).Msg("emit trim audit event")
			}
		}
	})
}
