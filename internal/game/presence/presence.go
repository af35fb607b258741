package presence

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// mirrorTTL bounds how long a stale mirror entry can outlive a crashed process.
const mirrorTTL = 24 * time.Hour

// Registry maps a user identity to its current websocket session ID. It is
// the process-local source of truth for whisper routing and disconnect
// cleanup; entries are created on join and removed on leave or disconnect.
//
// When a Redis client is provided, entries are mirrored best-effort under
// presence:<userID> keys so that presence could later be shared across
// processes. Mirror failures are logged and never fail the local update.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]string // userID -> sessionID

	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRegistry creates a presence registry. redisClient may be nil, in which
// case the registry is purely in-memory.
func NewRegistry(redisClient *redis.Client, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		sessions:    make(map[string]string),
		redisClient: redisClient,
		logger:      logger,
	}
}

// Set records the active session for a user, replacing any previous one.
func (r *Registry) Set(ctx context.Context, userID, sessionID string) {
	r.mu.Lock()
	r.sessions[userID] = sessionID
	r.mu.Unlock()

	if r.redisClient != nil {
		if err := r.redisClient.Set(ctx, mirrorKey(userID), sessionID, mirrorTTL).Err(); err != nil {
			r.logger.Warnf("Failed to mirror presence for user %s: %v", userID, err)
		}
	}
}

// Get returns the session ID for a user and whether one is registered.
func (r *Registry) Get(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionID, ok := r.sessions[userID]
	return sessionID, ok
}

// Remove drops the presence entry for a user.
func (r *Registry) Remove(ctx context.Context, userID string) {
	r.mu.Lock()
	delete(r.sessions, userID)
	r.mu.Unlock()

	if r.redisClient != nil {
		if err := r.redisClient.Del(ctx, mirrorKey(userID)).Err(); err != nil {
			r.logger.Warnf("Failed to remove presence mirror for user %s: %v", userID, err)
		}
	}
}

// RemoveBySession drops whichever user currently owns the given session ID
// and returns that user's ID. Used on disconnect, when only the connection
// is known.
func (r *Registry) RemoveBySession(ctx context.Context, sessionID string) (string, bool) {
	r.mu.Lock()
	var userID string
	for id, sid := range r.sessions {
		if sid == sessionID {
			userID = id
			break
		}
	}
	if userID != "" {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()

	if userID == "" {
		return "", false
	}

	if r.redisClient != nil {
		if err := r.redisClient.Del(ctx, mirrorKey(userID)).Err(); err != nil {
			r.logger.Warnf("Failed to remove presence mirror for user %s: %v", userID, err)
		}
	}
	return userID, true
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func mirrorKey(userID string) string {
	return "presence:" + userID
}
