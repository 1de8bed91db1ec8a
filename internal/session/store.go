// Package session keeps one wizard session per conversation. Sessions
// expire after a configurable idle period.
package session

import (
	"context"
	"time"

	"github.com/matthewbaird/accountdesk/internal/wizard"
)

// DefaultIdleTimeout is used when a store is created with a zero timeout.
const DefaultIdleTimeout = 30 * time.Minute

// Store persists the wizard session of each conversation.
type Store interface {
	// Get returns the conversation's session, or false when there is none
	// or it has been idle longer than the store's timeout.
	Get(ctx context.Context, conversationID string) (wizard.Session, bool, error)
	// Put replaces the conversation's session and refreshes its idle clock.
	Put(ctx context.Context, conversationID string, s wizard.Session) error
	// Remove forgets the conversation's session.
	Remove(ctx context.Context, conversationID string) error
	// Cleanup removes idle sessions and reports how many were dropped.
	Cleanup(ctx context.Context) (int, error)
}

func idleOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultIdleTimeout
	}
	return d
}
