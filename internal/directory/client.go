package directory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when an account id no longer resolves.
var ErrNotFound = errors.New("directory: account not found")

// RemoteError reports a failed call to the directory.
type RemoteError struct {
	Op     string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("directory %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("directory %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Client is the remote directory contract.
type Client interface {
	FetchOne(ctx context.Context, id string) (*Entity, error)
	FetchAll(ctx context.Context) (ListResponse, error)
	Create(ctx context.Context, attrs Attributes) (*Entity, error)
	UpdateFields(ctx context.Context, id string, attrs Attributes) (*Entity, error)
	Enable(ctx context.Context, id string) error
	Disable(ctx context.Context, id string) error
	ResetTraffic(ctx context.Context, id string) error
	RevokeSubscription(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error

	ListDevices(ctx context.Context, id string) ([]Device, error)
	AddDevice(ctx context.Context, id, hwid string) error
	DeleteDevice(ctx context.Context, id, hwid string) error
	// Usage returns per-node daily traffic between from and to.
	Usage(ctx context.Context, id string, from, to time.Time) ([]UsageEntry, error)
}

// Action names a single-id state operation.
type Action string

const (
	ActionEnable       Action = "enable"
	ActionDisable      Action = "disable"
	ActionResetTraffic Action = "reset"
	ActionRevoke       Action = "revoke"
	ActionDelete       Action = "delete"
)

// ParseAction maps a verb to an Action.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionEnable, ActionDisable, ActionResetTraffic, ActionRevoke, ActionDelete:
		return a, true
	}
	return "", false
}

// ChangesMembership reports whether the action alters the set of accounts
// rather than just one account's fields.
func (a Action) ChangesMembership() bool { return a == ActionDelete }

// Apply runs the action against c.
func Apply(ctx context.Context, c Client, a Action, id string) error {
	switch a {
	case ActionEnable:
		return c.Enable(ctx, id)
	case ActionDisable:
		return c.Disable(ctx, id)
	case ActionResetTraffic:
		return c.ResetTraffic(ctx, id)
	case ActionRevoke:
		return c.RevokeSubscription(ctx, id)
	case ActionDelete:
		return c.Delete(ctx, id)
	}
	return fmt.Errorf("directory: unknown action %q", a)
}
