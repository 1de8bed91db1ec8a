package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryClient is an in-process directory used for local runs and tests.
type MemoryClient struct {
	mu       sync.Mutex
	accounts map[string]*Entity
	order    []string
	devices  map[string][]Device
	usage    map[string][]UsageEntry
	calls    map[string]int
	failures map[string]error
	now      func() time.Time
}

// NewMemoryClient creates an empty directory.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		accounts: make(map[string]*Entity),
		devices:  make(map[string][]Device),
		usage:    make(map[string][]UsageEntry),
		calls:    make(map[string]int),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// Seed inserts accounts as-is, assigning ids to those without one.
func (m *MemoryClient) Seed(accounts ...Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range accounts {
		e := accounts[i].Clone()
		if e.UUID == "" {
			e.UUID = uuid.NewString()
		}
		if e.ShortUUID == "" {
			e.ShortUUID = e.UUID[:8]
		}
		if e.Status == "" {
			e.Status = StatusActive
		}
		if _, ok := m.accounts[e.UUID]; !ok {
			m.order = append(m.order, e.UUID)
		}
		m.accounts[e.UUID] = e
	}
}

// FailNext makes the next call of op ("fetch", "list", "create", "update",
// an action name) return err.
func (m *MemoryClient) FailNext(op string, err error) {
	m.mu.Lock()
	m.failures[op] = err
	m.mu.Unlock()
}

// Calls returns how many times op was invoked.
func (m *MemoryClient) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MemoryClient) enter(op string) error {
	m.calls[op]++
	if err, ok := m.failures[op]; ok {
		delete(m.failures, op)
		return err
	}
	return nil
}

func (m *MemoryClient) FetchOne(_ context.Context, id string) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("fetch"); err != nil {
		return nil, err
	}
	e, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", id, ErrNotFound)
	}
	return e.Clone(), nil
}

func (m *MemoryClient) FetchAll(_ context.Context) (ListResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list"); err != nil {
		return nil, err
	}
	out := make([]Entity, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.accounts[id].Clone())
	}
	return NestedList{Entities: out, Total: len(out)}, nil
}

func (m *MemoryClient) Create(_ context.Context, attrs Attributes) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("create"); err != nil {
		return nil, err
	}
	e, err := attrs.ApplyTo(&Entity{})
	if err != nil {
		return nil, &RemoteError{Op: "create", Status: 400, Err: err}
	}
	if e.Username == "" {
		return nil, &RemoteError{Op: "create", Status: 400, Err: fmt.Errorf("username is required")}
	}
	for _, other := range m.accounts {
		if other.Username == e.Username {
			return nil, &RemoteError{Op: "create", Status: 409, Err: fmt.Errorf("username %q already exists", e.Username)}
		}
	}
	e.UUID = uuid.NewString()
	e.ShortUUID = e.UUID[:8]
	e.Status = StatusActive
	created := m.now().UTC()
	e.CreatedAt = &created
	m.accounts[e.UUID] = e
	m.order = append(m.order, e.UUID)
	return e.Clone(), nil
}

func (m *MemoryClient) UpdateFields(_ context.Context, id string, attrs Attributes) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("update"); err != nil {
		return nil, err
	}
	cur, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	next, err := attrs.ApplyTo(cur)
	if err != nil {
		return nil, &RemoteError{Op: "update", Status: 400, Err: err}
	}
	m.accounts[id] = next
	return next.Clone(), nil
}

func (m *MemoryClient) Enable(_ context.Context, id string) error {
	return m.mutate("enable", id, func(e *Entity) { e.Status = StatusActive })
}

func (m *MemoryClient) Disable(_ context.Context, id string) error {
	return m.mutate("disable", id, func(e *Entity) { e.Status = StatusDisabled })
}

func (m *MemoryClient) ResetTraffic(_ context.Context, id string) error {
	return m.mutate("reset", id, func(e *Entity) {
		e.UsedTrafficBytes = 0
		if e.Status == StatusLimited {
			e.Status = StatusActive
		}
	})
}

func (m *MemoryClient) RevokeSubscription(_ context.Context, id string) error {
	return m.mutate("revoke", id, func(e *Entity) {
		e.ShortUUID = uuid.NewString()[:8]
		e.SubscriptionURL = ""
	})
}

func (m *MemoryClient) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("delete"); err != nil {
		return err
	}
	if _, ok := m.accounts[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	delete(m.accounts, id)
	delete(m.devices, id)
	delete(m.usage, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryClient) mutate(op, id string, fn func(*Entity)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(op); err != nil {
		return err
	}
	e, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	fn(e)
	return nil
}

// SeedDevices binds devices to an existing account.
func (m *MemoryClient) SeedDevices(id string, devices ...Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[id] = append(m.devices[id], devices...)
}

// SeedUsage records usage entries for an account. Entry dates use the
// YYYY-MM-DD form.
func (m *MemoryClient) SeedUsage(id string, entries ...UsageEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[id] = append(m.usage[id], entries...)
}

func (m *MemoryClient) ListDevices(_ context.Context, id string) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("devices"); err != nil {
		return nil, err
	}
	if _, ok := m.accounts[id]; !ok {
		return nil, fmt.Errorf("devices %s: %w", id, ErrNotFound)
	}
	return append([]Device{}, m.devices[id]...), nil
}

func (m *MemoryClient) AddDevice(_ context.Context, id, hwid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("add_device"); err != nil {
		return err
	}
	e, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("add_device %s: %w", id, ErrNotFound)
	}
	for _, d := range m.devices[id] {
		if d.HWID == hwid {
			return &RemoteError{Op: "add_device", Status: 409, Err: fmt.Errorf("device %q already registered", hwid)}
		}
	}
	if e.HwidDeviceLimit != nil && *e.HwidDeviceLimit > 0 && int64(len(m.devices[id])) >= *e.HwidDeviceLimit {
		return &RemoteError{Op: "add_device", Status: 400, Err: fmt.Errorf("device limit of %d reached", *e.HwidDeviceLimit)}
	}
	created := m.now().UTC()
	m.devices[id] = append(m.devices[id], Device{HWID: hwid, CreatedAt: &created})
	return nil
}

func (m *MemoryClient) DeleteDevice(_ context.Context, id, hwid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("del_device"); err != nil {
		return err
	}
	if _, ok := m.accounts[id]; !ok {
		return fmt.Errorf("del_device %s: %w", id, ErrNotFound)
	}
	list := m.devices[id]
	for i, d := range list {
		if d.HWID == hwid {
			m.devices[id] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("del_device %s: %w", hwid, ErrDeviceNotFound)
}

func (m *MemoryClient) Usage(_ context.Context, id string, from, to time.Time) ([]UsageEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("usage"); err != nil {
		return nil, err
	}
	if _, ok := m.accounts[id]; !ok {
		return nil, fmt.Errorf("usage %s: %w", id, ErrNotFound)
	}
	lo, hi := from.UTC().Format(time.DateOnly), to.UTC().Format(time.DateOnly)
	var out []UsageEntry
	for _, u := range m.usage[id] {
		if u.Date != "" && (u.Date < lo || u.Date > hi) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// IDs returns all account ids sorted, for assertions.
func (m *MemoryClient) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.order...)
	sort.Strings(out)
	return out
}
