package transport

import (
	"context"
	"sort"
	"sync"

	"github.com/govmarket/market-core/negotiation"
)

// Transport delivers an encoded wire message to a counterparty. Implementations
// must be safe for concurrent use.
type Transport interface {
	// Send delivers payload to the given counterparty. A non-nil error means
	// the message was not delivered; the caller decides whether that is fatal.
	Send(ctx context.Context, to negotiation.CounterpartyID, payload []byte) error
}

// Directory is the live registry of known counterparties and their outbound
// endpoints. It is owned by the hosting process; the negotiator only reads it.
// Registrations may race with an in-flight auction fan-out, so fan-outs work
// from a Snapshot taken at start.
type Directory struct {
	mu      sync.RWMutex
	members map[negotiation.CounterpartyID]string
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{members: make(map[negotiation.CounterpartyID]string)}
}

// Register adds or updates a counterparty's outbound endpoint.
func (d *Directory) Register(id negotiation.CounterpartyID, endpoint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[id] = endpoint
}

// Remove drops a counterparty from the directory.
func (d *Directory) Remove(id negotiation.CounterpartyID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.members, id)
}

// Endpoint returns the registered endpoint for a counterparty.
func (d *Directory) Endpoint(id negotiation.CounterpartyID) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.members[id]
	return e, ok
}

// Len returns the number of registered counterparties.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.members)
}

// Snapshot returns the current member ids in a stable order, excluding any ids
// in except. The returned slice is detached from the directory and is not
// affected by later registrations.
func (d *Directory) Snapshot(except ...negotiation.CounterpartyID) []negotiation.CounterpartyID {
	skip := make(map[negotiation.CounterpartyID]struct{}, len(except))
	for _, id := range except {
		skip[id] = struct{}{}
	}

	d.mu.RLock()
	ids := make([]negotiation.CounterpartyID, 0, len(d.members))
	for id := range d.members {
		if _, ok := skip[id]; ok {
			continue
		}
		ids = append(ids, id)
	}
	d.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
