package faketransport

import (
	"context"
	"fmt"
	"sync"

	"github.com/govmarket/market-core/negotiation"
)

// FakeTransport records outbound messages per counterparty for tests.
type FakeTransport struct {
	lock     sync.Mutex
	messages map[negotiation.CounterpartyID][][]byte
	failing  map[negotiation.CounterpartyID]struct{}

	// OnSend, if set, is invoked synchronously after a successful send. Tests
	// use it to simulate counterparty replies (e.g. competing offers).
	OnSend func(to negotiation.CounterpartyID, payload []byte)
}

// New returns an empty fake transport.
func New() *FakeTransport {
	return &FakeTransport{
		messages: map[negotiation.CounterpartyID][][]byte{},
		failing:  map[negotiation.CounterpartyID]struct{}{},
	}
}

// Send records the payload, or fails if the recipient was marked failing.
func (t *FakeTransport) Send(_ context.Context, to negotiation.CounterpartyID, payload []byte) error {
	t.lock.Lock()
	_, failing := t.failing[to]
	if !failing {
		t.messages[to] = append(t.messages[to], payload)
	}
	cb := t.OnSend
	t.lock.Unlock()

	if failing {
		return fmt.Errorf("send to %s: connection refused", to)
	}
	if cb != nil {
		cb(to, payload)
	}
	return nil
}

// Helpers for tests

// FailFor makes every send to id return an error.
func (t *FakeTransport) FailFor(id negotiation.CounterpartyID) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.failing[id] = struct{}{}
}

// TotalSent returns the number of successfully sent messages.
func (t *FakeTransport) TotalSent() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	var count int
	for _, msgs := range t.messages {
		count += len(msgs)
	}
	return count
}

// MessagesTo returns all payloads sent to id, in send order.
func (t *FakeTransport) MessagesTo(id negotiation.CounterpartyID) [][]byte {
	t.lock.Lock()
	defer t.lock.Unlock()

	msgs := make([][]byte, len(t.messages[id]))
	copy(msgs, t.messages[id])
	return msgs
}

// DecodedMessagesTo returns all messages sent to id, decoded.
func (t *FakeTransport) DecodedMessagesTo(id negotiation.CounterpartyID) ([]negotiation.Message, error) {
	var out []negotiation.Message
	for _, raw := range t.MessagesTo(id) {
		m, err := negotiation.DecodeMessage(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
