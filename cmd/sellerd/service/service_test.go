package service

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/govmarket/market-core/cmd/sellerd/negotiator"
	"github.com/govmarket/market-core/negotiation"
	"github.com/govmarket/market-core/policyeval"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type buyerStub struct {
	*httptest.Server
	mu       sync.Mutex
	received []negotiation.Message
}

func newBuyerStub(t *testing.T) *buyerStub {
	t.Helper()
	b := &buyerStub{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := ioutil.ReadAll(r.Body)
		require.NoError(t, err)
		msg, err := negotiation.DecodeMessage(body)
		require.NoError(t, err)
		b.mu.Lock()
		b.received = append(b.received, msg)
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(b.Server.Close)
	return b
}

func (b *buyerStub) messages() []negotiation.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]negotiation.Message, len(b.received))
	copy(out, b.received)
	return out
}

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	floor, err := decimal.NewFromString("5")
	require.NoError(t, err)
	asking, err := decimal.NewFromString("10")
	require.NoError(t, err)

	s, err := New(Config{
		Listener:  listener,
		Policy:    "reject airdrops",
		Auction:   negotiator.Config{AuctionDuration: time.Millisecond * 200},
		Evaluator: policyeval.NewRuleEvaluator(floor, asking),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, fmt.Sprintf("http://%s", listener.Addr())
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp
}

func TestServiceDropsMalformedMessages(t *testing.T) {
	t.Parallel()
	s, base := newTestService(t)

	resp := post(t, base+"/v1/messages", `{"type": "vote-bribe"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = post(t, base+"/v1/messages", `not even json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, s.Negotiator().ActiveNegotiations())
}

func TestServiceRoutesVoteOffer(t *testing.T) {
	t.Parallel()
	_, base := newTestService(t)
	buyer := newBuyerStub(t)

	resp := post(t, base+"/v1/counterparties",
		fmt.Sprintf(`{"id": "buyer-a", "endpoint": %q}`, buyer.URL))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post(t, base+"/v1/messages", `{
		"type": "vote-offer",
		"taskId": "task-1",
		"from": "buyer-a",
		"proposal": {"topicId": "0.0.1234", "sequenceNumber": 7, "title": "Fund the grant program"},
		"desiredOutcome": "yes",
		"offeredAmount": "15"
	}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		for _, m := range buyer.messages() {
			if r, ok := m.(*negotiation.VoteOfferResponseMessage); ok && r.Accepted {
				return true
			}
		}
		return false
	}, time.Second*5, time.Millisecond*20)

	require.Eventually(t, func() bool {
		for _, m := range buyer.messages() {
			if r, ok := m.(*negotiation.NegotiationResultMessage); ok && r.Type == negotiation.MsgTypeNegotiationSuccess {
				return true
			}
		}
		return false
	}, time.Second*5, time.Millisecond*20)
}
