package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVoteOffer(t *testing.T) {
	t.Parallel()
	data := []byte(`{
		"type": "vote-offer",
		"taskId": "task-1",
		"from": "buyer-a",
		"proposal": {"topicId": "0.0.1234", "sequenceNumber": 7, "title": "Fund the grant program"},
		"desiredOutcome": "yes",
		"offeredAmount": "15.5",
		"quantity": 1
	}`)

	msg, err := DecodeMessage(data)
	require.NoError(t, err)

	offer, ok := msg.(*VoteOfferMessage)
	require.True(t, ok)
	assert.Equal(t, TaskID("task-1"), offer.TaskID)
	assert.Equal(t, CounterpartyID("buyer-a"), offer.From)
	assert.Equal(t, "15.5", offer.OfferedAmount)
	assert.Equal(t, "Fund the grant program", offer.Proposal.Title)

	amount, err := offer.Offer().Amount()
	require.NoError(t, err)
	assert.Equal(t, "15.5", amount.String())
}

func TestDecodeVoteOfferWithoutTaskID(t *testing.T) {
	t.Parallel()
	// A first offer may omit the task id; the seller mints one.
	msg, err := DecodeMessage([]byte(`{"type": "vote-offer", "from": "buyer-a", "offeredAmount": "10"}`))
	require.NoError(t, err)
	offer, ok := msg.(*VoteOfferMessage)
	require.True(t, ok)
	assert.Empty(t, offer.TaskID)
}

func TestDecodeCompetingOfferResponse(t *testing.T) {
	t.Parallel()
	data := []byte(`{
		"type": "competing-offer-response",
		"auctionId": "task-1",
		"from": "buyer-b",
		"wantsToBeat": true,
		"newOffer": {
			"proposal": {"topicId": "0.0.1234", "sequenceNumber": 7, "title": "Fund the grant program"},
			"desiredOutcome": "yes",
			"offeredAmount": "20"
		}
	}`)

	msg, err := DecodeMessage(data)
	require.NoError(t, err)

	res, ok := msg.(*CompetingOfferResponseMessage)
	require.True(t, ok)
	assert.True(t, res.WantsToBeat)
	require.NotNil(t, res.NewOffer)
	assert.Equal(t, "20", res.NewOffer.OfferedAmount)
}

func TestDecodeFailsClosed(t *testing.T) {
	t.Parallel()
	for _, testCase := range []struct {
		name string
		data string
	}{
		{"not json", `offer please`},
		{"unknown type", `{"type": "vote-bribe"}`},
		{"missing type", `{"taskId": "task-1"}`},
		{"offer without sender", `{"type": "vote-offer", "taskId": "task-1", "offeredAmount": "10"}`},
		{"offer with bad amount", `{"type": "vote-offer", "taskId": "t", "from": "b", "offeredAmount": "ten"}`},
		{"offer with float drift amount", `{"type": "vote-offer", "taskId": "t", "from": "b", "offeredAmount": "1e"}`},
		{"offer with negative amount", `{"type": "vote-offer", "taskId": "t", "from": "b", "offeredAmount": "-3"}`},
		{"competing response without auction id", `{"type": "competing-offer-response", "from": "b", "wantsToBeat": false}`},
		{"beat without new offer", `{"type": "competing-offer-response", "auctionId": "t", "from": "b", "wantsToBeat": true}`},
		{
			"beat with bad amount",
			`{"type": "competing-offer-response", "auctionId": "t", "from": "b", "wantsToBeat": true,
			  "newOffer": {"offeredAmount": "NaN"}}`,
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(testCase.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestOfferResponseTerminal(t *testing.T) {
	t.Parallel()
	assert.True(t, OfferResponse{Accepted: true}.Terminal())
	assert.True(t, OfferResponse{Accepted: false, RejectionReason: "no"}.Terminal())
	assert.False(t, OfferResponse{Accepted: false, CounterOffer: "12"}.Terminal())
}

func TestOfferAmountIsDecimal(t *testing.T) {
	t.Parallel()
	a, err := Offer{OfferedAmount: "0.1"}.Amount()
	require.NoError(t, err)
	b, err := Offer{OfferedAmount: "0.2"}.Amount()
	require.NoError(t, err)
	// 0.1 + 0.2 == 0.3 exactly; binary floats would drift.
	assert.Equal(t, "0.3", a.Add(b).String())

	_, err = Offer{OfferedAmount: "12,5"}.Amount()
	require.Error(t, err)
}
