package negotiator

import (
	"testing"
	"time"

	"github.com/govmarket/market-core/negotiation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkBid(t *testing.T, id string, amount string, receivedAt time.Time, original bool) bid {
	t.Helper()
	d, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	return bid{
		counterparty: negotiation.CounterpartyID(id),
		offer:        negotiation.Offer{OfferedAmount: amount},
		receivedAt:   receivedAt,
		amount:       d,
		isOriginal:   original,
	}
}

func winners(bids []bid) []negotiation.CounterpartyID {
	ids := make([]negotiation.CounterpartyID, len(bids))
	for i, b := range bids {
		ids[i] = b.counterparty
	}
	return ids
}

func TestRankingHighestAmountWins(t *testing.T) {
	t.Parallel()
	now := time.Now()
	ranked := rankBids([]bid{
		mkBid(t, "buyer-a", "10", now, true),
		mkBid(t, "buyer-b", "12", now.Add(time.Second), false),
		mkBid(t, "buyer-c", "11.999", now.Add(2*time.Second), false),
	}, defaultRanking())

	assert.Equal(t, []negotiation.CounterpartyID{"buyer-b", "buyer-c", "buyer-a"}, winners(ranked))
}

func TestRankingComparesDecimalsNotStrings(t *testing.T) {
	t.Parallel()
	now := time.Now()
	// Lexically "9.5" > "12", numerically the opposite.
	ranked := rankBids([]bid{
		mkBid(t, "buyer-a", "9.5", now, true),
		mkBid(t, "buyer-b", "12", now, false),
	}, defaultRanking())

	assert.Equal(t, negotiation.CounterpartyID("buyer-b"), ranked[0].counterparty)
}

func TestRankingOriginalWinsTies(t *testing.T) {
	t.Parallel()
	now := time.Now()
	ranked := rankBids([]bid{
		mkBid(t, "buyer-b", "10.0", now.Add(-time.Second), false),
		mkBid(t, "buyer-a", "10", now, true),
	}, defaultRanking())

	assert.Equal(t, negotiation.CounterpartyID("buyer-a"), ranked[0].counterparty)
}

func TestRankingEqualCompetitorsByArrival(t *testing.T) {
	t.Parallel()
	now := time.Now()
	ranked := rankBids([]bid{
		mkBid(t, "buyer-a", "5", now, true),
		mkBid(t, "buyer-c", "10", now.Add(2*time.Second), false),
		mkBid(t, "buyer-b", "10", now.Add(time.Second), false),
	}, defaultRanking())

	assert.Equal(t, []negotiation.CounterpartyID{"buyer-b", "buyer-c", "buyer-a"}, winners(ranked))
}

func TestRankingDeterministic(t *testing.T) {
	t.Parallel()
	now := time.Now()
	mk := func() []bid {
		return []bid{
			mkBid(t, "buyer-a", "10", now, true),
			mkBid(t, "buyer-b", "10", now.Add(time.Second), false),
			mkBid(t, "buyer-c", "7", now.Add(2*time.Second), false),
		}
	}
	first := winners(rankBids(mk(), defaultRanking()))
	for i := 0; i < 100; i++ {
		require.Equal(t, first, winners(rankBids(mk(), defaultRanking())))
	}
}
