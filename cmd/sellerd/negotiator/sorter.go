package negotiator

import (
	"sort"
	"time"

	"github.com/govmarket/market-core/negotiation"
	"github.com/shopspring/decimal"
)

// bid is one ranked entry in an auction: the original offer or a valid
// competing offer, with its amount parsed once.
type bid struct {
	counterparty negotiation.CounterpartyID
	offer        negotiation.Offer
	receivedAt   time.Time
	amount       decimal.Decimal
	isOriginal   bool
}

// Cmp is the interface for a bid comparator.
type Cmp interface {
	// Cmp returns an arbitrary number with the following semantics:
	// negative: i ranks ahead of j
	// zero: i is considered equal to j
	// positive: j ranks ahead of i
	Cmp(i, j bid) int
}

// CmpFn is a helper which turns a function into a Cmp interface.
func CmpFn(f func(i, j bid) int) Cmp {
	return fnCmp{f: f}
}

type fnCmp struct {
	f func(i, j bid) int
}

func (c fnCmp) Cmp(i, j bid) int {
	return c.f(i, j)
}

type ordered struct {
	cmps []Cmp
}

// Ordered executes each comparator in order, i.e., if the first comparator
// judges the two bids to be equal, continues to the next comparator, and so
// on. It considers two bids to be equal if all comparators are exhausted.
func Ordered(cmps ...Cmp) Cmp {
	return ordered{cmps}
}

func (c ordered) Cmp(i, j bid) int {
	for _, c := range c.cmps {
		result := c.Cmp(i, j)
		switch result {
		case 0:
			continue
		default:
			return result
		}
	}
	return 0
}

// HigherAmount returns a comparator which prefers the numerically larger
// offered amount, compared as decimals.
func HigherAmount() Cmp {
	return CmpFn(func(i, j bid) int {
		return j.amount.Cmp(i.amount)
	})
}

// PreferOriginal returns a comparator which prefers the original offerer over
// a later competitor. This makes the equal-amounts tie-break an explicit
// policy: the original offer wins.
func PreferOriginal() Cmp {
	return CmpFn(func(i, j bid) int {
		switch {
		case i.isOriginal == j.isOriginal:
			return 0
		case i.isOriginal:
			return -1
		default:
			return 1
		}
	})
}

// EarlierReceived returns a comparator which prefers the bid received first.
func EarlierReceived() Cmp {
	return CmpFn(func(i, j bid) int {
		switch {
		case i.receivedAt.Before(j.receivedAt):
			return -1
		case j.receivedAt.Before(i.receivedAt):
			return 1
		default:
			return 0
		}
	})
}

// defaultRanking is the auction ranking: highest amount first, the original
// offerer winning ties, then earliest arrival.
func defaultRanking() Cmp {
	return Ordered(HigherAmount(), PreferOriginal(), EarlierReceived())
}

// rankBids sorts bids in winning order under cmp. The input slice is sorted
// in place and returned.
func rankBids(bids []bid, cmp Cmp) []bid {
	sort.SliceStable(bids, func(i, j int) bool {
		return cmp.Cmp(bids[i], bids[j]) < 0
	})
	return bids
}
