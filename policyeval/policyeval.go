package policyeval

import (
	"context"
	"fmt"
	"strings"

	"github.com/govmarket/market-core/negotiation"
	"github.com/shopspring/decimal"
)

// Evaluator decides whether to accept a buyer's offer under the seller's
// policy. Implementations may be slow (an LLM round-trip) or fail; callers
// map a failure to a rejection and never retry internally.
type Evaluator interface {
	Evaluate(ctx context.Context, offer negotiation.Offer, policy string) (negotiation.OfferResponse, error)
}

// RuleEvaluator is a deterministic evaluator: it rejects proposals matching
// "reject <keyword>" lines in the policy, accepts offers at or above the
// asking price, counters offers between the floor and the asking price, and
// rejects offers below the floor.
type RuleEvaluator struct {
	floor  decimal.Decimal
	asking decimal.Decimal
}

var _ Evaluator = (*RuleEvaluator)(nil)

// NewRuleEvaluator returns a rule evaluator with the given floor and asking
// price.
func NewRuleEvaluator(floor, asking decimal.Decimal) *RuleEvaluator {
	return &RuleEvaluator{floor: floor, asking: asking}
}

// Evaluate applies the policy keywords and price thresholds to the offer.
func (e *RuleEvaluator) Evaluate(_ context.Context, offer negotiation.Offer, policy string) (negotiation.OfferResponse, error) {
	if keyword, ok := forbiddenKeyword(offer.Proposal, policy); ok {
		return negotiation.OfferResponse{
			Accepted:        false,
			RejectionReason: fmt.Sprintf("policy forbids proposals mentioning %q", keyword),
		}, nil
	}

	amount, err := offer.Amount()
	if err != nil {
		return negotiation.OfferResponse{}, err
	}

	if amount.Cmp(e.asking) >= 0 {
		return negotiation.OfferResponse{
			Accepted: true,
			Reason:   fmt.Sprintf("offer %s meets asking price %s", amount, e.asking),
		}, nil
	}
	if amount.Cmp(e.floor) >= 0 {
		return negotiation.OfferResponse{
			Accepted:     false,
			Reason:       fmt.Sprintf("offer %s below asking price %s", amount, e.asking),
			CounterOffer: e.asking.String(),
		}, nil
	}
	return negotiation.OfferResponse{
		Accepted:        false,
		RejectionReason: fmt.Sprintf("offer %s below floor %s", amount, e.floor),
	}, nil
}

// forbiddenKeyword scans policy lines of the form "reject <keyword>" and
// reports the first keyword found in the proposal title or description.
func forbiddenKeyword(p negotiation.Proposal, policy string) (string, bool) {
	text := strings.ToLower(p.Title + " " + p.Description)
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(strings.ToLower(line))
		if !strings.HasPrefix(line, "reject ") {
			continue
		}
		keyword := strings.TrimSpace(strings.TrimPrefix(line, "reject "))
		keyword = strings.TrimSuffix(keyword, "s")
		if keyword == "" {
			continue
		}
		if strings.Contains(text, keyword) {
			return keyword, true
		}
	}
	return "", false
}
