package negotiation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TaskID correlates all messages belonging to one negotiation. It doubles as
// the auction id while a competitive auction is running for the negotiation.
type TaskID string

// CounterpartyID identifies the other party in a negotiation exchange.
type CounterpartyID string

// Proposal describes the governance proposal whose vote is being priced.
// Proposals are created externally and are read-only here.
type Proposal struct {
	TopicID        string    `json:"topicId"`
	SequenceNumber uint64    `json:"sequenceNumber"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Options        []string  `json:"options,omitempty"`
	Deadline       time.Time `json:"deadline,omitempty"`
}

// Offer is a buyer's priced request to direct a vote on a proposal.
// OfferedAmount is a decimal string; use Amount to compare offers.
type Offer struct {
	Proposal       Proposal `json:"proposal"`
	DesiredOutcome string   `json:"desiredOutcome"`
	OfferedAmount  string   `json:"offeredAmount"`
	Quantity       int64    `json:"quantity,omitempty"`
}

// Amount parses the offered amount as an arbitrary-precision decimal.
// Amounts are never compared as binary floats.
func (o Offer) Amount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(o.OfferedAmount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing offer amount %q: %v", o.OfferedAmount, err)
	}
	return d, nil
}

// OfferResponse is the evaluator's verdict on an offer.
type OfferResponse struct {
	Accepted        bool   `json:"accepted"`
	Reason          string `json:"reason,omitempty"`
	CounterOffer    string `json:"counterOffer,omitempty"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

// Terminal reports whether the response ends the negotiation: an acceptance,
// or a rejection that carries no counter-offer.
func (r OfferResponse) Terminal() bool {
	return r.Accepted || r.CounterOffer == ""
}

// CompetingOffer is a rival bid received during an auction.
type CompetingOffer struct {
	CounterpartyID CounterpartyID `json:"counterpartyId"`
	Offer          Offer          `json:"offer"`
	ReceivedAt     time.Time      `json:"receivedAt"`
}

// OutcomeKind is the terminal-or-continuing classification of a negotiation
// round.
type OutcomeKind int

const (
	// OutcomeUnspecified indicates an invalid outcome.
	OutcomeUnspecified OutcomeKind = iota
	// OutcomeAccepted indicates the offer was accepted; the negotiation is over.
	OutcomeAccepted
	// OutcomeCountered indicates a counter-offer was issued; the negotiation continues.
	OutcomeCountered
	// OutcomeRejected indicates the offer was rejected; the negotiation is over.
	OutcomeRejected
)

// String returns a string-encoded outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUnspecified:
		return "unspecified"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeCountered:
		return "countered"
	case OutcomeRejected:
		return "rejected"
	default:
		return "invalid"
	}
}

// Outcome is the result of submitting one offer to the registry.
type Outcome struct {
	Kind OutcomeKind
	// CounterpartyID is the counterparty the verdict applies to. After an
	// auction this may differ from the submitter if a rival offer won.
	CounterpartyID CounterpartyID
	// Amount is the agreed amount on acceptance, or the counter amount on
	// a counter.
	Amount string
	Reason string
	Round  int
}
