package negotiation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Message type discriminators carried in the wire "type" field.
const (
	MsgTypeVoteOffer              = "vote-offer"
	MsgTypeVoteOfferResponse      = "vote-offer-response"
	MsgTypeCompetingOfferRequest  = "competing-offer-request"
	MsgTypeCompetingOfferResponse = "competing-offer-response"
	MsgTypeOfferBeaten            = "offer-beaten"
	MsgTypeOfferNotSelected       = "offer-not-selected"
	MsgTypeNegotiationSuccess     = "negotiation-success"
	MsgTypeNegotiationFailed      = "negotiation-failed"
)

// ErrMalformedMessage indicates a payload that failed the fail-closed decode:
// unknown type, invalid JSON, or missing/invalid required fields. Callers drop
// the message without touching negotiation state.
var ErrMalformedMessage = errors.New("malformed message")

// Message is a decoded wire payload, one of the concrete *Message types
// in this package.
type Message interface {
	msgType() string
}

// VoteOfferMessage opens a negotiation or carries a buyer's next-round offer.
type VoteOfferMessage struct {
	Type           string         `json:"type"`
	TaskID         TaskID         `json:"taskId"`
	From           CounterpartyID `json:"from"`
	Proposal       Proposal       `json:"proposal"`
	DesiredOutcome string         `json:"desiredOutcome"`
	OfferedAmount  string         `json:"offeredAmount"`
	Quantity       int64          `json:"quantity,omitempty"`
}

func (m *VoteOfferMessage) msgType() string { return MsgTypeVoteOffer }

// Offer returns the embedded offer.
func (m *VoteOfferMessage) Offer() Offer {
	return Offer{
		Proposal:       m.Proposal,
		DesiredOutcome: m.DesiredOutcome,
		OfferedAmount:  m.OfferedAmount,
		Quantity:       m.Quantity,
	}
}

// VoteOfferResponseMessage carries the seller's verdict back to a buyer.
type VoteOfferResponseMessage struct {
	Type            string `json:"type"`
	TaskID          TaskID `json:"taskId"`
	Accepted        bool   `json:"accepted"`
	Reason          string `json:"reason,omitempty"`
	CounterOffer    string `json:"counterOffer,omitempty"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

func (m *VoteOfferResponseMessage) msgType() string { return MsgTypeVoteOfferResponse }

// CurrentOffer is the offer under auction, as shown to rival buyers.
type CurrentOffer struct {
	CounterpartyID CounterpartyID `json:"counterpartyId"`
	DesiredOutcome string         `json:"desiredOutcome"`
	OfferedAmount  string         `json:"offeredAmount"`
}

// CompetingOfferRequestMessage asks a buyer whether it wants to beat the
// current offer before the deadline.
type CompetingOfferRequestMessage struct {
	Type         string       `json:"type"`
	AuctionID    TaskID       `json:"auctionId"`
	Proposal     Proposal     `json:"proposal"`
	CurrentOffer CurrentOffer `json:"currentOffer"`
	Deadline     time.Time    `json:"deadline"`
}

func (m *CompetingOfferRequestMessage) msgType() string { return MsgTypeCompetingOfferRequest }

// CompetingOfferResponseMessage is a buyer's answer to a competing-offer
// request. NewOffer is required when WantsToBeat is true.
type CompetingOfferResponseMessage struct {
	Type        string         `json:"type"`
	AuctionID   TaskID         `json:"auctionId"`
	From        CounterpartyID `json:"from"`
	WantsToBeat bool           `json:"wantsToBeat"`
	NewOffer    *Offer         `json:"newOffer,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

func (m *CompetingOfferResponseMessage) msgType() string { return MsgTypeCompetingOfferResponse }

// OfferBeatenMessage tells the original offerer a rival offer won the auction.
type OfferBeatenMessage struct {
	Type         string `json:"type"`
	TaskID       TaskID `json:"taskId"`
	Reason       string `json:"reason"`
	WinningOffer string `json:"winningOffer"`
}

func (m *OfferBeatenMessage) msgType() string { return MsgTypeOfferBeaten }

// OfferNotSelectedMessage tells a losing competitor its bid was not selected.
type OfferNotSelectedMessage struct {
	Type   string `json:"type"`
	TaskID TaskID `json:"taskId"`
	Reason string `json:"reason"`
}

func (m *OfferNotSelectedMessage) msgType() string { return MsgTypeOfferNotSelected }

// NegotiationResultMessage is the end-of-negotiation notice, sent as
// negotiation-success to the winner and negotiation-failed to every other
// participant.
type NegotiationResultMessage struct {
	Type    string `json:"type"`
	TaskID  TaskID `json:"taskId"`
	Message string `json:"message"`
}

func (m *NegotiationResultMessage) msgType() string { return m.Type }

// DecodeMessage decodes a wire payload into its concrete message type. The
// decode fails closed: anything with an unknown type, bad JSON, or
// missing/invalid required fields returns an error wrapping
// ErrMalformedMessage and must be dropped by the caller.
func DecodeMessage(data []byte) (Message, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch head.Type {
	case MsgTypeVoteOffer:
		m := &VoteOfferMessage{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		// TaskID may be empty on a first offer; the receiver mints one.
		if m.From == "" {
			return nil, fmt.Errorf("%w: vote-offer missing sender id", ErrMalformedMessage)
		}
		if err := validAmount(m.OfferedAmount); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeVoteOfferResponse:
		m := &VoteOfferResponseMessage{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return m, nil
	case MsgTypeCompetingOfferRequest:
		m := &CompetingOfferRequestMessage{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if m.AuctionID == "" {
			return nil, fmt.Errorf("%w: competing-offer-request missing auction id", ErrMalformedMessage)
		}
		return m, nil
	case MsgTypeCompetingOfferResponse:
		m := &CompetingOfferResponseMessage{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if m.AuctionID == "" || m.From == "" {
			return nil, fmt.Errorf("%w: competing-offer-response missing auction or sender id", ErrMalformedMessage)
		}
		if m.WantsToBeat {
			if m.NewOffer == nil {
				return nil, fmt.Errorf("%w: competing-offer-response wants to beat without a new offer", ErrMalformedMessage)
			}
			if err := validAmount(m.NewOffer.OfferedAmount); err != nil {
				return nil, err
			}
		}
		return m, nil
	case MsgTypeOfferBeaten:
		m := &OfferBeatenMessage{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return m, nil
	case MsgTypeOfferNotSelected:
		m := &OfferNotSelectedMessage{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return m, nil
	case MsgTypeNegotiationSuccess, MsgTypeNegotiationFailed:
		m := &NegotiationResultMessage{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, head.Type)
	}
}

func validAmount(amount string) error {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("%w: bad amount %q", ErrMalformedMessage, amount)
	}
	if d.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive amount %q", ErrMalformedMessage, amount)
	}
	return nil
}
