package negotiator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/govmarket/market-core/cmd/sellerd/metrics"
	"github.com/govmarket/market-core/negotiation"
	"github.com/govmarket/market-core/transport"
	"go.opentelemetry.io/otel/metric"
)

// Dispatcher sends outcome notifications to counterparties. A failed send is
// logged and surfaced to the caller, but callers never roll back negotiation
// state because of it; a countered negotiation stays alive so a transport
// retry can resend.
type Dispatcher struct {
	transport transport.Transport

	metricSendFailures metric.Int64Counter
}

// NewDispatcher returns a dispatcher sending over tr.
func NewDispatcher(tr transport.Transport) *Dispatcher {
	return &Dispatcher{
		transport:          tr,
		metricSendFailures: metrics.Meter.NewInt64Counter(metrics.Prefix + ".send_failures_total"),
	}
}

func (d *Dispatcher) send(ctx context.Context, to negotiation.CounterpartyID, msg interface{}) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message for %s: %v", to, err)
	}
	if err := d.transport.Send(ctx, to, payload); err != nil {
		d.metricSendFailures.Add(ctx, 1)
		log.Warnf("sending to %s failed (state kept): %v", to, err)
		return err
	}
	return nil
}

// SendOfferResponse delivers the evaluator's verdict to a buyer.
func (d *Dispatcher) SendOfferResponse(
	ctx context.Context,
	to negotiation.CounterpartyID,
	taskID negotiation.TaskID,
	resp negotiation.OfferResponse,
) error {
	return d.send(ctx, to, &negotiation.VoteOfferResponseMessage{
		Type:            negotiation.MsgTypeVoteOfferResponse,
		TaskID:          taskID,
		Accepted:        resp.Accepted,
		Reason:          resp.Reason,
		CounterOffer:    resp.CounterOffer,
		RejectionReason: resp.RejectionReason,
	})
}

// SendCompetingOfferRequest fans an auction request out to one counterparty.
func (d *Dispatcher) SendCompetingOfferRequest(
	ctx context.Context,
	to negotiation.CounterpartyID,
	req *negotiation.CompetingOfferRequestMessage,
) error {
	return d.send(ctx, to, req)
}

// SendOfferBeaten tells the original offerer its offer lost the auction.
func (d *Dispatcher) SendOfferBeaten(
	ctx context.Context,
	to negotiation.CounterpartyID,
	taskID negotiation.TaskID,
	winningAmount string,
) error {
	return d.send(ctx, to, &negotiation.OfferBeatenMessage{
		Type:         negotiation.MsgTypeOfferBeaten,
		TaskID:       taskID,
		Reason:       "a competing offer exceeded yours",
		WinningOffer: winningAmount,
	})
}

// SendOfferNotSelected tells a losing competitor its bid was not selected.
func (d *Dispatcher) SendOfferNotSelected(
	ctx context.Context,
	to negotiation.CounterpartyID,
	taskID negotiation.TaskID,
) error {
	return d.send(ctx, to, &negotiation.OfferNotSelectedMessage{
		Type:   negotiation.MsgTypeOfferNotSelected,
		TaskID: taskID,
		Reason: "your competing offer was not selected",
	})
}

// SendNegotiationResult delivers the end-of-negotiation notice: success to the
// winner, failed to everyone else who ever participated.
func (d *Dispatcher) SendNegotiationResult(
	ctx context.Context,
	to negotiation.CounterpartyID,
	taskID negotiation.TaskID,
	success bool,
	message string,
) error {
	typ := negotiation.MsgTypeNegotiationFailed
	if success {
		typ = negotiation.MsgTypeNegotiationSuccess
	}
	return d.send(ctx, to, &negotiation.NegotiationResultMessage{
		Type:    typ,
		TaskID:  taskID,
		Message: message,
	})
}
