package negotiator

import (
	"context"
	"sync"
	"time"

	"github.com/govmarket/market-core/negotiation"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// auctionReply is one invitee's answer during an auction, as delivered to the
// collection loop.
type auctionReply struct {
	from        negotiation.CounterpartyID
	wantsToBeat bool
	offer       negotiation.Offer
	receivedAt  time.Time
}

// auctionResult is what the registry folds back into negotiation state.
type auctionResult struct {
	winner negotiation.CompetingOffer
	// bidders are the counterparties that submitted a competing offer; the
	// registry adds them to the negotiation's participant set.
	bidders []negotiation.CounterpartyID
}

// runAuction runs the "does anyone want to beat this offer" sub-protocol among
// invitees. It fans out a competing-offer request, waits until either every
// successfully-contacted invitee has answered or the deadline elapses, ranks
// the original offer against all valid competing offers, sends beaten /
// not-selected notices, and returns the winner.
//
// With no invitees the auction is a documented no-op: the original offer wins
// immediately, with no deadline wait.
func (n *Negotiator) runAuction(
	ctx context.Context,
	taskID negotiation.TaskID,
	originator negotiation.CounterpartyID,
	offer negotiation.Offer,
	invitees []negotiation.CounterpartyID,
) auctionResult {
	startedAt := time.Now()
	original := negotiation.CompetingOffer{
		CounterpartyID: originator,
		Offer:          offer,
		ReceivedAt:     startedAt,
	}
	if len(invitees) == 0 {
		log.Debugf("task %s: no other counterparties; skipping auction", taskID)
		return auctionResult{winner: original}
	}

	resCh := make(chan auctionReply, len(invitees)*2)
	n.alk.Lock()
	n.auctions[taskID] = resCh
	n.alk.Unlock()
	// Deregistering closes the auction: replies arriving afterwards find no
	// channel and are discarded by construction.
	defer n.closeAuction(ctx, taskID, resCh)

	n.metricAuctions.Add(ctx, 1)
	deadline := startedAt.Add(n.conf.AuctionDuration)
	log.Infof("task %s: auction started among %d counterparties, deadline %s",
		taskID, len(invitees), deadline.Format(time.RFC3339))

	req := &negotiation.CompetingOfferRequestMessage{
		Type:      negotiation.MsgTypeCompetingOfferRequest,
		AuctionID: taskID,
		Proposal:  offer.Proposal,
		CurrentOffer: negotiation.CurrentOffer{
			CounterpartyID: originator,
			DesiredOutcome: offer.DesiredOutcome,
			OfferedAmount:  offer.OfferedAmount,
		},
		Deadline: deadline,
	}

	// Fan out. A failed send excludes that invitee from the wait; it is not
	// fatal to the auction.
	var (
		elk      sync.Mutex
		expected = make(map[negotiation.CounterpartyID]struct{}, len(invitees))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range invitees {
		id := id
		g.Go(func() error {
			if err := n.dispatcher.SendCompetingOfferRequest(gctx, id, req); err != nil {
				log.Warnf("task %s: excluding %s from auction: %v", taskID, id, err)
				return nil
			}
			elk.Lock()
			expected[id] = struct{}{}
			elk.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(expected) == 0 {
		log.Warnf("task %s: auction reached no counterparties", taskID)
		return auctionResult{winner: original}
	}

	// Collect until all expected invitees answered or the deadline elapses,
	// whichever is first.
	replies := make(map[negotiation.CounterpartyID]auctionReply, len(expected))
	actx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
collect:
	for len(replies) < len(expected) {
		select {
		case <-actx.Done():
			break collect
		case reply := <-resCh:
			if _, ok := expected[reply.from]; !ok {
				n.metricRaceDiscards.Add(ctx, 1)
				log.Debugf("task %s: discarding reply from uninvited %s", taskID, reply.from)
				continue
			}
			if _, dup := replies[reply.from]; dup {
				n.metricRaceDiscards.Add(ctx, 1)
				log.Debugf("task %s: discarding duplicate reply from %s", taskID, reply.from)
				continue
			}
			replies[reply.from] = reply
		}
	}

	// Rank the original offer against all competing offers.
	bids := []bid{{
		counterparty: originator,
		offer:        offer,
		receivedAt:   startedAt,
		amount:       mustAmount(offer),
		isOriginal:   true,
	}}
	for _, reply := range replies {
		if !reply.wantsToBeat {
			continue
		}
		amount, err := reply.offer.Amount()
		if err != nil {
			// Validated at the wire boundary; treat a slip-through as a decline.
			log.Warnf("task %s: dropping competing offer from %s: %v", taskID, reply.from, err)
			continue
		}
		n.metricCompetingOffers.Add(ctx, 1)
		bids = append(bids, bid{
			counterparty: reply.from,
			offer:        reply.offer,
			receivedAt:   reply.receivedAt,
			amount:       amount,
		})
	}
	ranked := rankBids(bids, defaultRanking())
	top := ranked[0]

	winner := negotiation.CompetingOffer{
		CounterpartyID: top.counterparty,
		Offer:          top.offer,
		ReceivedAt:     top.receivedAt,
	}
	result := auctionResult{winner: winner}
	for _, b := range ranked {
		if !b.isOriginal {
			result.bidders = append(result.bidders, b.counterparty)
		}
	}

	// Notify losers. Each bidder gets exactly one notice: the original gets
	// offer-beaten if it lost, every losing competitor gets not-selected.
	for _, b := range ranked[1:] {
		if b.isOriginal {
			_ = n.dispatcher.SendOfferBeaten(ctx, b.counterparty, taskID, top.offer.OfferedAmount)
			continue
		}
		_ = n.dispatcher.SendOfferNotSelected(ctx, b.counterparty, taskID)
	}

	log.Infof("task %s: auction closed with %d competing offers; winner %s at %s",
		taskID, len(bids)-1, winner.CounterpartyID, top.offer.OfferedAmount)
	return result
}

// closeAuction deregisters the reply channel and counts replies that were
// buffered but never collected before the deadline. Once the channel is gone
// HandleCompetingOffer can no longer write to it, so the drain is complete.
func (n *Negotiator) closeAuction(ctx context.Context, taskID negotiation.TaskID, resCh chan auctionReply) {
	n.alk.Lock()
	delete(n.auctions, taskID)
	n.alk.Unlock()

	for {
		select {
		case reply := <-resCh:
			n.metricRaceDiscards.Add(ctx, 1)
			log.Debugf("task %s: discarding uncollected reply from %s", taskID, reply.from)
		default:
			return
		}
	}
}

// HandleCompetingOffer routes a buyer's competing-offer response to its
// outstanding auction. Responses for an unknown or already-closed auction are
// discarded and counted.
func (n *Negotiator) HandleCompetingOffer(msg *negotiation.CompetingOfferResponseMessage) {
	n.alk.Lock()
	ch, ok := n.auctions[msg.AuctionID]
	n.alk.Unlock()
	if !ok {
		n.metricRaceDiscards.Add(context.Background(), 1)
		log.Debugf("discarding competing offer from %s: no open auction %s", msg.From, msg.AuctionID)
		return
	}

	reply := auctionReply{
		from:        msg.From,
		wantsToBeat: msg.WantsToBeat,
		receivedAt:  time.Now(),
	}
	if msg.WantsToBeat && msg.NewOffer != nil {
		reply.offer = *msg.NewOffer
	} else {
		reply.wantsToBeat = false
	}

	select {
	case ch <- reply:
	default:
		n.metricRaceDiscards.Add(context.Background(), 1)
		log.Debugf("discarding competing offer from %s: auction %s reply buffer full", msg.From, msg.AuctionID)
	}
}

// mustAmount parses an amount already validated at the wire boundary.
func mustAmount(o negotiation.Offer) decimal.Decimal {
	d, err := o.Amount()
	if err != nil {
		return decimal.Zero
	}
	return d
}
