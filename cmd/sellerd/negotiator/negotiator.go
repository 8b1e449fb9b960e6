package negotiator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/govmarket/market-core/negotiation"
	"github.com/govmarket/market-core/policyeval"
	"github.com/govmarket/market-core/sempool"
	"github.com/govmarket/market-core/transport"
	golog "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel/metric"
)

var log = golog.Logger("negotiator")

// DefaultAuctionDuration bounds the competing-offer wait on a new negotiation.
var DefaultAuctionDuration = time.Second * 10

// Config defines params for Negotiator configuration.
type Config struct {
	// Policy is the seller's policy text handed to the evaluator.
	Policy string
	// AuctionDuration bounds each competitive auction.
	AuctionDuration time.Duration
}

// CommitFunc fires after an offer is accepted, with the winning counterparty
// and the agreed offer. Vote submission hangs off this hook.
type CommitFunc func(ctx context.Context, taskID negotiation.TaskID,
	winner negotiation.CounterpartyID, offer negotiation.Offer) error

// state is the live negotiation record for one task id. It exists from the
// first offer until a terminal outcome; the round counter only grows.
type state struct {
	offer        negotiation.Offer
	round        int
	active       negotiation.CounterpartyID
	participants map[negotiation.CounterpartyID]struct{}
	lastResponse *negotiation.OfferResponse
}

// Negotiator owns all per-negotiation state for one seller process and drives
// each offer through the auction, evaluation, and notification steps. Work on
// one task id is serialized; distinct task ids proceed concurrently.
type Negotiator struct {
	conf       Config
	evaluator  policyeval.Evaluator
	directory  *transport.Directory
	dispatcher *Dispatcher
	commit     CommitFunc

	locks *sempool.SemaphorePool

	lk           sync.Mutex
	negotiations map[negotiation.TaskID]*state

	alk      sync.Mutex
	auctions map[negotiation.TaskID]chan auctionReply

	metricOffers          metric.Int64Counter
	metricAuctions        metric.Int64Counter
	metricCompetingOffers metric.Int64Counter
	metricRaceDiscards    metric.Int64Counter
	metricAccepted        metric.Int64Counter
	metricCountered       metric.Int64Counter
	metricRejected        metric.Int64Counter
}

// New returns a new Negotiator.
func New(
	evaluator policyeval.Evaluator,
	directory *transport.Directory,
	dispatcher *Dispatcher,
	commit CommitFunc,
	conf Config,
) *Negotiator {
	if conf.AuctionDuration == 0 {
		conf.AuctionDuration = DefaultAuctionDuration
	}
	n := &Negotiator{
		conf:         conf,
		evaluator:    evaluator,
		directory:    directory,
		dispatcher:   dispatcher,
		commit:       commit,
		locks:        sempool.NewSemaphorePool(1),
		negotiations: make(map[negotiation.TaskID]*state),
		auctions:     make(map[negotiation.TaskID]chan auctionReply),
	}
	n.initMetrics()
	return n
}

// SubmitOffer applies one inbound offer to the negotiation for taskID and
// returns the outcome. A first offer creates the negotiation at round 1 and,
// when other counterparties are known, runs a competitive auction before
// evaluation; a later offer is the buyer's counter and advances the round.
// Accepted and rejected outcomes destroy the state; a counter keeps it alive
// for the buyer's next message.
func (n *Negotiator) SubmitOffer(
	ctx context.Context,
	taskID negotiation.TaskID,
	from negotiation.CounterpartyID,
	offer negotiation.Offer,
) (negotiation.Outcome, error) {
	if _, err := offer.Amount(); err != nil {
		return negotiation.Outcome{}, err
	}

	sem := n.locks.Get(string(taskID))
	defer n.locks.Put(string(taskID))
	sem.Acquire()
	defer sem.Release()

	n.metricOffers.Add(ctx, 1)

	n.lk.Lock()
	st, ok := n.negotiations[taskID]
	isNew := !ok
	if isNew {
		st = &state{
			offer:        offer,
			round:        1,
			active:       from,
			participants: map[negotiation.CounterpartyID]struct{}{from: {}},
		}
		n.negotiations[taskID] = st
	} else {
		st.round++
		st.offer = offer
		st.active = from
		st.participants[from] = struct{}{}
	}
	round := st.round
	n.lk.Unlock()

	log.Infof("task %s: offer received from %s for %s (round %d)",
		taskID, from, offer.OfferedAmount, round)

	if isNew {
		invitees := n.directory.Snapshot(from)
		if len(invitees) > 0 {
			res := n.runAuction(ctx, taskID, from, offer, invitees)
			n.lk.Lock()
			for _, id := range res.bidders {
				st.participants[id] = struct{}{}
			}
			if res.winner.CounterpartyID != from {
				log.Infof("task %s: auction winner %s replaces original offerer %s",
					taskID, res.winner.CounterpartyID, from)
				st.offer = res.winner.Offer
				st.active = res.winner.CounterpartyID
			}
			n.lk.Unlock()
		}
	}

	n.lk.Lock()
	evalOffer, active := st.offer, st.active
	n.lk.Unlock()

	resp, err := n.evaluator.Evaluate(ctx, evalOffer, n.conf.Policy)
	if err != nil {
		log.Warnf("task %s: evaluator unavailable: %v", taskID, err)
		resp = negotiation.OfferResponse{
			Accepted:        false,
			RejectionReason: "evaluation unavailable",
		}
	}

	var outcome negotiation.Outcome
	switch {
	case resp.Accepted:
		outcome = negotiation.Outcome{
			Kind:           negotiation.OutcomeAccepted,
			CounterpartyID: active,
			Amount:         evalOffer.OfferedAmount,
			Reason:         resp.Reason,
			Round:          round,
		}
		n.finishAccepted(ctx, taskID, active, evalOffer, resp)
	case resp.CounterOffer != "":
		n.lk.Lock()
		st.lastResponse = &resp
		n.lk.Unlock()
		outcome = negotiation.Outcome{
			Kind:           negotiation.OutcomeCountered,
			CounterpartyID: active,
			Amount:         resp.CounterOffer,
			Reason:         resp.Reason,
			Round:          round,
		}
		n.metricCountered.Add(ctx, 1)
		log.Infof("task %s: countered %s at %s (round %d)", taskID, active, resp.CounterOffer, round)
		_ = n.dispatcher.SendOfferResponse(ctx, active, taskID, resp)
	default:
		n.deleteState(taskID)
		outcome = negotiation.Outcome{
			Kind:           negotiation.OutcomeRejected,
			CounterpartyID: active,
			Reason:         resp.RejectionReason,
			Round:          round,
		}
		n.metricRejected.Add(ctx, 1)
		log.Infof("task %s: rejected %s: %s", taskID, active, resp.RejectionReason)
		_ = n.dispatcher.SendOfferResponse(ctx, active, taskID, resp)
	}
	return outcome, nil
}

// finishAccepted destroys the negotiation state, notifies the winner and every
// other participant, and fires the commit hook. Send failures do not undo the
// transition.
func (n *Negotiator) finishAccepted(
	ctx context.Context,
	taskID negotiation.TaskID,
	winner negotiation.CounterpartyID,
	offer negotiation.Offer,
	resp negotiation.OfferResponse,
) {
	n.lk.Lock()
	st := n.negotiations[taskID]
	var losers []negotiation.CounterpartyID
	if st != nil {
		for id := range st.participants {
			if id != winner {
				losers = append(losers, id)
			}
		}
	}
	delete(n.negotiations, taskID)
	n.lk.Unlock()

	n.metricAccepted.Add(ctx, 1)
	log.Infof("task %s: accepted offer from %s at %s", taskID, winner, offer.OfferedAmount)

	_ = n.dispatcher.SendOfferResponse(ctx, winner, taskID, resp)
	_ = n.dispatcher.SendNegotiationResult(ctx, winner, taskID, true,
		fmt.Sprintf("agreement reached at %s", offer.OfferedAmount))
	for _, id := range losers {
		_ = n.dispatcher.SendNegotiationResult(ctx, id, taskID, false,
			"agreement reached elsewhere")
	}

	if n.commit != nil {
		if err := n.commit(ctx, taskID, winner, offer); err != nil {
			log.Errorf("task %s: commit hook: %v", taskID, err)
		}
	}
}

// Close drains in-flight negotiation work. Further submissions block.
func (n *Negotiator) Close() error {
	n.locks.Stop()
	return nil
}

func (n *Negotiator) deleteState(taskID negotiation.TaskID) {
	n.lk.Lock()
	delete(n.negotiations, taskID)
	n.lk.Unlock()
}

// ActiveNegotiations returns the number of live negotiations.
func (n *Negotiator) ActiveNegotiations() int {
	n.lk.Lock()
	defer n.lk.Unlock()
	return len(n.negotiations)
}

// Round returns the current round for a live negotiation, or 0 when none
// exists for taskID.
func (n *Negotiator) Round(taskID negotiation.TaskID) int {
	n.lk.Lock()
	defer n.lk.Unlock()
	if st, ok := n.negotiations[taskID]; ok {
		return st.round
	}
	return 0
}
