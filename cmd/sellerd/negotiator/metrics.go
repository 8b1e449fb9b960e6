package negotiator

import (
	"github.com/govmarket/market-core/cmd/sellerd/metrics"
)

func (n *Negotiator) initMetrics() {
	n.metricOffers = metrics.Meter.NewInt64Counter(metrics.Prefix + ".offers_total")
	n.metricAuctions = metrics.Meter.NewInt64Counter(metrics.Prefix + ".auctions_total")
	n.metricCompetingOffers = metrics.Meter.NewInt64Counter(metrics.Prefix + ".competing_offers_total")
	n.metricRaceDiscards = metrics.Meter.NewInt64Counter(metrics.Prefix + ".race_discards_total")
	n.metricAccepted = metrics.Meter.NewInt64Counter(metrics.Prefix + ".accepted_total")
	n.metricCountered = metrics.Meter.NewInt64Counter(metrics.Prefix + ".countered_total")
	n.metricRejected = metrics.Meter.NewInt64Counter(metrics.Prefix + ".rejected_total")
}
