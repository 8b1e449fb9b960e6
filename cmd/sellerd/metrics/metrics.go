package metrics

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
)

// Prefix is the metric name prefix for the sellerd daemon.
const Prefix = "sellerd"

// Meter is the daemon-wide meter.
var Meter = metric.Must(global.Meter(Prefix))
