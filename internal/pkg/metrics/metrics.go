package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mfr"

var (
	// UpgradeRequests counts RequestUpgrade calls by synchronous result
	// (accepted, invalid_param, resource_exhausted).
	UpgradeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upgrade_requests_total",
			Help:      "Firmware upgrade requests by dispatch result.",
		},
		[]string{"result"},
	)

	// UpgradeResults counts finished upgrade workers by terminal status.
	UpgradeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upgrade_results_total",
			Help:      "Finished firmware upgrades by terminal progress and error kind.",
		},
		[]string{"progress", "error"},
	)

	// UpgradeDuration observes the time from worker start to terminal status.
	UpgradeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upgrade_duration_seconds",
			Help:      "Wall time of firmware upgrade workers.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	// UpgradesInFlight is the number of running upgrade workers.
	UpgradesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upgrades_in_flight",
			Help:      "Number of firmware upgrade workers currently running.",
		},
	)

	// PreparePartitionFailures counts partition preparation commands that
	// did not exit cleanly. The upgrade proceeds regardless.
	PreparePartitionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prepare_partition_failures_total",
			Help:      "Partition preparation commands that failed before an upgrade.",
		},
	)
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		UpgradeRequests,
		UpgradeResults,
		UpgradeDuration,
		UpgradesInFlight,
		PreparePartitionFailures,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
