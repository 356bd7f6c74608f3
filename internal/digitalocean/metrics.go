package digitalocean

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "console",
		Subsystem: "digitalocean",
		Name:      "attempts_total",
		Help:      "HTTP attempts against the DigitalOcean API by method and outcome code.",
	}, []string{"method", "outcome"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "console",
		Subsystem: "digitalocean",
		Name:      "retries_total",
		Help:      "Backoff retries scheduled by the DigitalOcean client.",
	}, []string{"method"})
)
