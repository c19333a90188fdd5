package challenge

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TimeTaken = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ironshield_time_taken",
		Help:    "Time between challenge issuance and a valid solution (milliseconds)",
		Buckets: prometheus.ExponentialBucketsRange(1, math.Pow(2, 20), 20),
	}, []string{"method"})

	validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ironshield_challenge_validations",
		Help: "Challenge signature and freshness checks by outcome",
	}, []string{"result"})
)
