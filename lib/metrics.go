package lib

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	challengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ironshield_challenges_issued",
		Help: "The total number of challenges issued",
	})

	challengesValidated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ironshield_challenges_validated",
		Help: "The total number of challenges validated",
	}, []string{"method"})

	failedValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ironshield_failed_validations",
		Help: "The total number of failed validations",
	}, []string{"method"})

	tokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ironshield_tokens_issued",
		Help: "The total number of bypass tokens issued",
	})

	bypassHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ironshield_bypass_hits",
		Help: "Requests carrying a bypass token, by outcome",
	}, []string{"result"})

	requestsProxied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ironshield_proxied_requests_total",
		Help: "Number of requests proxied through IronShield to upstream targets",
	}, []string{"host"})
)
