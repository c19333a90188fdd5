package proofofwork

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var solutionsFound = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ironshield_solver_solutions_found",
	Help: "Solutions found by the in-process solvers",
}, []string{"solver"})
