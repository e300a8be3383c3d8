package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobExecutionTime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "job_execution_time",
		Help: "Duration of the last execution of a task in seconds.",
	}, []string{"task_name", "error"})

	jobRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "job_retry",
		Help: "Number of task retries.",
	}, []string{"task_name"})
)
