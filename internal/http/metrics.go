package http

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoattend_sessions_created_total",
		Help: "Attendance sessions opened.",
	})
	checkIns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoattend_checkins_total",
		Help: "Check-in attempts by outcome.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(sessionsCreated, checkIns)
}
