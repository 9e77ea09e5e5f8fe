package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var trackedStates = []string{"AVAILABLE", "IN_USE", "INACTIVE"}

func registerDBMetrics(db *sql.DB, logger zerolog.Logger) {
	for _, state := range trackedStates {
		state := state
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        metricPrefix + "by_state",
				Help:        "Devices currently in each state",
				ConstLabels: prometheus.Labels{"state": state},
			},
			func() float64 {
				return queryCount(db, logger, "SELECT COUNT(*) FROM devices WHERE state = $1", state)
			},
		))
	}

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "brands",
			Help: "Known brands",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM brands")
		},
	))
}

func queryCount(db *sql.DB, logger zerolog.Logger, query string, args ...any) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query, args...).Scan(&count); err != nil {
		logger.Warn().Err(err).Msg("metrics query failed")
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
