package transfer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chunksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealwatch_transfer_chunks_total",
		Help: "Chunks accepted by the transfer server",
	})
	decodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealwatch_transfer_decode_errors_total",
		Help: "Chunk payloads that failed base64 decoding",
	})
	documentsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealwatch_transfer_documents_saved_total",
		Help: "Completed documents written to disk",
	})
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealwatch_transfer_sessions_active",
		Help: "Transfer sessions currently held in memory",
	})
	sessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealwatch_transfer_sessions_evicted_total",
		Help: "Sessions dropped by the idle janitor",
	})
)
