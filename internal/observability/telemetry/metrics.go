package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ==================== Station Metrics ====================

	// ActiveSessions tracks the number of open charging sessions
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "echarge_active_sessions",
		Help: "Number of open charging sessions",
	})

	// WaitingAreaDepth tracks admitted requests not yet dispatched, by mode
	WaitingAreaDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "echarge_waiting_area_depth",
		Help: "Requests waiting for dispatch by charge mode",
	}, []string{"mode"})

	// PilesTotal tracks piles by status
	PilesTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "echarge_piles_total",
		Help: "Piles by status",
	}, []string{"status"})

	// DispatchesTotal counts dispatch assignments by mode
	DispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echarge_dispatches_total",
		Help: "Requests moved from the waiting area to a pile queue",
	}, []string{"mode"})

	// EnergyDeliveredTotal tracks total energy delivered in kWh
	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echarge_energy_delivered_kwh_total",
		Help: "Total energy delivered in kWh",
	})

	// RevenueTotal tracks total billed revenue
	RevenueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echarge_revenue_total",
		Help: "Total billed revenue",
	})

	// BillsTotal counts settled bills by status
	BillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echarge_bills_total",
		Help: "Settled bills by status",
	}, []string{"status"})

	// FaultEventsTotal counts pile fault and recovery events
	FaultEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echarge_fault_events_total",
		Help: "Pile fault and recovery events",
	}, []string{"event"})

	// SessionDuration tracks the duration of charging sessions
	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "echarge_session_duration_seconds",
		Help:    "Duration of charging sessions in seconds",
		Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400},
	})

	// EventsPublishedTotal counts station events handed to the queue
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echarge_events_published_total",
		Help: "Station events published by subject and transport",
	}, []string{"subject", "transport"})

	// ==================== Pile Link Metrics ====================

	// PileLinkMessagesTotal counts pile-link protocol messages
	PileLinkMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echarge_pile_link_messages_total",
		Help: "Pile-link protocol messages by type and direction",
	}, []string{"type", "direction"})

	// PileLinkConnectionsActive tracks connected pile simulators
	PileLinkConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "echarge_pile_link_connections_active",
		Help: "Number of connected piles on the pile link",
	})

	// PileCommandRetriesTotal counts pile command delivery retries
	PileCommandRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echarge_pile_command_retries_total",
		Help: "Pile command delivery retries",
	})
)

// RecordSessionStarted increments metrics when a session opens
func RecordSessionStarted() {
	ActiveSessions.Inc()
}

// RecordSessionEnded updates metrics when a session terminates
func RecordSessionEnded(energyKWh float64, durationSeconds float64) {
	ActiveSessions.Dec()
	EnergyDeliveredTotal.Add(energyKWh)
	SessionDuration.Observe(durationSeconds)
}

// RecordBillSettled updates revenue metrics for a settled bill
func RecordBillSettled(energyKWh, totalCost float64) {
	RevenueTotal.Add(totalCost)
}

// RecordDispatch counts one waiting-area to pile assignment
func RecordDispatch(mode string) {
	DispatchesTotal.WithLabelValues(mode).Inc()
}

// RecordFaultEvent counts a fault or recovery event
func RecordFaultEvent(event string) {
	FaultEventsTotal.WithLabelValues(event).Inc()
}

// RecordEventPublished counts one station event on its way out
func RecordEventPublished(subject, transport string) {
	EventsPublishedTotal.WithLabelValues(subject, transport).Inc()
}

// RecordPileLinkMessage counts a pile-link protocol message
func RecordPileLinkMessage(msgType string, inbound bool) {
	direction := "outbound"
	if inbound {
		direction = "inbound"
	}
	PileLinkMessagesTotal.WithLabelValues(msgType, direction).Inc()
}
