// Package metrics centralizes the simulator's process counters using
// github.com/rcrowley/go-metrics, the counter library the lanxingjue-smps
// example wires up for this exact concern (connection/message/error
// rates). Exposed read-only through the observability snapshot.
package metrics

import gometrics "github.com/rcrowley/go-metrics"

// Registry bundles the named counters the simulator tracks.
type Registry struct {
	r gometrics.Registry

	SubmittedTotal    gometrics.Counter
	EvictedTotal      gometrics.Counter
	DeliveredTotal    gometrics.Counter
	ReceiptsSentTotal gometrics.Counter
	DroppedTotal      gometrics.Counter
	MODroppedTotal    gometrics.Counter
	MOSentTotal       gometrics.Counter
	ThrottledTotal    gometrics.Counter

	Throughput1s gometrics.Meter
}

// New builds a fresh, independent metrics registry.
func New() *Registry {
	r := gometrics.NewRegistry()
	reg := &Registry{
		r:                 r,
		SubmittedTotal:    gometrics.NewCounter(),
		EvictedTotal:      gometrics.NewCounter(),
		DeliveredTotal:    gometrics.NewCounter(),
		ReceiptsSentTotal: gometrics.NewCounter(),
		DroppedTotal:      gometrics.NewCounter(),
		MODroppedTotal:    gometrics.NewCounter(),
		MOSentTotal:       gometrics.NewCounter(),
		ThrottledTotal:    gometrics.NewCounter(),
		Throughput1s:      gometrics.NewMeter(),
	}
	_ = r.Register("submitted_total", reg.SubmittedTotal)
	_ = r.Register("evicted_total", reg.EvictedTotal)
	_ = r.Register("delivered_total", reg.DeliveredTotal)
	_ = r.Register("receipts_sent_total", reg.ReceiptsSentTotal)
	_ = r.Register("dropped_total", reg.DroppedTotal)
	_ = r.Register("mo_dropped_total", reg.MODroppedTotal)
	_ = r.Register("mo_sent_total", reg.MOSentTotal)
	_ = r.Register("throttled_total", reg.ThrottledTotal)
	_ = r.Register("throughput_1s", reg.Throughput1s)
	return reg
}

// MarkSubmitted records an accepted submit_sm and ticks throughput.
func (reg *Registry) MarkSubmitted() {
	reg.SubmittedTotal.Inc(1)
	reg.Throughput1s.Mark(1)
}

// Throughput1sRate returns the one-minute-windowed-but-labelled 1s rate
// exposed in the snapshot (go-metrics EWMA, sampled every 5s internally).
func (reg *Registry) Throughput1sRate() float64 {
	return reg.Throughput1s.Rate1()
}
