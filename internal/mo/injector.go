// Package mo implements the MO Injector (§4.7): a source of synthetic
// mobile-originated traffic, injected on a timer or on demand through the
// observability API, fanned out to every RX/TRX session bound under the
// entry's target system_id.
package mo

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/linxGnu/gosmpp/pdu"

	"github.com/smppsim/smppsim/internal/codec"
	"github.com/smppsim/smppsim/internal/metrics"
	"github.com/smppsim/smppsim/internal/session"
)

// Entry is one configured MO template (§3, §4.7).
type Entry struct {
	SourceAddr     string
	DestAddr       string
	ShortMessage   string
	TargetSystemID string
}

// Config holds the injector's timing (§6 MO_INTERVAL_MS). Zero disables
// the periodic tick; on-demand injection via Inject still works.
type Config struct {
	Interval time.Duration
}

// Injector periodically (or on demand) delivers a synthetic MO message to
// whichever sessions are bound to receive on behalf of its target
// system_id, counting drops when none are bound (§4.7, §7).
type Injector struct {
	entries  []Entry
	registry *session.Registry
	metrics  *metrics.Registry

	// cursor is the index of the next source-table entry the periodic
	// tick will consume; it advances and wraps around the table (§4.7),
	// matching the original simulator's sequential consumption of its MO
	// source list rather than a random pick.
	cursor atomic.Uint64

	// intervalNs holds the current tick interval in nanoseconds so
	// UpdateInterval (the `mo.interval_ms` tunable) can retune it while Run
	// is already looping (§4.9).
	intervalNs atomic.Int64
}

// New builds an Injector over a fixed source table. seed is accepted for
// parity with the rest of the simulator's TEST_SEED-seeded components but
// is otherwise unused: the periodic tick consumes the source table
// head-first and wraps, so it has nothing left to randomize.
func New(cfg Config, entries []Entry, registry *session.Registry, m *metrics.Registry, seed int64) *Injector {
	in := &Injector{
		entries:  entries,
		registry: registry,
		metrics:  m,
	}
	in.intervalNs.Store(int64(cfg.Interval))
	return in
}

// pollInterval bounds how often a disabled (interval <= 0, or empty source
// table) Injector rechecks whether it should start ticking.
const pollInterval = 200 * time.Millisecond

// Run injects the next source-table entry in sequence (wrapping around the
// table) every tick interval, until ctx is cancelled. The interval is
// re-read on each cycle so a runtime retune via UpdateInterval takes effect
// without restarting the loop.
func (in *Injector) Run(ctx context.Context) error {
	for {
		interval := time.Duration(in.intervalNs.Load())
		if interval <= 0 || len(in.entries) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
				continue
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			i := in.cursor.Add(1) - 1
			entry := in.entries[int(i%uint64(len(in.entries)))]
			in.Inject(entry)
		}
	}
}

// UpdateInterval retunes the periodic injection interval, as addressed by
// the observability API's `mo.interval_ms` tunable (§4.9).
func (in *Injector) UpdateInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("mo.interval_ms must be positive")
	}
	in.intervalNs.Store(int64(d))
	return nil
}

// Inject delivers entry to every RX/TRX session bound under its target
// system_id, returning the count actually delivered. A count of zero
// means no receiver was bound and the drop counter was incremented.
func (in *Injector) Inject(entry Entry) int {
	build := func(seq uint32) (pdu.PDU, error) {
		return codec.NewDeliverSM(codec.DeliverSMParams{
			Seq:          seq,
			SourceAddr:   entry.SourceAddr,
			DestAddr:     entry.DestAddr,
			ShortMessage: entry.ShortMessage,
			IsReceipt:    false,
		})
	}

	delivered := in.registry.RouteToSystemID(entry.TargetSystemID, build)
	if delivered > 0 {
		in.metrics.MOSentTotal.Inc(int64(delivered))
	} else {
		in.metrics.MODroppedTotal.Inc(1)
	}
	return delivered
}

// InjectByIndex injects entries[i], as addressed by the observability
// API's POST /api/mo (§4.9, §6).
func (in *Injector) InjectByIndex(i int) (int, error) {
	if i < 0 || i >= len(in.entries) {
		return 0, fmt.Errorf("mo: entry index %d out of range (have %d)", i, len(in.entries))
	}
	return in.Inject(in.entries[i]), nil
}

// InjectCustom builds and delivers an ad-hoc entry supplied directly
// through the observability API, without adding it to the source table.
func (in *Injector) InjectCustom(entry Entry) int {
	return in.Inject(entry)
}
