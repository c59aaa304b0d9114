package internal

import (
	"fmt"
	"log"
	"time"
)

// QuotaLedger tracks consumed YouTube API quota units against a daily
// ceiling and accumulates informational USD cost estimates from the
// summarizer and narrator. It is owned by the orchestrator and updated only
// between video-processing steps; it is not persisted (the daily window
// resets on process restart, which the design accepts).
type QuotaLedger struct {
	ceiling int
	reserve int

	used        int
	windowStart time.Time
	cost        float64

	now func() time.Time
}

// NewQuotaLedger creates a ledger with the given daily ceiling and reserve.
// The reserve is kept unspent so interactive use of the same API key is not
// starved by the pipeline.
func NewQuotaLedger(ceiling, reserve int) *QuotaLedger {
	l := &QuotaLedger{ceiling: ceiling, reserve: reserve, now: time.Now}
	l.windowStart = l.now().UTC()
	return l
}

// Reserve consumes units for the named operation, failing fast with
// ErrQuotaExceeded before the call would push usage past the ceiling minus
// reserve. The window rolls over after 24 hours.
func (l *QuotaLedger) Reserve(op string, units int) error {
	l.maybeReset()
	budget := l.ceiling - l.reserve
	if l.used+units > budget {
		return fmt.Errorf("%w: %s needs %d units, %d of %d used", ErrQuotaExceeded, op, units, l.used, budget)
	}
	l.used += units
	log.Printf("tubedigest: youtube api %s used %d quota units (total %d)", op, units, l.used)
	return nil
}

// Remaining returns the unspent budget in the current window.
func (l *QuotaLedger) Remaining() int {
	l.maybeReset()
	remaining := l.ceiling - l.reserve - l.used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Used returns the units consumed in the current window.
func (l *QuotaLedger) Used() int {
	l.maybeReset()
	return l.used
}

// AddCost records an estimated billed cost in USD. Informational only; cost
// ceilings are a configuration policy, not enforced here.
func (l *QuotaLedger) AddCost(usd float64) {
	l.cost += usd
}

// Cost returns the accumulated estimated USD cost.
func (l *QuotaLedger) Cost() float64 { return l.cost }

func (l *QuotaLedger) maybeReset() {
	now := l.now().UTC()
	if now.Sub(l.windowStart) >= 24*time.Hour {
		l.used = 0
		l.windowStart = now
	}
}
