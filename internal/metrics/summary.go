package metrics

import "time"

// Summary is a session-level view of the collector for the dashboard
// footer and `stats --json`.
type Summary struct {
	Reads          uint64        `json:"reads"`
	ReadErrors     uint64        `json:"read_errors"`
	AvgReadLatency time.Duration `json:"avg_read_latency_ns"`
	ConfirmedTxs   uint64        `json:"confirmed_txs"`
	FailedTxs      uint64        `json:"failed_txs"`
	Uptime         time.Duration `json:"uptime_ns"`
}

// ErrorRate is ReadErrors/Reads, or 0 before the first read.
func (s Summary) ErrorRate() float64 {
	if s.Reads == 0 {
		return 0
	}
	return float64(s.ReadErrors) / float64(s.Reads)
}

// Summary returns the running totals.
func (c *Collector) Summary() Summary {
	reads := c.readCount.Load()
	s := Summary{
		Reads:        reads,
		ReadErrors:   c.errorCount.Load(),
		ConfirmedTxs: c.confirmedTxs.Load(),
		FailedTxs:    c.failedTxs.Load(),
		Uptime:       time.Since(c.startTime),
	}
	if reads > 0 {
		s.AvgReadLatency = time.Duration(c.readNanos.Load() / int64(reads))
	}
	return s
}
