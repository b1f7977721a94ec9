package metrics

import "sync"

// BlockObservation is one sealed block as seen by the metrics window.
type BlockObservation struct {
	Number    uint64
	Timestamp uint64
	GasUsed   uint64
	GasLimit  uint64
	TxCount   int
}

// Window keeps the last N block observations and derives the rolling
// averages the chain-metrics snapshots report.
type Window struct {
	mu   sync.Mutex
	size int
	obs  []BlockObservation
}

// NewWindow returns a window retaining up to size observations; a
// non-positive size falls back to 1.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{size: size}
}

// Observe appends one block, evicting the oldest observation once the
// window is full.
func (w *Window) Observe(o BlockObservation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.obs = append(w.obs, o)
	if len(w.obs) > w.size {
		w.obs = w.obs[1:]
	}
}

// AverageBlockTime returns the mean seconds between consecutive blocks
// in the window, or 0 with fewer than two observations.
func (w *Window) AverageBlockTime() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.obs) < 2 {
		return 0
	}
	first, last := w.obs[0], w.obs[len(w.obs)-1]
	if last.Timestamp <= first.Timestamp {
		return 0
	}
	return float64(last.Timestamp-first.Timestamp) / float64(len(w.obs)-1)
}

// TxThroughput returns transactions per second across the window, or 0
// with fewer than two observations.
func (w *Window) TxThroughput() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.obs) < 2 {
		return 0
	}
	first, last := w.obs[0], w.obs[len(w.obs)-1]
	elapsed := float64(last.Timestamp - first.Timestamp)
	if elapsed <= 0 {
		return 0
	}
	var txs int
	for _, o := range w.obs[1:] {
		txs += o.TxCount
	}
	return float64(txs) / elapsed
}

// GasUtilizationBP returns the window's mean gas_used/gas_limit ratio
// in basis points, or 0 with no observations.
func (w *Window) GasUtilizationBP() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.obs) == 0 {
		return 0
	}
	var total float64
	var counted int
	for _, o := range w.obs {
		if o.GasLimit == 0 {
			continue
		}
		total += float64(o.GasUsed) / float64(o.GasLimit)
		counted++
	}
	if counted == 0 {
		return 0
	}
	return uint32(total / float64(counted) * 10000)
}

// Latest returns the most recent observation and whether one exists.
func (w *Window) Latest() (BlockObservation, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.obs) == 0 {
		return BlockObservation{}, false
	}
	return w.obs[len(w.obs)-1], true
}
