package optim

import (
	"sync"
)

// EpochResult summarises one completed epoch.
type EpochResult struct {
	Epoch int
	// Loss is the batch-size weighted mean of the batch losses, Σ loss_b * |b| / rows.
	Loss float64
	// Rate is the learning rate used for the epoch after fallback substitution.
	Rate           float64
	SkippedBatches int
}

// BatchResult describes one processed batch.
type BatchResult struct {
	Epoch int
	Batch int
	Start int
	End   int
	Loss  float64
	// Gradient is a copy of the clipped combined gradient [weights..., bias]
	// passed to UpdateParameters. Nil for skipped batches.
	Gradient []float64
	Rate     float64
	// Skipped is true when the batch produced non-finite values and no
	// update was applied.
	Skipped bool
}

// History records epoch results. Its Record method can be passed to
// WithEpochCallback. It is safe for concurrent use.
type History struct {
	mu     sync.Mutex
	epochs []EpochResult
}

// NewHistory returns an empty History.
func NewHistory() *History { return &History{} }

// Record appends r.
func (h *History) Record(r EpochResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.epochs = append(h.epochs, r)
}

// Len returns the number of recorded epochs.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.epochs)
}

// Losses returns the epoch losses in order.
func (h *History) Losses() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float64, len(h.epochs))
	for i, r := range h.epochs {
		out[i] = r.Loss
	}
	return out
}

// Rates returns the learning rate used in each epoch.
func (h *History) Rates() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float64, len(h.epochs))
	for i, r := range h.epochs {
		out[i] = r.Rate
	}
	return out
}

// Last returns the most recent result, if any.
func (h *History) Last() (EpochResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.epochs) == 0 {
		return EpochResult{}, false
	}
	return h.epochs[len(h.epochs)-1], true
}

// Reset clears the history.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.epochs = nil
}
