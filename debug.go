package diorama

import "time"

// debugStats holds per-frame timing and counts.
// Only populated when Renderer.Debug is true.
type debugStats struct {
	evaluateTime time.Duration
	sortTime     time.Duration
	submitTime   time.Duration
	layerCount   int
	commandCount int
}

// debugLog prints timing stats and layer counts.
func (r *Renderer) debugLog() {
	if !r.Debug {
		return
	}
	s := r.stats
	total := s.evaluateTime + s.sortTime + s.submitTime
	logf("evaluate: %v | sort: %v | submit: %v | total: %v",
		s.evaluateTime, s.sortTime, s.submitTime, total)
	logf("layers: %d | drawn: %d | hidden: %d",
		s.layerCount, s.commandCount, s.layerCount-s.commandCount)
}
