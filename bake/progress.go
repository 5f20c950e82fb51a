package bake

import "time"

const rateInterval = 500 * time.Millisecond

// Progress describes how far a bake is.
type Progress struct {
	BakeID    string `json:"bake_id"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`

	// The average time spent per octant over the last rate interval.
	MsPerOctant float64 `json:"ms_per_octant"`

	Done      bool `json:"done"`
	Cancelled bool `json:"cancelled,omitempty"`
	Failed    bool `json:"failed,omitempty"`
}

// Fraction returns the processed ratio, in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Processed) / float64(p.Total)
}

// rateMeter measures the time spent per octant. The rate is refreshed once
// per rateInterval.
type rateMeter struct {
	now       func() time.Time
	start     time.Time
	lastIndex int
	rate      float64
}

func newRateMeter(now func() time.Time) *rateMeter {
	return &rateMeter{
		now:   now,
		start: now(),
	}
}

// Update records that processed octants are done and returns the current
// rate in milliseconds per octant.
func (m *rateMeter) Update(processed int) float64 {
	elapsed := m.now().Sub(m.start)
	if elapsed <= rateInterval || processed <= m.lastIndex {
		return m.rate
	}

	m.rate = float64(elapsed.Milliseconds()) / float64(processed-m.lastIndex)
	m.lastIndex = processed
	m.start = m.now()
	return m.rate
}
