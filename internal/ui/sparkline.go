package ui

import "strings"

// SparklineChars are the eight bar heights, lowest first.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps the most recent throughput samples in a ring buffer and
// renders them as block characters scaled to the largest retained sample.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline retaining size samples (default 60).
func NewSparkline(size int) *Sparkline {
	if size <= 0 {
		size = 60
	}
	return &Sparkline{samples: make([]float64, size)}
}

// Add appends a sample, evicting the oldest when full.
func (s *Sparkline) Add(v float64) {
	s.samples[s.head] = v
	s.head = (s.head + 1) % len(s.samples)
	s.count = min(s.count+1, len(s.samples))
}

// Clear drops all samples.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head, s.count = 0, 0
}

// Count returns the number of retained samples.
func (s *Sparkline) Count() int { return s.count }

// recent returns up to n of the newest samples, oldest first.
func (s *Sparkline) recent(n int) []float64 {
	n = min(n, s.count)
	out := make([]float64, n)
	size := len(s.samples)
	for i := range n {
		out[i] = s.samples[(s.head-n+i+size)%size]
	}
	return out
}

// Render draws the newest width samples, left-padded with spaces so the
// newest sample is always in the last column.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	vals := s.recent(width)

	peak := 1.0
	for _, v := range vals {
		peak = max(peak, v)
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	sb.WriteString(strings.Repeat(" ", width-len(vals)))
	top := len(SparklineChars) - 1
	for _, v := range vals {
		idx := int(v / peak * float64(top))
		sb.WriteRune(SparklineChars[max(0, min(idx, top))])
	}
	return sb.String()
}
