package indicators

// CrossOver emits +1 on the row where the first input crosses above the
// second, -1 where it crosses below and 0 otherwise.
type CrossOver struct {
	base
	prev    float64
	hasPrev bool
}

func NewCrossOver(name, a, b string) *CrossOver {
	return &CrossOver{base: base{name: name, inputs: []string{a, b}}}
}

func (c *CrossOver) Window() int { return 2 }

func (c *CrossOver) Reset() { c.prev, c.hasPrev = 0, false }

func (c *CrossOver) Step(in []float64) (float64, bool) {
	diff := in[0] - in[1]
	prev, had := c.prev, c.hasPrev
	c.prev, c.hasPrev = diff, true
	if !had {
		return 0, false
	}
	return cross(prev, diff), true
}

func (c *CrossOver) Compute(rows [][]float64) ([]float64, []bool) {
	out := make([]float64, len(rows))
	ok := make([]bool, len(rows))
	for i := 1; i < len(rows); i++ {
		out[i] = cross(rows[i-1][0]-rows[i-1][1], rows[i][0]-rows[i][1])
		ok[i] = true
	}
	return out, ok
}

func cross(prev, diff float64) float64 {
	switch {
	case prev <= 0 && diff > 0:
		return 1
	case prev >= 0 && diff < 0:
		return -1
	}
	return 0
}
