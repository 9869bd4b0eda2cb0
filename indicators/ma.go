package indicators

// SMA is a simple moving average over period rows. It keeps a running
// sum so each step is O(1).
type SMA struct {
	base
	period int
	ring   []float64
	next   int
	count  int
	sum    float64
}

// NewSMA averages the input line over period fresh ticks.
func NewSMA(name, input string, period int) *SMA {
	checkPeriod("SMA", period)
	return &SMA{
		base:   base{name: name, inputs: []string{input}},
		period: period,
		ring:   make([]float64, period),
	}
}

func (m *SMA) Window() int { return m.period }

func (m *SMA) Reset() {
	clear(m.ring)
	m.next, m.count, m.sum = 0, 0, 0
}

func (m *SMA) Step(in []float64) (float64, bool) {
	x := in[0]
	if m.count == m.period {
		m.sum -= m.ring[m.next]
	} else {
		m.count++
	}
	m.ring[m.next] = x
	m.sum += x
	m.next = (m.next + 1) % m.period
	if m.count < m.period {
		return 0, false
	}
	return m.sum / float64(m.period), true
}

// Compute runs the same running-sum recurrence over a slice.
func (m *SMA) Compute(rows [][]float64) ([]float64, []bool) {
	out := make([]float64, len(rows))
	ok := make([]bool, len(rows))
	sum := 0.0
	for i, row := range rows {
		if i >= m.period {
			sum -= rows[i-m.period][0]
		}
		sum += row[0]
		if i+1 >= m.period {
			out[i] = sum / float64(m.period)
			ok[i] = true
		}
	}
	return out, ok
}

// EMA is an exponential moving average seeded with the SMA of its first
// period rows.
type EMA struct {
	base
	period     int
	multiplier float64
	ema        float64
	count      int
	warmupSum  float64
}

func NewEMA(name, input string, period int) *EMA {
	checkPeriod("EMA", period)
	return &EMA{
		base:       base{name: name, inputs: []string{input}},
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Window() int { return e.period }

func (e *EMA) Reset() {
	e.ema, e.count, e.warmupSum = 0, 0, 0
}

func (e *EMA) Step(in []float64) (float64, bool) {
	x := in[0]
	if e.count < e.period {
		e.warmupSum += x
		e.count++
		if e.count < e.period {
			return 0, false
		}
		e.ema = e.warmupSum / float64(e.period)
		return e.ema, true
	}
	e.ema = (x-e.ema)*e.multiplier + e.ema
	return e.ema, true
}

func (e *EMA) Compute(rows [][]float64) ([]float64, []bool) {
	out := make([]float64, len(rows))
	ok := make([]bool, len(rows))
	var ema, sum float64
	for i, row := range rows {
		x := row[0]
		switch {
		case i < e.period-1:
			sum += x
			continue
		case i == e.period-1:
			sum += x
			ema = sum / float64(e.period)
		default:
			ema = (x-ema)*e.multiplier + ema
		}
		out[i], ok[i] = ema, true
	}
	return out, ok
}
