package indicators

// RSI is Wilder's relative strength index. It needs period+1 rows since
// every change is measured against the previous row.
type RSI struct {
	base
	period  int
	prev    float64
	hasPrev bool
	count   int
	gain    float64
	loss    float64
}

func NewRSI(name, input string, period int) *RSI {
	checkPeriod("RSI", period)
	return &RSI{base: base{name: name, inputs: []string{input}}, period: period}
}

func (r *RSI) Window() int { return r.period + 1 }

func (r *RSI) Reset() {
	*r = RSI{base: r.base, period: r.period}
}

func (r *RSI) Step(in []float64) (float64, bool) {
	x := in[0]
	if !r.hasPrev {
		r.prev, r.hasPrev = x, true
		return 0, false
	}
	change := x - r.prev
	r.prev = x
	var up, down float64
	if change > 0 {
		up = change
	} else {
		down = -change
	}

	p := float64(r.period)
	switch {
	case r.count < r.period:
		r.gain += up
		r.loss += down
		r.count++
		if r.count < r.period {
			return 0, false
		}
		r.gain /= p
		r.loss /= p
	default:
		r.gain = (r.gain*(p-1) + up) / p
		r.loss = (r.loss*(p-1) + down) / p
	}
	if r.gain+r.loss == 0 {
		return 0, true
	}
	return 100 * r.gain / (r.gain + r.loss), true
}
