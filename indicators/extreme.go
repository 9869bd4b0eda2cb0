package indicators

// Extreme tracks the highest or lowest input over period rows using a
// monotonic deque, O(1) amortized per step.
type Extreme struct {
	base
	period  int
	highest bool
	idx     []int
	vals    []float64
	n       int
}

// NewHighest returns the rolling maximum of input.
func NewHighest(name, input string, period int) *Extreme {
	checkPeriod("Highest", period)
	return &Extreme{base: base{name: name, inputs: []string{input}}, period: period, highest: true}
}

// NewLowest returns the rolling minimum of input.
func NewLowest(name, input string, period int) *Extreme {
	checkPeriod("Lowest", period)
	return &Extreme{base: base{name: name, inputs: []string{input}}, period: period}
}

func (e *Extreme) Window() int { return e.period }

func (e *Extreme) Reset() {
	e.idx, e.vals, e.n = e.idx[:0], e.vals[:0], 0
}

func (e *Extreme) Step(in []float64) (float64, bool) {
	x := in[0]
	for len(e.vals) > 0 && e.dominated(e.vals[len(e.vals)-1], x) {
		e.vals = e.vals[:len(e.vals)-1]
		e.idx = e.idx[:len(e.idx)-1]
	}
	e.vals = append(e.vals, x)
	e.idx = append(e.idx, e.n)
	e.n++
	for e.idx[0] <= e.n-1-e.period {
		e.vals = e.vals[1:]
		e.idx = e.idx[1:]
	}
	if e.n < e.period {
		return 0, false
	}
	return e.vals[0], true
}

func (e *Extreme) dominated(old, x float64) bool {
	if e.highest {
		return old <= x
	}
	return old >= x
}
