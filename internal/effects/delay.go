package effects

// ring is a fixed-length sample delay line.
type ring struct {
	buf []float32
	pos int
}

func newRing(n int) ring {
	if n < 1 {
		n = 1
	}
	return ring{buf: make([]float32, n)}
}

// tap returns the oldest sample and replaces it with in.
func (rb *ring) tap(in float32) float32 {
	out := rb.buf[rb.pos]
	rb.buf[rb.pos] = in
	rb.pos++
	if rb.pos == len(rb.buf) {
		rb.pos = 0
	}
	return out
}

func (rb *ring) peek() float32 { return rb.buf[rb.pos] }

func (rb *ring) clear() {
	clear(rb.buf)
	rb.pos = 0
}

// Delay is a stereo echo whose feedback can bleed across channels.
type Delay struct {
	left, right ring
	feedback    float32
	cross       float32
	amount      float32
}

func NewDelay(sampleRate int, timeMs float64, feedback, cross, amount float32) *Delay {
	n := int(timeMs * float64(sampleRate) / 1000)
	return &Delay{
		left:     newRing(n),
		right:    newRing(n),
		feedback: clamp(feedback, 0, 0.95),
		cross:    clamp(cross, 0, 1),
		amount:   clamp(amount, 0, 1),
	}
}

func (d *Delay) Process(l, r float32) (float32, float32) {
	echoL, echoR := d.left.peek(), d.right.peek()
	same, other := d.feedback*(1-d.cross), d.feedback*d.cross
	d.left.tap(l + echoL*same + echoR*other)
	d.right.tap(r + echoR*same + echoL*other)
	return mix(l, echoL, d.amount), mix(r, echoR, d.amount)
}

func (d *Delay) Reset() {
	d.left.clear()
	d.right.clear()
}
