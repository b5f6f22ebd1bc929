package frame

// History keeps the last frame actually sent to the panel. Fast refreshes
// send it as the "previous image" operand.
type History struct {
	size     int
	prev     []byte
	recorded bool
}

// NewHistory returns a History for frames of size bytes.
func NewHistory(size int) *History {
	return &History{
		size: size,
		prev: make([]byte, size),
	}
}

// Record stores a copy of frame.
func (h *History) Record(frame []byte) {
	if len(frame) != h.size {
		// Geometry is fixed at construction; a mismatch means the caller is
		// broken, keep the previous frame rather than a truncated one.
		return
	}
	copy(h.prev, frame)
	h.recorded = true
}

// Previous returns the last recorded frame, or zeros if nothing was recorded.
// The returned slice is owned by History and valid until the next Record.
func (h *History) Previous() []byte {
	return h.prev
}

// Recorded reports whether at least one frame has been recorded.
func (h *History) Recorded() bool {
	return h.recorded
}

// Reset forgets the recorded frame.
func (h *History) Reset() {
	for i := range h.prev {
		h.prev[i] = 0
	}
	h.recorded = false
}
