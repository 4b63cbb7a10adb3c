package analytics

// RollingWindow keeps the last windowSize values and their running sum.
// It is not safe for concurrent use.
type RollingWindow struct {
	windowSize int
	values     []float64
	index      int
	count      int
	sum        float64
}

func NewRollingWindow(size int) *RollingWindow {
	if size < 1 {
		size = 1
	}
	return &RollingWindow{
		windowSize: size,
		values:     make([]float64, size),
	}
}

func (rw *RollingWindow) Add(value float64) {
	if rw.count < rw.windowSize {
		rw.values[rw.index] = value
		rw.sum += value
		rw.count++
	} else {
		oldValue := rw.values[rw.index]
		rw.values[rw.index] = value
		rw.sum = rw.sum - oldValue + value
	}
	rw.index = (rw.index + 1) % rw.windowSize
}

func (rw *RollingWindow) Average() float64 {
	if rw.count == 0 {
		return 0.0
	}
	return rw.sum / float64(rw.count)
}

func (rw *RollingWindow) Count() int { return rw.count }

// GetValues returns the buffered values in storage order, not insertion order.
func (rw *RollingWindow) GetValues() []float64 {
	if rw.count < rw.windowSize {
		return rw.values[:rw.count]
	}
	return rw.values
}
