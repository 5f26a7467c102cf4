package features

// Smooth applies one exponential moving average step
func Smooth(prev, raw, alpha float64) float64 {
	return alpha*raw + (1-alpha)*prev
}

// Smoother holds the EMA state for one signal. The zero value starts at 0.
// Not safe for concurrent use.
type Smoother struct {
	alpha float64
	value float64
}

// NewSmoother creates a smoother with the given factor (0 < alpha <= 1)
func NewSmoother(alpha float64) *Smoother {
	return &Smoother{alpha: alpha}
}

// Update folds raw into the average and returns the new value
func (s *Smoother) Update(raw float64) float64 {
	s.value = Smooth(s.value, raw, s.alpha)
	return s.value
}

// Value returns the current average
func (s *Smoother) Value() float64 {
	return s.value
}

// Reset returns the smoother to 0
func (s *Smoother) Reset() {
	s.value = 0
}
