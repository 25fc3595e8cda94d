// internal/types/health.go
package types

// Health is the outcome of a store-touching step.
type Health int

const (
	Healthy Health = iota
	Degraded
	Failed
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Worse returns the more severe of h and other.
func (h Health) Worse(other Health) Health {
	if other > h {
		return other
	}
	return h
}
