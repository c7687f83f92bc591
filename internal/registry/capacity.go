package registry

import (
	"math"
	"runtime/debug"
)

// DefaultCapacityFraction is the share of the heap the registry may fill.
const DefaultCapacityFraction = 0.5

// TypeSpec sizes one registry type.
type TypeSpec struct {
	Name TypeKey
	// AverageSizeBytes is the estimated memory held by one instance.
	AverageSizeBytes int64
	// MinimumCount is how many instances must fit for an analysis to be useful.
	MinimumCount int64
}

// Budget is the memory the registry is allowed to plan against.
type Budget struct {
	MaxHeapBytes     int64
	CapacityFraction float64
}

// Capacity returns floor(MaxHeapBytes * CapacityFraction / AverageSizeBytes).
// It fails with a misconfiguration fault when the heap cannot hold
// MinimumCount instances at all.
func Capacity(spec TypeSpec, b Budget) (int64, error) {
	const op = "registry.capacity"
	fraction := b.CapacityFraction
	if fraction == 0 {
		fraction = DefaultCapacityFraction
	}
	switch {
	case fraction < 0 || fraction > 1:
		return 0, misconfigured(op, "capacity fraction %v for %s must be in (0, 1]", fraction, spec.Name)
	case spec.AverageSizeBytes <= 0:
		return 0, misconfigured(op, "average size for %s must be positive, got %d", spec.Name, spec.AverageSizeBytes)
	case b.MaxHeapBytes <= 0:
		return 0, misconfigured(op, "max heap must be positive, got %d", b.MaxHeapBytes)
	}
	if spec.MinimumCount > 0 && b.MaxHeapBytes/spec.MinimumCount < spec.AverageSizeBytes {
		return 0, misconfigured(op,
			"max heap of %d bytes cannot hold the minimum %d %s instances of %d bytes; raise GOMEMLIMIT or registry.max_heap_bytes",
			b.MaxHeapBytes, spec.MinimumCount, spec.Name, spec.AverageSizeBytes)
	}
	return int64(math.Floor(float64(b.MaxHeapBytes) * fraction / float64(spec.AverageSizeBytes))), nil
}

// DetectMaxHeap returns the Go runtime soft memory limit (GOMEMLIMIT).
// ok is false when no limit is set.
func DetectMaxHeap() (bytes int64, ok bool) {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return 0, false
	}
	return limit, true
}
