package util

import "runtime"

const (
	// MinPoolSize is the floor applied to CPU-derived pool sizes.
	MinPoolSize = 4
	// MaxPoolSize caps both parser pools and the migration worker pool.
	MaxPoolSize = 32
)

// GetOptimalPoolSize returns the default parallelism for CPU-bound work.
//
// Formula: min(max(runtime.NumCPU() * 2, 4), 32)
//
// Parsing goes through CGO, so twice the core count keeps cores busy while
// some goroutines sit in C calls. The cap bounds parser memory on large hosts.
//
// Used for:
//   - Parser pool size (parsers per grammar)
//   - Graph build fan-out
//   - Migration pipeline concurrency when no override is given
func GetOptimalPoolSize() int {
	poolSize := runtime.NumCPU() * 2

	if poolSize < MinPoolSize {
		poolSize = MinPoolSize
	}
	if poolSize > MaxPoolSize {
		poolSize = MaxPoolSize
	}

	return poolSize
}

// GetOptimalPoolSizeWithOverride returns override when it is positive,
// otherwise GetOptimalPoolSize().
//
// Operator overrides are honoured as given, including values above
// MaxPoolSize.
func GetOptimalPoolSizeWithOverride(override int) int {
	if override > 0 {
		return override
	}
	return GetOptimalPoolSize()
}
