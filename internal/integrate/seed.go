package integrate

import "time"

// seedGamma is the 64-bit golden-ratio constant mixed into the worker
// seed derivation. It does not fit in an int64, so it is held unsigned.
const seedGamma uint64 = 0x9e3779b97f4a7c15

// DeriveSeed returns the RNG seed for one worker. Each worker index
// maps to a distinct, deterministic stream of the same base seed.
func DeriveSeed(base int64, worker int) int64 {
	return int64(uint64(base) ^ (uint64(worker) + seedGamma))
}

// timeSeed is the base seed used when the caller does not fix one.
func timeSeed() int64 {
	return time.Now().UnixNano()
}
