package common

// Bnum is a block address in the simulated data area.
type Bnum = uint64

// PackId is a pack's position in log sequence order, starting at 0.
type PackId uint64
