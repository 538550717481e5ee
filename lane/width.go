//go:build !lanes8

package lane

// Width is the number of independent problems carried by one lane-wide value.
// Build with -tags lanes8 for 8-wide lanes on AVX-512 class hardware.
// Determinism on replay holds only for a fixed Width and worker count.
const Width = 4
