//go:build lanes8

package lane

// Width is the number of independent problems carried by one lane-wide value.
const Width = 8
