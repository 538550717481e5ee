package lane

// MaskAnd writes a && b into out.
func MaskAnd(a, b, out *Mask) {
	for i := range out {
		out[i] = a[i] && b[i]
	}
}

// MaskOr writes a || b into out.
func MaskOr(a, b, out *Mask) {
	for i := range out {
		out[i] = a[i] || b[i]
	}
}

// MaskAndNot writes a && !b into out.
func MaskAndNot(a, b, out *Mask) {
	for i := range out {
		out[i] = a[i] && !b[i]
	}
}

// MaskNot writes !m into out.
func MaskNot(m, out *Mask) {
	for i := range out {
		out[i] = !m[i]
	}
}

// Any reports whether any lane is set.
func Any(m *Mask) bool {
	for i := range m {
		if m[i] {
			return true
		}
	}
	return false
}

// All reports whether every lane is set.
func All(m *Mask) bool {
	for i := range m {
		if !m[i] {
			return false
		}
	}
	return true
}
