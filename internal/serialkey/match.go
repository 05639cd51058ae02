package serialkey

// IsMatch reports whether partial is structurally contained in full.
//
// Maps match when every entry of partial exists in full and matches
// recursively; extra entries in full are ignored. Lists match positionally:
// partial may be shorter than full, and each of its elements must match the
// element at the same index. Anything else must be equal.
func IsMatch(full, partial Key) bool {
	switch p := partial.(type) {
	case Map:
		f, ok := full.(Map)
		if !ok {
			return false
		}
		for name, pv := range p {
			fv, exists := f[name]
			if !exists || !IsMatch(fv, pv) {
				return false
			}
		}
		return true
	case List:
		f, ok := full.(List)
		if !ok || len(p) > len(f) {
			return false
		}
		for i, pv := range p {
			if !IsMatch(f[i], pv) {
				return false
			}
		}
		return true
	case nil:
		return full == nil
	case bool:
		f, ok := full.(bool)
		return ok && f == p
	case string:
		f, ok := full.(string)
		return ok && f == p
	case Number:
		f, ok := full.(Number)
		return ok && f == p
	default:
		return false
	}
}
