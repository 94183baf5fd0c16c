package storage

// usage is the footprint counted against the quota: every key plus its value.
func usage(values map[string]string) int {
	n := 0
	for k, v := range values {
		n += len(k) + len(v)
	}
	return n
}

// fits reports whether replacing key with value keeps the store within quota.
// A quota of zero means unlimited.
func fits(values map[string]string, quota int, key, value string) bool {
	if quota <= 0 {
		return true
	}
	n := usage(values)
	if old, ok := values[key]; ok {
		n -= len(key) + len(old)
	}
	return n+len(key)+len(value) <= quota
}
