// Package normalizer maps a symbol name or a typed query onto its lookup key.
// The builder and the query engine both go through Normalize, so a key
// written into a shard and a query typed against it compare byte for byte.
package normalizer

// Normalize lowercases ASCII letters and drops every byte that is not in
// [a-z0-9] afterwards. It is total and idempotent; "" maps to "".
//
// Non-ASCII input is dropped byte by byte, so a multi-byte rune never leaves a
// partial sequence behind.
func Normalize(raw string) string {
	// Fast path: already normalized input is returned without allocating.
	clean := true
	for i := 0; i < len(raw); i++ {
		if !isKeyByte(raw[i]) {
			clean = false
			break
		}
	}
	if clean {
		return raw
	}

	buf := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if isKeyByte(c) {
			buf = append(buf, c)
		}
	}
	return string(buf)
}

// IsNormalized reports whether key is already in normalized form.
func IsNormalized(key string) bool {
	for i := 0; i < len(key); i++ {
		if !isKeyByte(key[i]) {
			return false
		}
	}
	return true
}

func isKeyByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
