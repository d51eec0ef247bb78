package respserver

import "bytes"

// patternSupported reports whether the KEYS pattern uses only the
// supported `*` wildcard. Richer glob syntax is refused outright so
// clients get an error instead of silently partial results.
func patternSupported(pattern []byte) bool {
	return !bytes.ContainsAny(pattern, "?[\\")
}

// matchKey matches a key against a `*`-wildcard pattern. `*` matches
// any run of bytes, including the empty run; everything else matches
// literally.
func matchKey(pattern, key []byte) bool {
	if len(pattern) == 1 && pattern[0] == '*' {
		return true
	}
	if !bytes.ContainsRune(pattern, '*') {
		return bytes.Equal(pattern, key)
	}

	parts := bytes.Split(pattern, []byte("*"))

	// The first literal must be a prefix.
	if len(parts[0]) > 0 {
		if !bytes.HasPrefix(key, parts[0]) {
			return false
		}
		key = key[len(parts[0]):]
	}

	// Middle literals must appear in order.
	for _, part := range parts[1 : len(parts)-1] {
		if len(part) == 0 {
			continue
		}
		idx := bytes.Index(key, part)
		if idx < 0 {
			return false
		}
		key = key[idx+len(part):]
	}

	// The last literal must be a suffix of what remains.
	last := parts[len(parts)-1]
	if len(last) == 0 {
		return true
	}
	return bytes.HasSuffix(key, last)
}
