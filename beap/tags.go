package beap

// ExtractAutomationTags scans text for #-prefixed automation tokens.
//
// A tag starts with '#' and continues over letters, digits and the
// punctuation set "-_:.". Tags are deduplicated preserving first-seen order
// and original case. Empty input yields an empty, non-nil slice so callers
// can range without a nil check. Pure and order-stable.
func ExtractAutomationTags(text string) []string {
	tags := []string{}
	if text == "" {
		return tags
	}
	seen := make(map[string]bool)
	for i := 0; i < len(text); i++ {
		if text[i] != '#' {
			continue
		}
		j := i + 1
		for j < len(text) && isTagByte(text[j]) {
			j++
		}
		if j == i+1 {
			continue // bare '#'
		}
		tag := text[i:j]
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
		i = j - 1
	}
	return tags
}

func isTagByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == ':' || c == '.':
		return true
	}
	return false
}
