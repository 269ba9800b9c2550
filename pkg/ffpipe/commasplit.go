package ffpipe

// splitCommaOutsideParens splits s on commas, ignoring commas nested
// inside one level of parentheses. FFmpeg stream descriptors need this:
// a field like `yuv444p(tv, progressive)` is one token, not two.
// Sections are returned trimmed of nothing; callers trim as needed.
func splitCommaOutsideParens(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}
