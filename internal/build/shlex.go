package build

import "strings"

// splitArgs disambiguates "COPY src... dst" whitespace splitting by
// supporting shell-style double-quoting, so a path containing spaces can be
// quoted. Unquoted tokens still split on
// every run of whitespace, with the last token winning as the destination.
func splitArgs(s string) []string {
	var out []string
	var cur strings.Builder
	inQuotes := false
	hasCur := false

	flush := func() {
		if hasCur {
			out = append(out, cur.String())
			cur.Reset()
			hasCur = false
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			hasCur = true
		case c == ' ' || c == '\t':
			if inQuotes {
				cur.WriteByte(c)
			} else {
				flush()
			}
		default:
			cur.WriteByte(c)
			hasCur = true
		}
	}
	flush()
	return out
}
