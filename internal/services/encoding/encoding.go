// Package encoding holds the single escaping routine shared by every component
// that puts a value or a query string on the wire to the aggregator.
package encoding

import (
	"net/url"
	"strings"
)

// reservedReverter undoes escaping of the sub-delims the counterparty expects
// to see literally.
var reservedReverter = strings.NewReplacer(
	"%21", "!",
	"%2A", "*",
	"%27", "'",
	"%28", "(",
	"%29", ")",
)

// Encode percent-encodes s per RFC 3986 (space as %20, upper-case hex) and then
// reverts ! * ' ( ) to their literal form.
func Encode(s string) string {
	// QueryEscape leaves only unreserved characters alone; a '+' in its output
	// can only come from a space because a literal '+' becomes %2B.
	escaped := strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
	return reservedReverter.Replace(escaped)
}

// ApplyCompatShim performs the whole-string substitutions the aggregator's
// reference client applies to an assembled query: %25 -> % first, then
// %20 -> space. The result is not valid URL encoding; it must match the
// counterparty's recomputation byte for byte.
func ApplyCompatShim(query string) string {
	query = strings.ReplaceAll(query, "%25", "%")
	return strings.ReplaceAll(query, "%20", " ")
}

// EncodePairs joins key/value pairs as k=v&k=v with both sides encoded.
func EncodePairs(pairs [][2]string) string {
	var b strings.Builder
	for i, kv := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(Encode(kv[0]))
		b.WriteByte('=')
		b.WriteString(Encode(kv[1]))
	}
	return b.String()
}
