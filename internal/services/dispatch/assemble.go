package dispatch

import (
	"strings"

	"egiro-gateway/internal/services/canonical"
	"egiro-gateway/internal/services/encoding"
)

// Assemble appends the encoded signature to the request's transport string
// and applies the template's encoding mode to the whole query.
func Assemble(req *canonical.SignableRequest, signature string) string {
	t := req.Template()
	param := t.SignatureParam
	if param == "" {
		param = canonical.DefaultSignatureParam
	}
	query := req.TransportString() + "&" + param + "=" + encoding.Encode(signature)
	if t.EncodingMode == canonical.EncodingModeStrict {
		return query
	}
	return encoding.ApplyCompatShim(query)
}

const upperhex = "0123456789ABCDEF"

// NormalizeWireQuery percent-encodes the bytes that may not appear in a
// request-target query: anything outside unreserved, sub-delims, ':', '@',
// '/', '?' and '%', plus any '%' not followed by two hex digits. Existing
// escapes are left alone, so the counterparty decodes the same text the
// reference client would have sent.
func NormalizeWireQuery(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '%':
			if i+2 < len(query) && isHex(query[i+1]) && isHex(query[i+2]) {
				b.WriteByte(c)
			} else {
				b.WriteString("%25")
			}
		case allowedInQuery(c):
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&15])
		}
	}
	return b.String()
}

func allowedInQuery(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-._~!$&'()*+,;=:@/?", c) >= 0
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
