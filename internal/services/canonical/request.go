package canonical

import (
	"fmt"
	"strings"

	"egiro-gateway/internal/services/encoding"
	"egiro-gateway/pkg/errors"
)

// SignableRequest is the ordered, read-only snapshot of the parameters that
// get signed. Reordering changes the signed bytes.
//
// Values are embedded verbatim in the SignString: a value containing '&' or
// '=' cannot be told apart from a field boundary there.
type SignableRequest struct {
	template Template
	pairs    [][2]string
}

// NewSignableRequest resolves values against the template. Required keys must
// be non-empty; optional keys are kept only when non-empty; unknown keys are
// dropped.
func NewSignableRequest(t Template, values map[string]string) (*SignableRequest, error) {
	pairs := make([][2]string, 0, len(t.Fields))
	var missing []string
	for _, f := range t.Fields {
		v := values[f.Key]
		if v == "" {
			if !f.Optional {
				missing = append(missing, f.Key)
			}
			continue
		}
		pairs = append(pairs, [2]string{f.Key, v})
	}
	if len(missing) > 0 {
		return nil, errors.NewValidationError(fmt.Sprintf("template %s: missing required fields: %s", t.Name, strings.Join(missing, ", ")))
	}
	return &SignableRequest{template: t, pairs: pairs}, nil
}

// Template returns the template the request was built from.
func (r *SignableRequest) Template() Template {
	return r.template
}

// SignString is k=v&k=v in template order with values left unencoded.
func (r *SignableRequest) SignString() string {
	var b strings.Builder
	for i, kv := range r.pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv[0])
		b.WriteByte('=')
		b.WriteString(kv[1])
	}
	return b.String()
}

// TransportString is the same pairs percent-encoded for the wire.
func (r *SignableRequest) TransportString() string {
	return encoding.EncodePairs(r.pairs)
}

// SigningInput returns the exact bytes the template says to sign.
func (r *SignableRequest) SigningInput() string {
	if r.template.SignMode == SignModeTransport {
		return encoding.ApplyCompatShim(r.TransportString())
	}
	return r.SignString()
}

// Pairs returns a copy of the ordered key/value pairs.
func (r *SignableRequest) Pairs() [][2]string {
	out := make([][2]string, len(r.pairs))
	copy(out, r.pairs)
	return out
}

// Value returns the value for key and whether it is present.
func (r *SignableRequest) Value(key string) (string, bool) {
	for _, kv := range r.pairs {
		if kv[0] == key {
			return kv[1], true
		}
	}
	return "", false
}

// Keys returns the emitted keys in order.
func (r *SignableRequest) Keys() []string {
	keys := make([]string, len(r.pairs))
	for i, kv := range r.pairs {
		keys[i] = kv[0]
	}
	return keys
}

// Params returns the emitted pairs as a map, for diagnostics only.
func (r *SignableRequest) Params() map[string]string {
	out := make(map[string]string, len(r.pairs))
	for _, kv := range r.pairs {
		out[kv[0]] = kv[1]
	}
	return out
}
