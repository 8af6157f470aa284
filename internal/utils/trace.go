package utils

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const zeroTraceID = "00000000000000000000000000000000"

// ExtractTraceID returns the trace id of a version-00 W3C traceparent
// (00-<32 hex>-<16 hex>-<2 hex>), or "" when the header is malformed or
// carries the all-zero id.
func ExtractTraceID(traceparent string) string {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 || parts[0] != "00" {
		return ""
	}
	traceID, spanID, flags := parts[1], parts[2], parts[3]
	if len(traceID) != 32 || len(spanID) != 16 || len(flags) != 2 {
		return ""
	}
	if !isLowerHex(traceID) || !isLowerHex(spanID) || !isLowerHex(flags) {
		return ""
	}
	if traceID == zeroTraceID {
		return ""
	}
	return traceID
}

// GenerateTraceparent returns a sampled traceparent with fresh ids.
func GenerateTraceparent() string {
	traceID := strings.ReplaceAll(uuid.New().String(), "-", "")
	spanID := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	return "00-" + traceID + "-" + spanID + "-01"
}

// EnsureTraceparent keeps a valid inbound traceparent and replaces anything
// else with a generated one.
func EnsureTraceparent(traceparent string) string {
	if ExtractTraceID(traceparent) == "" {
		return GenerateTraceparent()
	}
	return traceparent
}

func isLowerHex(s string) bool {
	if strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
