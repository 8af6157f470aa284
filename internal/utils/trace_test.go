package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTraceID(t *testing.T) {
	tests := []struct {
		name        string
		traceparent string
		want        string
	}{
		{"valid", "00-4bf92f3577b34da6a811ce9a12345678-1234567890abcdef-01", "4bf92f3577b34da6a811ce9a12345678"},
		{"empty", "", ""},
		{"garbage", "invalid-format", ""},
		{"unknown version", "01-4bf92f3577b34da6a811ce9a12345678-1234567890abcdef-01", ""},
		{"short", "00-abc", ""},
		{"upper case", "00-4BF92F3577B34DA6A811CE9A12345678-1234567890abcdef-01", ""},
		{"non hex", "00-4bf92f3577b34da6a811ce9a1234567z-1234567890abcdef-01", ""},
		{"zero trace id", "00-00000000000000000000000000000000-1234567890abcdef-01", ""},
		{"short span id", "00-4bf92f3577b34da6a811ce9a12345678-12345678-01", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTraceID(tt.traceparent))
		})
	}
}

func TestGenerateTraceparent_ValidFormat(t *testing.T) {
	traceparent := GenerateTraceparent()

	parts := strings.Split(traceparent, "-")
	assert.Equal(t, 4, len(parts))
	assert.Equal(t, "00", parts[0])
	assert.Equal(t, 32, len(parts[1]))
	assert.Equal(t, 16, len(parts[2]))
	assert.Equal(t, "01", parts[3])
	assert.NotEmpty(t, ExtractTraceID(traceparent))
}

func TestGenerateTraceparent_Unique(t *testing.T) {
	assert.NotEqual(t, GenerateTraceparent(), GenerateTraceparent())
}

func TestEnsureTraceparent(t *testing.T) {
	valid := "00-4bf92f3577b34da6a811ce9a12345678-1234567890abcdef-01"
	assert.Equal(t, valid, EnsureTraceparent(valid))

	generated := EnsureTraceparent("00-nothex")
	assert.NotEqual(t, "00-nothex", generated)
	assert.NotEmpty(t, ExtractTraceID(generated))

	assert.NotEmpty(t, ExtractTraceID(EnsureTraceparent("")))
}
