package reference

import (
	"fmt"

	"egiro-gateway/pkg/errors"
)

// PartKind names one segment of a transaction reference.
type PartKind string

const (
	PartClientID PartKind = "client_id"
	PartTime     PartKind = "time"
	PartLiteral  PartKind = "literal"
	PartRandom   PartKind = "random"
)

// Part is one segment. Layout is a Go time layout for PartTime, Literal the
// fixed text for PartLiteral, Width the digit count for PartRandom (0 fills
// whatever length remains).
type Part struct {
	Kind    PartKind
	Layout  string
	Literal string
	Width   int
}

// Format describes a transaction reference layout and its mandated length.
// The fill part absorbs whatever the client id and time leave over, so a
// shorter client id gets more random digits.
type Format struct {
	Name   string
	Length int
	Parts  []Part
}

const (
	FormatDateFirst       = "date-first"
	FormatYearSuffixFirst = "year-suffix-first"
	FormatSpaced          = "spaced"

	// ReferenceLength is the length of boTransactionRefNo in the primary format.
	ReferenceLength = 35
)

var builtinFormats = map[string]Format{
	FormatDateFirst: {
		Name:   FormatDateFirst,
		Length: ReferenceLength,
		Parts: []Part{
			{Kind: PartClientID},
			{Kind: PartTime, Layout: "20060102150405"},
			{Kind: PartRandom},
		},
	},
	FormatYearSuffixFirst: {
		Name:   FormatYearSuffixFirst,
		Length: ReferenceLength,
		Parts: []Part{
			{Kind: PartClientID},
			{Kind: PartTime, Layout: "060102150405"},
			{Kind: PartRandom},
		},
	},
	FormatSpaced: {
		Name:   FormatSpaced,
		Length: ReferenceLength,
		Parts: []Part{
			{Kind: PartClientID},
			{Kind: PartLiteral, Literal: " "},
			{Kind: PartTime, Layout: "20060102150405"},
			{Kind: PartRandom},
		},
	},
}

// LookupFormat returns the built-in format with the given name. An empty name
// selects the primary date-first format.
func LookupFormat(name string) (Format, error) {
	if name == "" {
		name = FormatDateFirst
	}
	f, ok := builtinFormats[name]
	if !ok {
		return Format{}, errors.NewConfigurationError(fmt.Sprintf("unknown reference format %q", name))
	}
	parts := make([]Part, len(f.Parts))
	copy(parts, f.Parts)
	f.Parts = parts
	return f, nil
}

// FormatNames lists the built-in format names.
func FormatNames() []string {
	return []string{FormatDateFirst, FormatYearSuffixFirst, FormatSpaced}
}
