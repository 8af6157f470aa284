package egiro

import (
	"context"

	egirosvc "egiro-gateway/internal/services/egiro"
)

// Engine runs the outbound eGIRO flows.
type Engine interface {
	AuthorizeCreation(ctx context.Context, slug string, overrides egirosvc.AuthorizeOverrides) (*egirosvc.Report, error)
	ConnectivityTest(ctx context.Context, slug string) (*egirosvc.Report, error)
	EddaStatus(ctx context.Context, slug, boTransactionRefNo string) (*egirosvc.Report, error)
}

// Pinger is a dependency the readiness check can check.
type Pinger interface {
	Ping(ctx context.Context) error
}
