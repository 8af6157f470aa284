package reference

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"egiro-gateway/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	NonceLength     = 20
	DDARefNoLength  = 26
	DDARandomDigits = 9

	KindNonce       = "nonce"
	KindRequestID   = "request_id"
	KindTransaction = "transaction_ref"

	defaultMaxAttempts = 5
)

// Reserver records issued identifiers and reports whether a value is new.
type Reserver interface {
	Reserve(ctx context.Context, kind, value string) (bool, error)
}

// Generator produces request identifiers. It holds no per-request state.
type Generator struct {
	now         func() time.Time
	random      io.Reader
	reserver    Reserver
	maxAttempts int
	logger      *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRandom overrides the randomness source.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.random = r }
}

// WithReserver enables cross-replica uniqueness checks.
func WithReserver(r Reserver) Option {
	return func(g *Generator) { g.reserver = r }
}

// NewGenerator creates a generator backed by crypto/rand and the wall clock.
func NewGenerator(logger *zap.Logger, opts ...Option) *Generator {
	g := &Generator{
		now:         time.Now,
		random:      rand.Reader,
		maxAttempts: defaultMaxAttempts,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// RequestID returns a random UUID v4.
func (g *Generator) RequestID(ctx context.Context) (string, error) {
	return g.unique(ctx, KindRequestID, func() (string, error) {
		id, err := uuid.NewRandomFromReader(g.random)
		if err != nil {
			return "", err
		}
		return id.String(), nil
	})
}

// Nonce returns 20 decimal digits. The first digit is never zero.
func (g *Generator) Nonce(ctx context.Context) (string, error) {
	return g.unique(ctx, KindNonce, func() (string, error) {
		first, err := g.digits(1, 9)
		if err != nil {
			return "", err
		}
		first[0]++
		rest, err := g.digits(NonceLength-1, 10)
		if err != nil {
			return "", err
		}
		return string(first) + string(rest), nil
	})
}

// Timestamp returns the current time in Unix milliseconds.
func (g *Generator) Timestamp() string {
	return strconv.FormatInt(g.now().UnixMilli(), 10)
}

// TransactionReference builds a boTransactionRefNo for clientID using format.
// A client id too long to leave room for random digits is a configuration
// error.
func (g *Generator) TransactionReference(ctx context.Context, clientID string, format Format) (string, error) {
	if clientID == "" {
		return "", errors.NewConfigurationError("client id is required for a transaction reference")
	}
	return g.unique(ctx, KindTransaction, func() (string, error) {
		return g.buildReference(clientID, format)
	})
}

// DDARefNo returns an auto-generated boDDARefNo of 26 characters: eDDA, the
// time in hex seconds and microseconds, and nine random digits.
func (g *Generator) DDARefNo() (string, error) {
	now := g.now()
	suffix, err := g.digits(DDARandomDigits, 10)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("eDDA%08x%05x%s", now.Unix(), now.Nanosecond()/1000, suffix), nil
}

func (g *Generator) buildReference(clientID string, format Format) (string, error) {
	now := g.now()
	fixed := 0
	fill := -1
	rendered := make([]string, len(format.Parts))
	for i, part := range format.Parts {
		switch part.Kind {
		case PartClientID:
			rendered[i] = clientID
		case PartTime:
			rendered[i] = now.Format(part.Layout)
		case PartLiteral:
			rendered[i] = part.Literal
		case PartRandom:
			if part.Width == 0 {
				if fill >= 0 {
					return "", errors.NewConfigurationError(fmt.Sprintf("reference format %s has more than one fill part", format.Name))
				}
				fill = i
				continue
			}
		default:
			return "", errors.NewConfigurationError(fmt.Sprintf("reference format %s: unknown part %q", format.Name, part.Kind))
		}
		if part.Kind == PartRandom {
			fixed += part.Width
		} else {
			fixed += len(rendered[i])
		}
	}

	for i, part := range format.Parts {
		if part.Kind != PartRandom {
			continue
		}
		width := part.Width
		if i == fill {
			width = format.Length - fixed
			if width < 1 {
				return "", errors.NewConfigurationError(fmt.Sprintf("reference format %s leaves no room for random digits", format.Name))
			}
		}
		digits, err := g.digits(width, 10)
		if err != nil {
			return "", err
		}
		rendered[i] = string(digits)
	}

	ref := strings.Join(rendered, "")
	if len(ref) != format.Length {
		return "", errors.NewConfigurationError(fmt.Sprintf("reference format %s produced %d characters, want %d", format.Name, len(ref), format.Length))
	}
	return ref, nil
}

// digits returns n ASCII digits, each uniform in [0, max).
func (g *Generator) digits(n int, max byte) ([]byte, error) {
	out := make([]byte, 0, n)
	limit := 256 - 256%int(max)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return nil, fmt.Errorf("read randomness: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, '0'+b%max)
			if len(out) == n {
				break
			}
		}
	}
	return out, nil
}

// unique draws values until the reserver accepts one. Reserver failures are
// logged and the last drawn value is used.
func (g *Generator) unique(ctx context.Context, kind string, draw func() (string, error)) (string, error) {
	for attempt := 1; ; attempt++ {
		value, err := draw()
		if err != nil {
			return "", errors.WrapDomainError(err, errors.KindInternal, errors.CodeInternal, "identifier generation failed", kind)
		}
		if g.reserver == nil {
			return value, nil
		}
		ok, err := g.reserver.Reserve(ctx, kind, value)
		if err != nil {
			g.logger.Warn("identifier reservation unavailable, using unreserved value",
				zap.String("kind", kind),
				zap.Error(err),
			)
			return value, nil
		}
		if ok {
			return value, nil
		}
		if attempt >= g.maxAttempts {
			return "", errors.NewDomainError(errors.KindInternal, errors.CodeInternal, "identifier generation failed", fmt.Sprintf("%s collided %d times", kind, attempt))
		}
		g.logger.Debug("identifier collision, drawing again", zap.String("kind", kind), zap.Int("attempt", attempt))
	}
}
