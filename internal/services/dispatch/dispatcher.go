package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"egiro-gateway/internal/models"
	"egiro-gateway/internal/services/circuitbreaker"
	"egiro-gateway/pkg/errors"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// TLSConfig holds optional mutual TLS material.
type TLSConfig struct {
	CertPath string
	KeyPath  string
	CAPath   string
}

// Config for the outbound client.
type Config struct {
	Timeout time.Duration
	TLS     TLSConfig
}

// Dispatcher sends assembled requests to the counterparty. It never follows
// redirects and never retries.
type Dispatcher struct {
	client   *http.Client
	breakers *circuitbreaker.Set
	logger   *zap.Logger
}

// NewDispatcher builds the HTTP client. A nil breaker set disables circuit
// breaking.
func NewDispatcher(cfg Config, breakers *circuitbreaker.Set, logger *zap.Logger) (*Dispatcher, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}
	return NewDispatcherWithTransport(cfg, transport, breakers, logger), nil
}

// NewDispatcherWithTransport uses base as the underlying round tripper.
func NewDispatcherWithTransport(cfg Config, base http.RoundTripper, breakers *circuitbreaker.Set, logger *zap.Logger) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(base),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		breakers: breakers,
		logger:   logger,
	}
}

func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if cfg.CertPath == "" && cfg.KeyPath == "" && cfg.CAPath == "" {
		return nil, nil
	}
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CertPath != "" || cfg.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, errors.WrapDomainError(err, errors.KindConfiguration, errors.CodeConfiguration, "invalid mutual TLS configuration", "client certificate could not be loaded")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if cfg.CAPath != "" {
		pem, err := os.ReadFile(cfg.CAPath)
		if err != nil {
			return nil, errors.WrapDomainError(err, errors.KindConfiguration, errors.CodeConfiguration, "invalid mutual TLS configuration", "CA bundle could not be read")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.NewDomainError(errors.KindConfiguration, errors.CodeConfiguration, "invalid mutual TLS configuration", "CA bundle holds no certificates")
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// Get sends a GET with rawQuery appended to baseURL.
func (d *Dispatcher) Get(ctx context.Context, flow, baseURL, rawQuery string, headers map[string]string) (*models.DispatchOutcome, error) {
	u, err := parseURL(baseURL)
	if err != nil {
		return nil, err
	}
	u.RawQuery = NormalizeWireQuery(rawQuery)
	return d.do(ctx, flow, http.MethodGet, u, nil, headers)
}

// Post sends body with the given content type.
func (d *Dispatcher) Post(ctx context.Context, flow, target, contentType string, body []byte, headers map[string]string) (*models.DispatchOutcome, error) {
	u, err := parseURL(target)
	if err != nil {
		return nil, err
	}
	all := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		all[k] = v
	}
	all["Content-Type"] = contentType
	return d.do(ctx, flow, http.MethodPost, u, body, all)
}

func parseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.NewConfigurationError("counterparty URL is not configured")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.NewConfigurationError(fmt.Sprintf("invalid counterparty URL %q", raw))
	}
	return u, nil
}

func (d *Dispatcher) do(ctx context.Context, flow, method string, u *url.URL, body []byte, headers map[string]string) (*models.DispatchOutcome, error) {
	var outcome *models.DispatchOutcome
	send := func(ctx context.Context) error {
		outcome = d.send(ctx, method, u, body, headers)
		if outcome.Classification == models.ClassTransport {
			return outcome.Err
		}
		if outcome.Classification == models.ClassServerError {
			return fmt.Errorf("counterparty status %d", outcome.Status)
		}
		return nil
	}

	var err error
	if d.breakers != nil {
		err = d.breakers.Get(flow).Execute(ctx, send)
	} else {
		err = send(ctx)
	}
	if outcome == nil {
		d.logger.Warn("counterparty circuit open, request not sent",
			zap.String("flow", flow),
			zap.String("url", urlWithoutQuery(u)),
			zap.Error(err),
		)
		return nil, errors.WrapDomainError(err, errors.KindCounterpartyUnavailable, errors.CodeCircuitOpen, "counterparty unavailable", flow).WithRetryable(true)
	}

	d.logger.Info("counterparty responded",
		zap.String("flow", flow),
		zap.String("method", method),
		zap.String("url", urlWithoutQuery(u)),
		zap.Int("status", outcome.Status),
		zap.String("classification", string(outcome.Classification)),
		zap.Duration("duration", outcome.Duration),
	)
	return outcome, nil
}

func (d *Dispatcher) send(ctx context.Context, method string, u *url.URL, body []byte, headers map[string]string) *models.DispatchOutcome {
	start := time.Now()
	outcome := &models.DispatchOutcome{Method: method, URL: u.String()}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		outcome.Classification = models.ClassTransport
		outcome.Err = err
		return outcome
	}
	// Literal map assignment keeps header names exactly as the counterparty
	// documents them.
	for name, value := range headers {
		req.Header[name] = []string{value}
	}

	resp, err := d.client.Do(req)
	outcome.Duration = time.Since(start)
	if err != nil {
		outcome.Classification = models.ClassTransport
		outcome.Err = err
		return outcome
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil && !stderrors.Is(err, io.EOF) {
		d.logger.Warn("failed to read counterparty body", zap.Error(err))
	}
	outcome.Status = resp.StatusCode
	outcome.Body = string(data)
	outcome.Headers = selectHeaders(resp.Header)
	outcome.Location = resp.Header.Get("Location")
	outcome.Classification = models.Classify(resp.StatusCode, outcome.Location)
	outcome.Duration = time.Since(start)
	return outcome
}

func selectHeaders(h http.Header) http.Header {
	out := make(http.Header)
	for name, values := range h {
		switch {
		case name == "Location", name == "Content-Type", name == "Date", name == "Content-Length":
		case strings.HasPrefix(name, "X-"):
		default:
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}

func urlWithoutQuery(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	return c.String()
}
