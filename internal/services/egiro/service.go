package egiro

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"egiro-gateway/internal/models"
	"egiro-gateway/internal/services/canonical"
	"egiro-gateway/internal/services/dispatch"
	"egiro-gateway/internal/services/encoding"
	"egiro-gateway/internal/services/interpreter"
	"egiro-gateway/internal/services/pgp"
	"egiro-gateway/internal/services/reference"
	"egiro-gateway/internal/services/tracing"
	"egiro-gateway/pkg/errors"

	"go.uber.org/zap"
)

const (
	DefaultRequestType = "Creation"
	DefaultSegment     = "Retail"

	// AutoDDARefNo asks the gateway to generate boDDARefNo.
	AutoDDARefNo = "auto"

	connectivityMessage = "This is a test message"
	eddaRefLength       = reference.ReferenceLength

	headerAPIKey = "x-api-key"
)

type ProfileProvider interface {
	GetProfile(ctx context.Context, slug string) (*models.ClientProfile, error)
}

type TemplateSource interface {
	Get(name string) (canonical.Template, error)
}

type IdentifierSource interface {
	RequestID(ctx context.Context) (string, error)
	Nonce(ctx context.Context) (string, error)
	Timestamp() string
	TransactionReference(ctx context.Context, clientID string, format reference.Format) (string, error)
	DDARefNo() (string, error)
}

type Signer interface {
	SignDetached(ctx context.Context, message string, key pgp.KeyMaterial) (pgp.SignatureResult, error)
	SignAndEncrypt(ctx context.Context, message []byte, key pgp.KeyMaterial, recipient pgp.PublicKey) (pgp.SignatureResult, error)
}

type Dispatcher interface {
	Get(ctx context.Context, flow, baseURL, rawQuery string, headers map[string]string) (*models.DispatchOutcome, error)
	Post(ctx context.Context, flow, target, contentType string, body []byte, headers map[string]string) (*models.DispatchOutcome, error)
}

type MetricsRecorder interface {
	RecordSigning(operation, result string, duration time.Duration)
	RecordDispatch(flow, classification string, duration time.Duration)
	RecordError(errorCode, flow string)
}

// Endpoints are the aggregator URLs and the gateway-wide aggregator key.
type Endpoints struct {
	AuthorizeCreationURL string
	ConnectivityTestURL  string
	EddaStatusURL        string
	PublicKeyPath        string
	PublicKeyFingerprint string
}

// AuthorizeOverrides are the caller-supplied values for an authorization.
// Empty fields fall back to the tenant profile or the flow defaults.
type AuthorizeOverrides struct {
	RequestType       string
	Segment           string
	Purpose           string
	BoDDARefNo        string
	BoName            string
	ApplicantBankCode string
}

// Service runs the three eGIRO flows. It keeps no per-call state.
type Service struct {
	endpoints  Endpoints
	profiles   ProfileProvider
	templates  TemplateSource
	ids        IdentifierSource
	signer     Signer
	keys       pgp.KeyLoader
	dispatcher Dispatcher
	metrics    MetricsRecorder
	tracer     *tracing.Service
	logger     *zap.Logger
}

func NewService(
	endpoints Endpoints,
	profiles ProfileProvider,
	templates TemplateSource,
	ids IdentifierSource,
	signer Signer,
	keys pgp.KeyLoader,
	dispatcher Dispatcher,
	metrics MetricsRecorder,
	tracer *tracing.Service,
	logger *zap.Logger,
) *Service {
	if tracer == nil {
		tracer = tracing.NewService("egiro-gateway")
	}
	return &Service{
		endpoints:  endpoints,
		profiles:   profiles,
		templates:  templates,
		ids:        ids,
		signer:     signer,
		keys:       keys,
		dispatcher: dispatcher,
		metrics:    metrics,
		tracer:     tracer,
		logger:     logger,
	}
}

// AuthorizeCreation signs the creation parameters and sends them as a GET
// query. A 302 from the counterparty is the expected success.
//
// The returned error is non-nil only when nothing was sent; the report is
// populated in both cases.
func (s *Service) AuthorizeCreation(ctx context.Context, slug string, overrides AuthorizeOverrides) (*Report, error) {
	report := &Report{Flow: FlowAuthorizeCreation}
	report.Request = models.RequestDiagnostics{URL: s.endpoints.AuthorizeCreationURL, Method: http.MethodGet}

	err := s.tracer.Trace(ctx, "egiro.authorize_creation", map[string]string{"egiro.client_slug": slug}, func(ctx context.Context) error {
		profile, err := s.resolveProfile(ctx, slug)
		if err != nil {
			return err
		}
		report.ClientID = profile.ClientID

		template, err := s.templates.Get(profile.Template)
		if err != nil {
			return err
		}
		values, err := s.creationValues(ctx, profile, overrides)
		if err != nil {
			return err
		}
		report.RequestID = values["requestID"]

		req, err := canonical.NewSignableRequest(template, values)
		if err != nil {
			return err
		}
		report.Request.Parameters = req.Params()

		key, err := s.loadKeyMaterial(profile)
		if err != nil {
			return err
		}
		sig, err := s.sign(ctx, "detached", func(ctx context.Context) (pgp.SignatureResult, error) {
			return s.signer.SignDetached(ctx, req.SigningInput(), key.KeyMaterial)
		})
		key.wipe()
		if err != nil {
			return err
		}

		query := dispatch.Assemble(req, sig.Armored)
		report.Request.QueryString = query

		outcome, err := s.dispatcher.Get(ctx, FlowAuthorizeCreation, s.endpoints.AuthorizeCreationURL, query, nil)
		if err != nil {
			return err
		}
		report.Outcome = outcome
		return nil
	})
	return s.finish(report, slug, err)
}

// ConnectivityTest sends a fixed message signed and encrypted to the
// aggregator key.
func (s *Service) ConnectivityTest(ctx context.Context, slug string) (*Report, error) {
	report := &Report{Flow: FlowConnectivityTest}
	report.Request = models.RequestDiagnostics{URL: s.endpoints.ConnectivityTestURL, Method: http.MethodPost}

	err := s.tracer.Trace(ctx, "egiro.connectivity_test", map[string]string{"egiro.client_slug": slug}, func(ctx context.Context) error {
		profile, err := s.resolveProfile(ctx, slug)
		if err != nil {
			return err
		}
		report.ClientID = profile.ClientID

		requestID, err := s.ids.RequestID(ctx)
		if err != nil {
			return err
		}
		report.RequestID = requestID
		headers := s.headers(profile, requestID)
		report.Request.Headers = maskHeaders(headers)
		report.Request.Headers["Content-Type"] = "text/plain"

		payload, err := json.Marshal(struct {
			Message string `json:"message"`
		}{Message: connectivityMessage})
		if err != nil {
			return errors.WrapDomainError(err, errors.KindInternal, errors.CodeInternal, "payload encoding failed", "")
		}
		report.Request.Parameters = map[string]string{"message": connectivityMessage}

		recipient, err := s.loadAggregatorKey(profile)
		if err != nil {
			return err
		}
		key, err := s.loadKeyMaterial(profile)
		if err != nil {
			return err
		}
		sealed, err := s.sign(ctx, "sign_encrypt", func(ctx context.Context) (pgp.SignatureResult, error) {
			return s.signer.SignAndEncrypt(ctx, payload, key.KeyMaterial, recipient)
		})
		key.wipe()
		if err != nil {
			return err
		}

		outcome, err := s.dispatcher.Post(ctx, FlowConnectivityTest, s.endpoints.ConnectivityTestURL, "text/plain", []byte(sealed.Armored), headers)
		if err != nil {
			return err
		}
		report.Outcome = outcome
		return nil
	})
	return s.finish(report, slug, err)
}

// EddaStatus looks up an authorization by its boTransactionRefNo.
func (s *Service) EddaStatus(ctx context.Context, slug, boTransactionRefNo string) (*Report, error) {
	report := &Report{Flow: FlowEddaStatus}
	report.Request = models.RequestDiagnostics{URL: s.endpoints.EddaStatusURL, Method: http.MethodGet}

	err := s.tracer.Trace(ctx, "egiro.edda_status", map[string]string{"egiro.client_slug": slug}, func(ctx context.Context) error {
		if len(boTransactionRefNo) != eddaRefLength {
			return errors.NewValidationError(fmt.Sprintf("boTransactionRefNo must be %d characters, got %d", eddaRefLength, len(boTransactionRefNo)))
		}
		profile, err := s.resolveProfile(ctx, slug)
		if err != nil {
			return err
		}
		report.ClientID = profile.ClientID

		requestID, err := s.ids.RequestID(ctx)
		if err != nil {
			return err
		}
		report.RequestID = requestID
		headers := s.headers(profile, requestID)
		headers["Accept"] = "application/json"
		report.Request.Headers = maskHeaders(headers)

		query := "boTransactionRefNo=" + encoding.Encode(boTransactionRefNo)
		report.Request.Parameters = map[string]string{"boTransactionRefNo": boTransactionRefNo}
		report.Request.QueryString = query

		outcome, err := s.dispatcher.Get(ctx, FlowEddaStatus, s.endpoints.EddaStatusURL, query, headers)
		if err != nil {
			return err
		}
		report.Outcome = outcome
		return nil
	})
	return s.finish(report, slug, err)
}

// resolveProfile reuses the profile the inbound middleware already resolved
// for this call and only asks the provider when none is attached.
func (s *Service) resolveProfile(ctx context.Context, slug string) (*models.ClientProfile, error) {
	if profile, ok := models.ClientProfileFromContext(ctx); ok && profile.Slug == slug {
		return profile, nil
	}
	return s.profiles.GetProfile(ctx, slug)
}

func (s *Service) creationValues(ctx context.Context, profile *models.ClientProfile, o AuthorizeOverrides) (map[string]string, error) {
	format, err := reference.LookupFormat(profile.ReferenceFormat)
	if err != nil {
		return nil, err
	}
	txnRef, err := s.ids.TransactionReference(ctx, profile.ClientID, format)
	if err != nil {
		return nil, err
	}
	requestID, err := s.ids.RequestID(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := s.ids.Nonce(ctx)
	if err != nil {
		return nil, err
	}

	ddaRef := o.BoDDARefNo
	if ddaRef == AutoDDARefNo {
		if ddaRef, err = s.ids.DDARefNo(); err != nil {
			return nil, errors.WrapDomainError(err, errors.KindInternal, errors.CodeInternal, "identifier generation failed", "boDDARefNo")
		}
	}

	return map[string]string{
		"applicantBankCode":  firstNonEmpty(o.ApplicantBankCode, profile.ApplicantBankCode),
		"boName":             firstNonEmpty(o.BoName, profile.BOName),
		"boTransactionRefNo": txnRef,
		"clientID":           profile.ClientID,
		"purpose":            o.Purpose,
		"requestID":          requestID,
		"requestType":        firstNonEmpty(o.RequestType, DefaultRequestType),
		"segment":            firstNonEmpty(o.Segment, DefaultSegment),
		"boDDARefNo":         ddaRef,
		"signKeyAlias":       profile.SignKeyAlias,
		"nonce":              nonce,
		"timestamp":          s.ids.Timestamp(),
	}, nil
}

// headers builds the authentication headers the aggregator expects, names
// spelled exactly as documented.
func (s *Service) headers(profile *models.ClientProfile, requestID string) map[string]string {
	headers := map[string]string{
		"clientID":           profile.ClientID,
		"requestID":          requestID,
		headerAPIKey:         profile.APIKey,
		"aggregatorKeyAlias": profile.AggregatorKeyAlias,
	}
	if profile.SignKeyAlias != "" {
		headers["signKeyAlias"] = profile.SignKeyAlias
	}
	return headers
}

func (s *Service) sign(ctx context.Context, operation string, fn func(context.Context) (pgp.SignatureResult, error)) (pgp.SignatureResult, error) {
	var result pgp.SignatureResult
	start := time.Now()
	err := s.tracer.Trace(ctx, "egiro.sign", map[string]string{"egiro.sign.operation": operation}, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.RecordSigning(operation, outcome, time.Since(start))
	return result, err
}

// secretKey holds private copies of a tenant's key bytes for one call.
type secretKey struct {
	pgp.KeyMaterial
}

func (k *secretKey) wipe() {
	clear(k.PrivateKey)
	clear(k.Passphrase)
}

func (s *Service) loadKeyMaterial(profile *models.ClientProfile) (secretKey, error) {
	data, err := s.keys.Load(profile.PGP.PrivateKeyPath)
	if err != nil {
		return secretKey{}, err
	}
	return secretKey{KeyMaterial: pgp.KeyMaterial{
		PrivateKey:  append([]byte(nil), data...),
		Passphrase:  []byte(profile.PGP.Passphrase),
		Fingerprint: profile.PGP.SignerSelector(),
	}}, nil
}

func (s *Service) loadAggregatorKey(profile *models.ClientProfile) (pgp.PublicKey, error) {
	path := firstNonEmpty(profile.PGP.AggregatorPublicKeyPath, s.endpoints.PublicKeyPath)
	data, err := s.keys.Load(path)
	if err != nil {
		return pgp.PublicKey{}, err
	}
	return pgp.PublicKey{Armored: data, Fingerprint: s.endpoints.PublicKeyFingerprint}, nil
}

func (s *Service) finish(report *Report, slug string, err error) (*Report, error) {
	if err != nil {
		report.Result = interpreter.FromError(err)
		s.metrics.RecordError(report.Result.Code, report.Flow)
		s.logger.Warn("egiro request not sent",
			zap.String("flow", report.Flow),
			zap.String("client_slug", slug),
			zap.String("request_id", report.RequestID),
			zap.String("error_code", report.Result.Code),
			zap.Error(err),
		)
		return report, err
	}

	report.Result = interpreter.Interpret(report.Outcome)
	s.metrics.RecordDispatch(report.Flow, string(report.Outcome.Classification), report.Outcome.Duration)
	if report.Result.Code != "" {
		s.metrics.RecordError(report.Result.Code, report.Flow)
	}
	s.logger.Info("egiro request completed",
		zap.String("flow", report.Flow),
		zap.String("client_slug", slug),
		zap.String("request_id", report.RequestID),
		zap.Int("status", report.Outcome.Status),
		zap.String("result", string(report.Result.Kind)),
		zap.String("code", report.Result.Code),
	)
	return report, nil
}

func maskHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		if k == headerAPIKey {
			v = models.MaskSecret(v)
		}
		out[k] = v
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
