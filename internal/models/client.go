package models

import (
	"fmt"
	"net"
	"strings"

	"egiro-gateway/pkg/errors"
)

const (
	ClientStatusActive    = "ACTIVE"
	ClientStatusSuspended = "SUSPENDED"
)

// PGPSettings locate a tenant's signing key. Key bytes are read at call time.
// Fingerprint, IssuerKeyID and IssuerID (the key's user id email) each select
// the signing key inside the key file, in that order of preference.
type PGPSettings struct {
	PrivateKeyPath string `yaml:"private_key_path"`
	Passphrase     string `yaml:"passphrase"`
	Fingerprint    string `yaml:"fingerprint"`
	IssuerID       string `yaml:"issuer_id"`
	IssuerKeyID    string `yaml:"issuer_key_id"`
	// AggregatorPublicKeyPath overrides the gateway-wide aggregator key.
	AggregatorPublicKeyPath string `yaml:"aggregator_public_key_path"`
}

// ClientProfile is one tenant's configuration in one environment. It is
// resolved once per call and never mutated.
type ClientProfile struct {
	Slug               string      `yaml:"-"`
	Environment        string      `yaml:"-"`
	Status             string      `yaml:"status"`
	ClientID           string      `yaml:"client_id"`
	APIKey             string      `yaml:"x_api_key"`
	ApplicantBankCode  string      `yaml:"applicant_bank_code"`
	BOName             string      `yaml:"bo_name"`
	AggregatorKeyAlias string      `yaml:"aggregator_key_alias"`
	SignKeyAlias       string      `yaml:"sign_key_alias"`
	Template           string      `yaml:"template"`
	ReferenceFormat    string      `yaml:"reference_format"`
	AllowedCIDRs       []string    `yaml:"allowed_cidrs"`
	PGP                PGPSettings `yaml:"pgp"`
}

// SignerSelector returns the most specific configured key selector, or ""
// to use the first key in the file.
func (p PGPSettings) SignerSelector() string {
	for _, v := range []string{p.Fingerprint, p.IssuerKeyID, p.IssuerID} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *ClientProfile) IsActive() bool {
	return c.Status == "" || c.Status == ClientStatusActive
}

// ValidateIP reports whether ip may act for this tenant. No allowlist means
// any caller is accepted.
func (c *ClientProfile) ValidateIP(ip string) bool {
	if len(c.AllowedCIDRs) == 0 {
		return true
	}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, cidrStr := range c.AllowedCIDRs {
		_, ipNet, err := net.ParseCIDR(cidrStr)
		if err != nil {
			continue
		}
		if ipNet.Contains(parsedIP) {
			return true
		}
	}
	return false
}

// MaskedAPIKey keeps the last four characters of the api key.
func (c *ClientProfile) MaskedAPIKey() string {
	return MaskSecret(c.APIKey)
}

// Validate checks the fields every flow needs.
func (c *ClientProfile) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.APIKey == "" {
		missing = append(missing, "x_api_key")
	}
	if c.AggregatorKeyAlias == "" {
		missing = append(missing, "aggregator_key_alias")
	}
	if c.PGP.PrivateKeyPath == "" {
		missing = append(missing, "pgp.private_key_path")
	}
	if len(missing) > 0 {
		return errors.NewConfigurationError(fmt.Sprintf("client %s/%s: missing %s", c.Slug, c.Environment, strings.Join(missing, ", ")))
	}
	for _, cidr := range c.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return errors.NewConfigurationError(fmt.Sprintf("client %s/%s: invalid allowed cidr %q", c.Slug, c.Environment, cidr))
		}
	}
	return nil
}

// MaskSecret replaces all but the last four characters with '*'.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
