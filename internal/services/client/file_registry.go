package client

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"

	"egiro-gateway/internal/models"
	"egiro-gateway/internal/services/canonical"
	"egiro-gateway/internal/services/reference"
	"egiro-gateway/pkg/errors"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

type clientsFile struct {
	Clients map[string]map[string]models.ClientProfile `yaml:"clients"`
}

// FileRegistry serves profiles loaded from a YAML file keyed by tenant slug
// and then environment. Only ${NAME} references are expanded from the
// process environment, so secrets stay out of the file.
type FileRegistry struct {
	environment string
	profiles    map[string]*models.ClientProfile
	logger      *zap.Logger
}

// LoadFileRegistry reads path and keeps the records for environment.
// Tenants without a record for environment are skipped; every kept record
// must reference a known template and reference format.
func LoadFileRegistry(path, environment string, templates *canonical.Registry, logger *zap.Logger) (*FileRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapDomainError(err, errors.KindConfiguration, errors.CodeConfiguration, "invalid client configuration", "clients file unreadable")
	}
	expanded := envPattern.ReplaceAllStringFunc(string(data), func(ref string) string {
		return os.Getenv(envPattern.FindStringSubmatch(ref)[1])
	})

	var file clientsFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, errors.WrapDomainError(err, errors.KindConfiguration, errors.CodeConfiguration, "invalid client configuration", "clients file is not valid YAML")
	}

	registry := &FileRegistry{
		environment: environment,
		profiles:    make(map[string]*models.ClientProfile, len(file.Clients)),
		logger:      logger,
	}
	for slug, envs := range file.Clients {
		record, ok := envs[environment]
		if !ok {
			logger.Warn("client has no profile for environment", zap.String("client_slug", slug), zap.String("environment", environment))
			continue
		}
		profile := record
		profile.Slug = slug
		profile.Environment = environment
		if profile.Template == "" {
			profile.Template = canonical.TemplateCreationV3
		}
		if profile.ReferenceFormat == "" {
			profile.ReferenceFormat = reference.FormatDateFirst
		}
		if err := profile.Validate(); err != nil {
			return nil, err
		}
		if templates != nil && !templates.Has(profile.Template) {
			return nil, errors.NewConfigurationError(fmt.Sprintf("client %s: unknown template %q", slug, profile.Template))
		}
		if _, err := reference.LookupFormat(profile.ReferenceFormat); err != nil {
			return nil, errors.NewConfigurationError(fmt.Sprintf("client %s: unknown reference format %q", slug, profile.ReferenceFormat))
		}
		registry.profiles[slug] = &profile
	}

	logger.Info("client profiles loaded",
		zap.Int("count", len(registry.profiles)),
		zap.String("environment", environment),
	)
	return registry, nil
}

func (r *FileRegistry) GetProfile(ctx context.Context, slug string) (*models.ClientProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapDomainError(err, errors.KindInternal, errors.CodeInternal, "client lookup cancelled", "context cancelled")
	}
	profile, ok := r.profiles[slug]
	if !ok {
		return nil, errors.NewConfigurationError(fmt.Sprintf("unknown client %q in environment %s", slug, r.environment))
	}
	return copyProfile(profile), nil
}

// Slugs lists the configured tenants in sorted order.
func (r *FileRegistry) Slugs() []string {
	slugs := make([]string, 0, len(r.profiles))
	for slug := range r.profiles {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
