package canonical

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"egiro-gateway/pkg/errors"

	"gopkg.in/yaml.v3"
)

// SignMode selects which serialization the signature is computed over.
type SignMode string

const (
	// SignModeRaw signs the unencoded SignString.
	SignModeRaw SignMode = "raw"
	// SignModeTransport signs the shimmed TransportString.
	SignModeTransport SignMode = "transport"
)

// EncodingMode selects whether the whole-string compat shim is applied to the
// assembled query.
type EncodingMode string

const (
	EncodingModeCompat EncodingMode = "compat"
	EncodingModeStrict EncodingMode = "strict"
)

const DefaultSignatureParam = "signature"

// Field is one canonical key. Optional keys are emitted only when non-empty.
type Field struct {
	Key      string `yaml:"key"`
	Optional bool   `yaml:"optional"`
}

// Template is an ordered field list plus the rules that surround it. Each
// aggregator protocol revision is one Template.
type Template struct {
	Name           string       `yaml:"name"`
	Fields         []Field      `yaml:"fields"`
	SignMode       SignMode     `yaml:"signMode"`
	EncodingMode   EncodingMode `yaml:"encodingMode"`
	SignatureParam string       `yaml:"signatureParam"`
}

// Validate checks the template is usable and fills defaults.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("template %s: at least one field is required", t.Name)
	}
	seen := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		if f.Key == "" {
			return fmt.Errorf("template %s: empty field key", t.Name)
		}
		if _, dup := seen[f.Key]; dup {
			return fmt.Errorf("template %s: duplicate field %q", t.Name, f.Key)
		}
		seen[f.Key] = struct{}{}
	}
	switch t.SignMode {
	case "":
		t.SignMode = SignModeRaw
	case SignModeRaw, SignModeTransport:
	default:
		return fmt.Errorf("template %s: unknown sign mode %q", t.Name, t.SignMode)
	}
	switch t.EncodingMode {
	case "":
		t.EncodingMode = EncodingModeCompat
	case EncodingModeCompat, EncodingModeStrict:
	default:
		return fmt.Errorf("template %s: unknown encoding mode %q", t.Name, t.EncodingMode)
	}
	if t.SignatureParam == "" {
		t.SignatureParam = DefaultSignatureParam
	}
	if _, clash := seen[t.SignatureParam]; clash {
		return fmt.Errorf("template %s: signature param %q collides with a field", t.Name, t.SignatureParam)
	}
	return nil
}

func required(key string) Field { return Field{Key: key} }
func optional(key string) Field { return Field{Key: key, Optional: true} }

const (
	TemplateCreationV3      = "creation-v3"
	TemplateCreationV2      = "creation-v2"
	TemplateCreationMinimal = "creation-minimal"
)

// BuiltinTemplates returns fresh copies of the creation templates observed
// across aggregator revisions.
func BuiltinTemplates() []Template {
	return []Template{
		{
			Name: TemplateCreationV3,
			Fields: []Field{
				required("applicantBankCode"),
				required("boName"),
				required("boTransactionRefNo"),
				required("clientID"),
				optional("purpose"),
				required("requestID"),
				required("requestType"),
				required("segment"),
				optional("boDDARefNo"),
				optional("signKeyAlias"),
				required("nonce"),
				required("timestamp"),
			},
			SignMode:       SignModeRaw,
			EncodingMode:   EncodingModeCompat,
			SignatureParam: DefaultSignatureParam,
		},
		{
			Name: TemplateCreationV2,
			Fields: []Field{
				required("clientID"),
				required("requestID"),
				required("nonce"),
				required("timestamp"),
				optional("signKeyAlias"),
				required("boName"),
				required("applicantBankCode"),
				required("boTransactionRefNo"),
				optional("boDDARefNo"),
				required("requestType"),
				required("segment"),
				optional("purpose"),
			},
			SignMode:       SignModeRaw,
			EncodingMode:   EncodingModeCompat,
			SignatureParam: DefaultSignatureParam,
		},
		{
			Name: TemplateCreationMinimal,
			Fields: []Field{
				required("clientID"),
				required("requestID"),
				required("nonce"),
				required("timestamp"),
				required("applicantBankCode"),
				required("boTransactionRefNo"),
				required("requestType"),
				optional("boDDARefNo"),
				optional("signKeyAlias"),
			},
			SignMode:       SignModeRaw,
			EncodingMode:   EncodingModeCompat,
			SignatureParam: DefaultSignatureParam,
		},
	}
}

// Registry resolves templates by name. It is read-only after construction.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry builds a registry from the given templates; later entries win.
func NewRegistry(templates ...Template) (*Registry, error) {
	r := &Registry{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewBuiltinRegistry returns a registry holding the built-in templates.
func NewBuiltinRegistry() *Registry {
	r, err := NewRegistry(BuiltinTemplates()...)
	if err != nil {
		panic(fmt.Sprintf("builtin templates invalid: %v", err))
	}
	return r
}

func (r *Registry) add(t Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	fields := make([]Field, len(t.Fields))
	copy(fields, t.Fields)
	t.Fields = fields

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Name] = t
	return nil
}

// Get returns a copy of the named template.
func (r *Registry) Get(name string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[name]
	if !ok {
		return Template{}, errors.NewConfigurationError(fmt.Sprintf("unknown request template %q", name))
	}
	fields := make([]Field, len(t.Fields))
	copy(fields, t.Fields)
	t.Fields = fields
	return t, nil
}

// Has reports whether the named template exists.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// Names lists template names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadRegistry returns the built-in templates overlaid with those defined in
// the YAML file at path. An empty path yields the built-ins only.
func LoadRegistry(path string) (*Registry, error) {
	templates := BuiltinTemplates()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read templates file: %w", err)
		}
		var file templateFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse templates file: %w", err)
		}
		templates = append(templates, file.Templates...)
	}
	return NewRegistry(templates...)
}
