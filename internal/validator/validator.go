package validator

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/comfortablynumb/quizmock/internal/fixtures"
	"github.com/comfortablynumb/quizmock/internal/matcher"
	"github.com/comfortablynumb/quizmock/internal/models"
	"github.com/comfortablynumb/quizmock/internal/template"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var manifestSchema []byte

// ValidationResult represents the result of manifest validation
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validator validates mock manifests
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the manifest schema
func NewValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(manifestSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid manifest schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks the manifest for errors that would break serving and for
// suspicious but harmless configuration
func (v *Validator) Validate(manifest *models.Manifest) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   make([]string, 0),
		Warnings: make([]string, 0),
	}
	if manifest == nil {
		result.fail("manifest is empty")
		return result
	}

	v.validateSchema(manifest, result)

	synth, err := fixtures.NewSynthesizer(manifest.Generators, template.NewRenderer(template.NewSource(1)), nil)
	if err != nil {
		result.fail("failed to load fixtures: %v", err)
		return result
	}

	services := make(map[string]bool)
	for i, svc := range manifest.Services {
		prefix := fmt.Sprintf("Service #%d (%s)", i+1, svc.Name)
		if services[svc.Name] {
			result.warn("Duplicate service name '%s'", svc.Name)
		}
		services[svc.Name] = true

		if len(svc.Endpoints) == 0 {
			result.warn("%s: service has no endpoints", prefix)
		}

		routes := make(map[string]int)
		for j := range svc.Endpoints {
			ep := &svc.Endpoints[j]
			v.validateEndpoint(synth, ep, fmt.Sprintf("%s endpoint %s", prefix, ep.Key()), result)
			routes[ep.Key()]++
		}
		for key, count := range routes {
			if count > 1 {
				result.warn("%s: duplicate route '%s' (%d occurrences, first one wins)", prefix, key, count)
			}
		}
	}

	v.validateModes(manifest, services, result)
	v.validateGenerators(manifest, result)

	sort.Strings(result.Warnings)
	return result
}

func (v *Validator) validateSchema(manifest *models.Manifest, result *ValidationResult) {
	doc, err := json.Marshal(manifest)
	if err != nil {
		result.fail("manifest cannot be encoded: %v", err)
		return
	}

	res, err := v.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		result.fail("schema validation failed: %v", err)
		return
	}
	for _, e := range res.Errors() {
		result.fail("schema: %s", e.String())
	}
}

func (v *Validator) validateEndpoint(synth *fixtures.Synthesizer, ep *models.Endpoint, prefix string, result *ValidationResult) {
	if _, _, err := matcher.CompilePattern(ep.Path); err != nil {
		result.fail("%s: invalid path pattern: %v", prefix, err)
	}

	if ep.Error != nil {
		if ep.Error.Rate < 0 || ep.Error.Rate > 1 {
			result.fail("%s: error rate must be between 0 and 1", prefix)
		}
		if ep.Error.Status != 0 && (ep.Error.Status < 400 || ep.Error.Status > 599) {
			result.fail("%s: error status %d is not an error code", prefix, ep.Error.Status)
		}
		if ep.Error.Rate == 0 {
			result.warn("%s: error rule with rate 0 never fires", prefix)
		}
	}

	if ep.Fixture != "" {
		if _, ok := synth.Fixture(ep.Fixture); !ok {
			result.fail("%s: unknown fixture '%s'", prefix, ep.Fixture)
		}
	}
	if ep.Generator != "" && !synth.HasGenerator(ep.Generator) {
		result.fail("%s: unknown generator '%s'", prefix, ep.Generator)
	}
	if ep.Body != "" && !ep.Template && !gjson.Valid(ep.Body) {
		result.fail("%s: body is not valid JSON", prefix)
	}
}

func (v *Validator) validateModes(manifest *models.Manifest, services map[string]bool, result *ValidationResult) {
	if len(manifest.Modes) == 0 {
		result.warn("manifest defines no modes")
	}

	for name, mode := range manifest.Modes {
		for _, svc := range append(append([]string{}, mode.Enabled...), mode.Disabled...) {
			if !services[svc] {
				result.warn("Mode '%s': references unknown service '%s'", name, svc)
			}
		}
	}

	for _, name := range manifest.RealtimeModes {
		if _, ok := manifest.Modes[name]; !ok {
			result.warn("realtime_modes: unknown mode '%s'", name)
		}
	}
}

func (v *Validator) validateGenerators(manifest *models.Manifest, result *ValidationResult) {
	names := make([]string, 0, len(manifest.Generators))
	for name := range manifest.Generators {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		gen := manifest.Generators[name]
		if gen.JavaScript == "" {
			result.warn("Generator '%s': empty script, responds with an empty list", name)
			continue
		}
		if err := fixtures.CompileScript(name, gen.JavaScript); err != nil {
			result.fail("Generator '%s': invalid JavaScript: %v", name, err)
		}
	}
}

// PrintValidationResult writes validation results in a user-friendly format
func PrintValidationResult(w io.Writer, result *ValidationResult) {
	if len(result.Errors) > 0 {
		fmt.Fprintln(w, "\n❌ Manifest validation FAILED:")
		for _, err := range result.Errors {
			fmt.Fprintf(w, "  ERROR: %s\n", err)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(w, "\n⚠️  Manifest validation warnings:")
		for _, warn := range result.Warnings {
			fmt.Fprintf(w, "  WARNING: %s\n", warn)
		}
	}

	if result.Valid && len(result.Warnings) == 0 {
		fmt.Fprintln(w, "\n✅ Manifest validated successfully!")
	} else if result.Valid {
		fmt.Fprintf(w, "\n✅ Manifest is valid (with %d warnings)\n", len(result.Warnings))
	}
}
