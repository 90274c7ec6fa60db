package validator

import (
	"bytes"
	"strings"
	"testing"

	"github.com/comfortablynumb/quizmock/internal/loader"
	"github.com/comfortablynumb/quizmock/internal/models"
)

const validManifest = `
version: "1.0.0"
realtime_modes: [full]
modes:
  full:
    enabled: [api]
services:
  - name: api
    base_url: http://localhost:3000
    endpoints:
      - {path: /users/:id, method: GET, fixture: users}
      - {path: /questions/random, generator: randomQuestions}
      - {path: /echo, method: POST, generator: echo}
      - path: /flaky
        error: {rate: 0.25, status: 503}
      - path: /inline
        body: '{"ok": true}'
generators:
  echo:
    javascript: '({success: true, method: request.method})'
`

func parse(t *testing.T, doc string) *models.Manifest {
	t.Helper()
	manifest, err := loader.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return manifest
}

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	return v
}

func containsMessage(messages []string, substr string) bool {
	for _, m := range messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func TestValidateValidManifest(t *testing.T) {
	result := newValidator(t).Validate(parse(t, validManifest))

	if !result.Valid {
		t.Errorf("Expected manifest to be valid, got errors: %v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got: %v", result.Warnings)
	}
}

func TestValidateDefaultManifest(t *testing.T) {
	manifest, err := loader.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	result := newValidator(t).Validate(manifest)
	if !result.Valid {
		t.Errorf("Expected built-in manifest to be valid, got errors: %v", result.Errors)
	}
}

func TestValidateNilManifest(t *testing.T) {
	result := newValidator(t).Validate(nil)
	if result.Valid {
		t.Error("Expected nil manifest to be invalid")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *models.Manifest)
		wantErr string
	}{
		{
			name: "error rate above one",
			mutate: func(m *models.Manifest) {
				m.Services[0].Endpoints[3].Error.Rate = 1.5
			},
			wantErr: "error rate must be between 0 and 1",
		},
		{
			name: "negative error rate",
			mutate: func(m *models.Manifest) {
				m.Services[0].Endpoints[3].Error.Rate = -0.1
			},
			wantErr: "error rate must be between 0 and 1",
		},
		{
			name: "success status as error",
			mutate: func(m *models.Manifest) {
				m.Services[0].Endpoints[3].Error.Status = 200
			},
			wantErr: "error status 200 is not an error code",
		},
		{
			name: "unknown fixture",
			mutate: func(m *models.Manifest) {
				m.Services[0].Endpoints[0].Fixture = "planets"
			},
			wantErr: "unknown fixture 'planets'",
		},
		{
			name: "unknown generator",
			mutate: func(m *models.Manifest) {
				m.Services[0].Endpoints[1].Generator = "nope"
			},
			wantErr: "unknown generator 'nope'",
		},
		{
			name: "invalid inline body",
			mutate: func(m *models.Manifest) {
				m.Services[0].Endpoints[4].Body = "{not json"
			},
			wantErr: "body is not valid JSON",
		},
		{
			name: "broken generator script",
			mutate: func(m *models.Manifest) {
				m.Generators["echo"] = models.Generator{JavaScript: "function ("}
			},
			wantErr: "Generator 'echo': invalid JavaScript",
		},
		{
			name: "relative path",
			mutate: func(m *models.Manifest) {
				m.Services[0].Endpoints[0].Path = "users/:id"
			},
			wantErr: "schema:",
		},
		{
			name: "negative delay",
			mutate: func(m *models.Manifest) {
				m.Services[0].Endpoints[0].Delay = -5
			},
			wantErr: "schema:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manifest := parse(t, validManifest)
			tt.mutate(manifest)

			result := newValidator(t).Validate(manifest)
			if result.Valid {
				t.Fatalf("Expected validation to fail")
			}
			if !containsMessage(result.Errors, tt.wantErr) {
				t.Errorf("Expected an error containing %q, got: %v", tt.wantErr, result.Errors)
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	doc := `
modes:
  full:
    enabled: [api, billing]
realtime_modes: [full, replay]
services:
  - name: api
    endpoints:
      - {path: /items, method: GET}
      - {path: /items, method: get}
      - path: /never
        error: {rate: 0}
  - name: empty
generators:
  blank:
    javascript: ""
`
	result := newValidator(t).Validate(parse(t, doc))

	if !result.Valid {
		t.Fatalf("Expected warnings only, got errors: %v", result.Errors)
	}

	for _, want := range []string{
		"duplicate route 'GET /items' (2 occurrences",
		"references unknown service 'billing'",
		"realtime_modes: unknown mode 'replay'",
		"rate 0 never fires",
		"service has no endpoints",
		"Generator 'blank': empty script",
	} {
		if !containsMessage(result.Warnings, want) {
			t.Errorf("Expected a warning containing %q, got: %v", want, result.Warnings)
		}
	}
}

func TestPrintValidationResult(t *testing.T) {
	var buf bytes.Buffer
	PrintValidationResult(&buf, &ValidationResult{
		Valid:    false,
		Errors:   []string{"bad route"},
		Warnings: []string{"odd mode"},
	})

	out := buf.String()
	if !strings.Contains(out, "ERROR: bad route") || !strings.Contains(out, "WARNING: odd mode") {
		t.Errorf("Unexpected output: %s", out)
	}

	buf.Reset()
	PrintValidationResult(&buf, &ValidationResult{Valid: true})
	if !strings.Contains(buf.String(), "validated successfully") {
		t.Errorf("Unexpected output: %s", buf.String())
	}
}
