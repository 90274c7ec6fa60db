package loader

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/comfortablynumb/quizmock/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed manifest.yaml
var defaultManifest []byte

// Loader manages loading the mock manifest from a YAML file
type Loader struct {
	path     string
	manifest *models.Manifest
	mu       sync.RWMutex
}

// NewLoader creates a new manifest loader. An empty path loads the built-in manifest.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Default parses the built-in manifest
func Default() (*models.Manifest, error) {
	return Parse(defaultManifest)
}

// Load reads and parses the configured manifest
func (l *Loader) Load() (*models.Manifest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data := defaultManifest
	if l.path != "" {
		var err error
		data, err = os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest %s: %w", l.path, err)
		}
	}

	manifest, err := Parse(data)
	if err != nil {
		return nil, err
	}

	l.manifest = manifest
	return manifest, nil
}

// Manifest returns the last loaded manifest, or nil
func (l *Loader) Manifest() *models.Manifest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.manifest
}

// Parse decodes a YAML manifest and applies defaults
func Parse(data []byte) (*models.Manifest, error) {
	var manifest models.Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i := range manifest.Services {
		for j := range manifest.Services[i].Endpoints {
			ep := &manifest.Services[i].Endpoints[j]
			ep.Method = strings.ToUpper(ep.Method)
			if ep.Method == "" {
				ep.Method = "GET"
			}
			if ep.Status == 0 {
				ep.Status = 200
			}
		}
	}

	for name, mode := range manifest.Modes {
		if mode.Name == "" {
			mode.Name = name
			manifest.Modes[name] = mode
		}
	}

	if manifest.RealtimeModes == nil {
		manifest.RealtimeModes = []string{"demo", "test", "storybook"}
	}

	return &manifest, nil
}
