package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/comfortablynumb/quizmock/internal/models"
)

var paramSegment = regexp.MustCompile(`:[^/]+`)

// Route is a matched endpoint together with its owning service
type Route struct {
	Service  string
	Endpoint models.Endpoint
	Params   map[string]string
}

type compiledEndpoint struct {
	service  string
	endpoint models.Endpoint
	pattern  *regexp.Regexp
	params   []string
}

// Matcher resolves requests to endpoint descriptors in manifest order
type Matcher struct {
	endpoints []compiledEndpoint
}

// NewMatcher compiles every endpoint pattern of the manifest
func NewMatcher(manifest *models.Manifest) (*Matcher, error) {
	m := &Matcher{}
	for _, svc := range manifest.Services {
		for _, ep := range svc.Endpoints {
			pattern, params, err := CompilePattern(ep.Path)
			if err != nil {
				return nil, fmt.Errorf("service %s: invalid path pattern %q: %w", svc.Name, ep.Path, err)
			}
			m.endpoints = append(m.endpoints, compiledEndpoint{
				service:  svc.Name,
				endpoint: ep,
				pattern:  pattern,
				params:   params,
			})
		}
	}
	return m, nil
}

// FindMatch returns the first endpoint whose method and path pattern match, or nil
func (m *Matcher) FindMatch(method, path string) *Route {
	for _, ce := range m.endpoints {
		if ce.endpoint.Method != method {
			continue
		}
		groups := ce.pattern.FindStringSubmatch(path)
		if groups == nil {
			continue
		}

		params := make(map[string]string, len(ce.params))
		for i, name := range ce.params {
			params[name] = groups[i+1]
		}
		return &Route{
			Service:  ce.service,
			Endpoint: ce.endpoint,
			Params:   params,
		}
	}

	return nil // No match found
}

// Len returns the number of compiled endpoints
func (m *Matcher) Len() int {
	return len(m.endpoints)
}

// CompilePattern converts a path pattern into an anchored regex.
// Named segments (:id) match a single path segment and * matches anything.
func CompilePattern(path string) (*regexp.Regexp, []string, error) {
	var params []string
	var b strings.Builder
	b.WriteString("^")

	last := 0
	for _, loc := range paramSegment.FindAllStringIndex(path, -1) {
		b.WriteString(quoteLiteral(path[last:loc[0]]))
		params = append(params, path[loc[0]+1:loc[1]])
		b.WriteString("([^/]+)")
		last = loc[1]
	}
	b.WriteString(quoteLiteral(path[last:]))
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, err
	}
	return re, params, nil
}

// quoteLiteral escapes regex metacharacters except *, which becomes .*
func quoteLiteral(s string) string {
	parts := strings.Split(s, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, ".*")
}
