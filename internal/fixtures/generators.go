package fixtures

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/comfortablynumb/quizmock/internal/template"
	"github.com/dop251/goja"
)

const scriptTimeout = time.Second

type generatorFunc func(s *Synthesizer, req *template.RequestData) (interface{}, error)

var builtinGenerators = map[string]generatorFunc{
	"randomQuestions": func(s *Synthesizer, req *template.RequestData) (interface{}, error) {
		return map[string]interface{}{
			"success":   true,
			"questions": s.shuffleQuestions(s.fixtures["questions"], randomQuestionCount),
		}, nil
	},
}

// generate runs a built-in generator, or a manifest generator through goja
func (s *Synthesizer) generate(name string, req *template.RequestData) (interface{}, error) {
	if fn, ok := builtinGenerators[name]; ok {
		return fn(s, req)
	}

	gen, ok := s.generators[name]
	if !ok || gen.JavaScript == "" {
		return map[string]interface{}{"success": true, "data": []interface{}{}}, nil
	}

	return s.runScript(gen.JavaScript, req)
}

// runScript evaluates a generator script. The script sees request, fixtures and random().
func (s *Synthesizer) runScript(script string, req *template.RequestData) (interface{}, error) {
	vm := goja.New()

	timer := time.AfterFunc(scriptTimeout, func() {
		vm.Interrupt("generator timed out")
	})
	defer timer.Stop()

	requestObj := map[string]interface{}{}
	if req != nil {
		var body interface{}
		if err := json.Unmarshal([]byte(requestJSON(req)), &body); err != nil {
			body = map[string]interface{}{}
		}
		requestObj = map[string]interface{}{
			"method":  req.Method,
			"path":    req.Path,
			"query":   req.RawQuery,
			"headers": req.Headers,
			"params":  req.Params,
			"body":    body,
		}
	}
	if err := vm.Set("request", requestObj); err != nil {
		return nil, fmt.Errorf("failed to set request: %w", err)
	}

	fixtures := make(map[string]interface{}, len(s.fixtures))
	for name, data := range s.fixtures {
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode fixture %s: %w", name, err)
		}
		fixtures[name] = v
	}
	if err := vm.Set("fixtures", fixtures); err != nil {
		return nil, fmt.Errorf("failed to set fixtures: %w", err)
	}

	src := s.renderer.Source()
	if err := vm.Set("random", func() float64 { return src.Float64() }); err != nil {
		return nil, fmt.Errorf("failed to set random: %w", err)
	}

	result, err := vm.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("script error: %w", err)
	}
	return result.Export(), nil
}

// CompileScript checks that a generator script parses
func CompileScript(name, script string) error {
	_, err := goja.Compile(name, script, false)
	return err
}
