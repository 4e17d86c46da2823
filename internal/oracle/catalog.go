// internal/oracle/catalog.go
package oracle

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
)

//go:embed templates.yaml
var templatesYAML []byte

// ErrUnknownTask is returned for a task with no template in the catalog.
var ErrUnknownTask = errors.New("unknown oracle task")

// placeholderRegex matches {name} placeholders. JSON examples inside the
// templates never match since their braces enclose quotes or whitespace.
var placeholderRegex = regexp.MustCompile(`\{([a-z0-9_]+)\}`)

// Template is a system and user prompt pair.
type Template struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Catalog maps tasks to their prompt templates.
type Catalog struct {
	templates map[schemas.OracleTask]Template
	logger    *zap.Logger
}

// LoadCatalog parses the embedded template set.
func LoadCatalog(logger *zap.Logger) (*Catalog, error) {
	return ParseCatalog(templatesYAML, logger)
}

// ParseCatalog builds a catalog from YAML keyed by task name.
func ParseCatalog(data []byte, logger *zap.Logger) (*Catalog, error) {
	raw := make(map[string]Template)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse prompt templates: %w", err)
	}
	c := &Catalog{
		templates: make(map[schemas.OracleTask]Template, len(raw)),
		logger:    logger.Named("prompts"),
	}
	for name, tmpl := range raw {
		if tmpl.System == "" && tmpl.User == "" {
			return nil, fmt.Errorf("template %q must define a system or a user prompt", name)
		}
		c.templates[schemas.OracleTask(name)] = tmpl
	}
	return c, nil
}

// Tasks lists the catalog's task names in sorted order.
func (c *Catalog) Tasks() []schemas.OracleTask {
	out := make([]schemas.OracleTask, 0, len(c.templates))
	for t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Render substitutes vars into the task's templates. Placeholders with no
// matching variable are left in place and logged.
func (c *Catalog) Render(task schemas.OracleTask, vars map[string]string) (schemas.GenerationRequest, error) {
	tmpl, ok := c.templates[task]
	if !ok {
		return schemas.GenerationRequest{}, fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}

	missing := make(map[string]struct{})
	req := schemas.GenerationRequest{
		SystemPrompt: substitute(tmpl.System, vars, missing),
		UserPrompt:   substitute(tmpl.User, vars, missing),
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		c.logger.Warn("Template variables were not provided.", zap.String("task", string(task)), zap.Strings("missing", names))
	}
	return req, nil
}

// substitute runs a single pass, so values that themselves contain
// placeholders are never expanded again.
func substitute(text string, vars map[string]string, missing map[string]struct{}) string {
	return placeholderRegex.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		missing[name] = struct{}{}
		return m
	})
}
