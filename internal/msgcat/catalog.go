package msgcat

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var embedded embed.FS

// Catalog holds user-facing text templates keyed by dotted path. Defaults are
// embedded; a directory of YAML files can override any key. Templates are
// parsed on load and the catalog is read-only afterwards.
type Catalog struct {
	templates map[string]*template.Template
}

func New(overrideDir string) (*Catalog, error) {
	texts := make(map[string]string)
	if err := loadLayer(embedded, texts); err != nil {
		return nil, fmt.Errorf("embedded messages: %w", err)
	}
	if dir := strings.TrimSpace(overrideDir); dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("message dir: %w", err)
		}
		if err := loadLayer(os.DirFS(dir), texts); err != nil {
			return nil, fmt.Errorf("message dir %s: %w", dir, err)
		}
	}

	c := &Catalog{templates: make(map[string]*template.Template, len(texts))}
	for key, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		t, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", key, err)
		}
		c.templates[key] = t
	}
	return c, nil
}

// MustDefault is the embedded catalog; it panics only if the binary was
// built with a broken messages file.
func MustDefault() *Catalog {
	c, err := New("")
	if err != nil {
		panic(err)
	}
	return c
}

// loadLayer reads every top-level YAML file of fsys in name order. Keys may
// appear once per layer; a layer replaces keys of the layers before it.
func loadLayer(fsys fs.FS, into map[string]string) error {
	var names []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		m, err := fs.Glob(fsys, pattern)
		if err != nil {
			return err
		}
		names = append(names, m...)
	}
	slices.Sort(names)

	origin := make(map[string]string)
	for _, name := range names {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		flat := make(map[string]string)
		if err := flatten(&doc, "", flat); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for k, v := range flat {
			if prev, dup := origin[k]; dup {
				return fmt.Errorf("duplicate key %q in %s and %s", k, prev, path.Base(name))
			}
			origin[k] = path.Base(name)
			into[k] = v
		}
	}
	return nil
}

// flatten turns nested mappings into dotted keys. Scalars are kept as their
// source text.
func flatten(n *yaml.Node, prefix string, out map[string]string) error {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			if err := flatten(c, prefix, out); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := flatten(n.Content[i+1], key, out); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if prefix == "" {
			return fmt.Errorf("line %d: value without a key", n.Line)
		}
		if n.Tag != "!!null" {
			out[prefix] = n.Value
		}
	default:
		return fmt.Errorf("line %d: %s must be text or a mapping", n.Line, prefix)
	}
	return nil
}

func (c *Catalog) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.templates[strings.TrimSpace(key)]
	return ok
}

// Render executes the template stored under key. Missing keys, in the
// catalog or in data, are errors.
func (c *Catalog) Render(key string, data any) (string, error) {
	t, ok := c.templates[strings.TrimSpace(key)]
	if !ok {
		return "", fmt.Errorf("template not found: %s", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// RenderOr is Render with a fallback for callers that must always show text.
func (c *Catalog) RenderOr(key string, data any, fallback string) string {
	if c == nil {
		return fallback
	}
	s, err := c.Render(key, data)
	if err != nil {
		return fallback
	}
	return s
}
