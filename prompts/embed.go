// Package prompts holds the embedded prompt templates sent with
// suggestion requests. The templateId travels alongside the rendered
// prompt so the backend can apply its own server-side template as well.
package prompts

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"text/template"
)

// Version is incremented whenever the default templates change
// incompatibly.
const Version = "v1"

// DefaultTemplateID is used when a requested template is unknown.
const DefaultTemplateID = "default"

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	loadOnce sync.Once
	loadErr  error
	registry map[string]*template.Template
)

type promptInput struct {
	Content string
}

func load() {
	registry = make(map[string]*template.Template)
	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		loadErr = err
		return
	}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".tmpl")
		b, err := fs.ReadFile(templateFS, "templates/"+e.Name())
		if err != nil {
			loadErr = err
			return
		}
		t, err := template.New(name).Parse(string(b))
		if err != nil {
			loadErr = fmt.Errorf("parse template %q: %w", name, err)
			return
		}
		registry[name] = t
	}
	if _, ok := registry[DefaultTemplateID]; !ok {
		loadErr = fmt.Errorf("default template missing")
	}
}

// Render produces the outbound prompt for the given templateID and note
// content. Unknown ids fall back to the default template.
func Render(templateID, content string) (string, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return "", loadErr
	}
	t, ok := registry[templateID]
	if !ok {
		t = registry[DefaultTemplateID]
	}
	var sb strings.Builder
	if err := t.Execute(&sb, promptInput{Content: content}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ListTemplates returns the available template ids.
func ListTemplates() ([]string, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out, nil
}
