package msgcat

import (
    "embed"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "text/template"

    yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

// Catalog holds the notification texts shown by the client. Every text is a
// text/template compiled at load time; the catalog is read-only afterwards.
type Catalog struct {
    tpls map[string]*template.Template
}

// New loads the embedded English texts, then replaces them with the YAML files in
// overrideDir (e.g. a translation). Overrides may only name keys that exist.
func New(overrideDir string) (*Catalog, error) {
    raw, err := defaultFiles.ReadFile("messages.en.yaml")
    if err != nil { return nil, fmt.Errorf("read embedded messages: %w", err) }
    texts, err := flatten(raw)
    if err != nil { return nil, fmt.Errorf("parse embedded messages: %w", err) }

    if dir := strings.TrimSpace(overrideDir); dir != "" {
        if err := applyOverrides(dir, texts); err != nil { return nil, err }
    }

    c := &Catalog{tpls: make(map[string]*template.Template, len(texts))}
    for key, text := range texts {
        t, err := template.New(key).Option("missingkey=error").Parse(text)
        if err != nil { return nil, fmt.Errorf("message %s: %w", key, err) }
        c.tpls[key] = t
    }
    return c, nil
}

func applyOverrides(dir string, texts map[string]string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return fmt.Errorf("read messages dir: %w", err) }
    var files []string
    for _, e := range entries {
        ext := strings.ToLower(filepath.Ext(e.Name()))
        if !e.IsDir() && (ext == ".yaml" || ext == ".yml") { files = append(files, e.Name()) }
    }
    sort.Strings(files)

    from := make(map[string]string) // key → file that overrode it
    for _, name := range files {
        b, err := os.ReadFile(filepath.Join(dir, name))
        if err != nil { return fmt.Errorf("read %s: %w", name, err) }
        flat, err := flatten(b)
        if err != nil { return fmt.Errorf("parse %s: %w", name, err) }
        for k, v := range flat {
            if _, known := texts[k]; !known {
                return fmt.Errorf("%s: unknown message key %q", name, k)
            }
            if prev, dup := from[k]; dup {
                return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
            }
            from[k] = name
            texts[k] = v
        }
    }
    return nil
}

// flatten turns nested YAML maps into dot keys. Only string leaves are allowed.
func flatten(b []byte) (map[string]string, error) {
    var m map[string]any
    if err := yaml.Unmarshal(b, &m); err != nil { return nil, err }
    out := make(map[string]string)
    var walk func(prefix string, v any) error
    walk = func(prefix string, v any) error {
        switch v := v.(type) {
        case map[string]any:
            for k, vv := range v {
                key := k
                if prefix != "" { key = prefix + "." + k }
                if err := walk(key, vv); err != nil { return err }
            }
        case string:
            out[prefix] = v
        case nil:
        default:
            return fmt.Errorf("unsupported value at %s: %T", prefix, v)
        }
        return nil
    }
    if err := walk("", m); err != nil { return nil, err }
    return out, nil
}

// Render executes the message named key. Missing data fields are errors.
func (c *Catalog) Render(key string, data any) (string, error) {
    t, ok := c.tpls[strings.TrimSpace(key)]
    if !ok { return "", fmt.Errorf("message not found: %s", key) }
    var b strings.Builder
    if err := t.Execute(&b, data); err != nil { return "", err }
    return b.String(), nil
}

// Text renders key and falls back to fallback on any error.
func (c *Catalog) Text(key string, data any, fallback string) string {
    if c == nil { return fallback }
    out, err := c.Render(key, data)
    if err != nil || strings.TrimSpace(out) == "" { return fallback }
    return out
}

// Keys lists the message keys in sorted order.
func (c *Catalog) Keys() []string {
    keys := make([]string, 0, len(c.tpls))
    for k := range c.tpls { keys = append(keys, k) }
    sort.Strings(keys)
    return keys
}
