// Package template expands {{ var }} references in prompt messages and
// derives the input JSON-Schema from the references a template makes.
package template

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// refPattern matches {{ path.to.var }} with optional inner whitespace.
var refPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*\}\}`)

// parsedRefs caches the variable references found in a template string so
// repeated renders of the same prompt skip the regexp scan.
var parsedRefs = newRefCache(512)

// refsIn returns the variable paths referenced by a template string, in
// order of first appearance.
func refsIn(s string) []string {
	if cached, ok := parsedRefs.get(s); ok {
		return cached
	}
	var refs []string
	seen := make(map[string]struct{})
	for _, m := range refPattern.FindAllStringSubmatch(s, -1) {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		refs = append(refs, m[1])
	}
	parsedRefs.put(s, refs)
	return refs
}

// IsTemplated reports whether the string contains at least one reference.
func IsTemplated(s string) bool {
	return len(refsIn(s)) > 0
}

// Render expands every templated message against variables. Messages render
// concurrently; the first failure is returned and the rest are discarded.
// Each message gets exactly one substitution pass, so rendered values that
// themselves look like references are left alone.
func Render(ctx context.Context, messages []models.Message, variables map[string]any) ([]models.Message, error) {
	out := make([]models.Message, len(messages))
	g, _ := errgroup.WithContext(ctx)
	for i, msg := range messages {
		g.Go(func() error {
			rendered, err := renderMessage(msg, variables)
			if err != nil {
				return err
			}
			out[i] = rendered
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func renderMessage(msg models.Message, variables map[string]any) (models.Message, error) {
	content, err := renderString(msg.Content, variables)
	if err != nil {
		return models.Message{}, err
	}
	msg.Content = content

	if len(msg.Files) > 0 {
		files := make([]models.File, len(msg.Files))
		for i, f := range msg.Files {
			resolved, err := renderFile(f, variables)
			if err != nil {
				return models.Message{}, err
			}
			files[i] = resolved
		}
		msg.Files = files
	}
	return msg, nil
}

// renderFile substitutes references in file fields, then normalizes inline
// data: urls into content-type + payload form.
func renderFile(f models.File, variables map[string]any) (models.File, error) {
	var err error
	if f.URL, err = renderString(f.URL, variables); err != nil {
		return models.File{}, err
	}
	if f.Data, err = renderString(f.Data, variables); err != nil {
		return models.File{}, err
	}
	if strings.HasPrefix(f.URL, "data:") {
		meta, data, ok := strings.Cut(strings.TrimPrefix(f.URL, "data:"), ",")
		if !ok {
			return models.File{}, apperr.InvalidFile("malformed data url in file reference")
		}
		f.ContentType = strings.TrimSuffix(meta, ";base64")
		f.Data = data
		f.URL = ""
	}
	return f, nil
}

func renderString(s string, variables map[string]any) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	var renderErr error
	rendered := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		if renderErr != nil {
			return match
		}
		path := refPattern.FindStringSubmatch(match)[1]
		value, ok := lookup(variables, path)
		if !ok {
			renderErr = apperr.BadRequest("template variable %q is not defined", path)
			return match
		}
		return formatValue(value)
	})
	if renderErr != nil {
		return "", renderErr
	}
	return rendered, nil
}

// lookup walks a dotted path through nested variable objects.
func lookup(variables map[string]any, path string) (any, bool) {
	var current any = variables
	for _, seg := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// refCache is a small bounded cache of parsed references. Single lock,
// oldest-entry eviction.
type refCache struct {
	mu      sync.Mutex
	max     int
	entries map[string][]string
	order   []string
}

func newRefCache(max int) *refCache {
	return &refCache{max: max, entries: make(map[string][]string)}
}

func (c *refCache) get(key string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	refs, ok := c.entries[key]
	return refs, ok
}

func (c *refCache) put(key string, refs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = refs
	c.order = append(c.order, key)
}
