package template

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// SchemaFromMessages derives the input JSON-Schema implied by the template
// references across messages, composed over an optional base schema. The
// second return value is the index of the last templated message, or -1
// when no message is templated. Derived properties never overwrite entries
// the base schema already defines.
func SchemaFromMessages(messages []models.Message, base map[string]any) (map[string]any, int) {
	schema := map[string]any{"type": "object"}
	if base != nil {
		schema = deepCopy(base)
		if _, ok := schema["type"]; !ok {
			schema["type"] = "object"
		}
	}

	lastTemplated := -1
	for i, msg := range messages {
		refs := refsIn(msg.Content)
		for _, f := range msg.Files {
			refs = append(refs, refsIn(f.URL)...)
			refs = append(refs, refsIn(f.Data)...)
		}
		if len(refs) == 0 {
			continue
		}
		lastTemplated = i
		for _, ref := range refs {
			insertPath(schema, strings.Split(ref, "."))
		}
	}
	return schema, lastTemplated
}

// insertPath adds a property chain for a dotted reference: intermediate
// segments become object schemas, the leaf becomes {type: string}.
func insertPath(schema map[string]any, segs []string) {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		props = make(map[string]any)
		schema["properties"] = props
	}

	head := segs[0]
	if len(segs) == 1 {
		if _, exists := props[head]; !exists {
			props[head] = map[string]any{"type": "string"}
		}
		return
	}

	child, ok := props[head].(map[string]any)
	if !ok {
		child = map[string]any{"type": "object"}
		props[head] = child
	}
	insertPath(child, segs[1:])
}

// ValidateSchema compiles a user-supplied JSON-Schema and reports a
// bad_request when it is not a valid schema document.
func ValidateSchema(schema map[string]any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("request.json", deepCopyValue(schema)); err != nil {
		return apperr.BadRequest("invalid json schema: %v", err)
	}
	if _, err := compiler.Compile("request.json"); err != nil {
		return apperr.BadRequest("invalid json schema: %v", err)
	}
	return nil
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopy(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
