package models

import "time"

// Annotation attaches a rating or comment to a completion, an experiment,
// or a key-path within an experiment. Annotations are created and deleted
// explicitly, never mutated.
type Annotation struct {
	ID        string           `json:"id"`
	TenantUID int64            `json:"-"`
	Target    AnnotationTarget `json:"target"`
	Author    string           `json:"author_name,omitempty"`
	Text      string           `json:"text,omitempty"`
	Metric    *Metric          `json:"metric,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// AnnotationTarget selects what the annotation is attached to. Exactly one
// of CompletionID or ExperimentID is set; KeyPath optionally narrows an
// experiment annotation to a key-path.
type AnnotationTarget struct {
	CompletionID string `json:"completion_id,omitempty"`
	ExperimentID string `json:"experiment_id,omitempty"`
	KeyPath      string `json:"key_path,omitempty"`
}

// Metric is a named measurement whose value is a float, string, or bool.
type Metric struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}
