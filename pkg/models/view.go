package models

import "time"

// View is a saved analytical query with an optional graph descriptor.
type View struct {
	ID        string    `json:"id"`
	TenantUID int64     `json:"-"`
	FolderID  string    `json:"folder_id"`
	Title     string    `json:"title"`
	Query     string    `json:"query,omitempty"`
	Graph     *Graph    `json:"graph,omitempty"`
	Position  int       `json:"position,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Graph describes how a view's result set is charted.
type Graph struct {
	Type string     `json:"type"`
	X    *GraphAxis `json:"x,omitempty"`
	Y    *GraphAxis `json:"y,omitempty"`
}

// GraphAxis names the result field bound to an axis.
type GraphAxis struct {
	Field string `json:"field"`
	Label string `json:"label,omitempty"`
	Unit  string `json:"unit,omitempty"`
}

// ViewFolder groups views. The empty-id folder is implicit and always
// present; views with no explicit folder belong to it.
type ViewFolder struct {
	ID        string    `json:"id"`
	TenantUID int64     `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
