package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// CreateView inserts a view. An empty FolderID places it in the implicit
// root folder.
func (s *Store) CreateView(ctx context.Context, tenantUID int64, v *models.View) error {
	graph, err := json.Marshal(v.Graph)
	if err != nil {
		return fmt.Errorf("encoding view graph: %w", err)
	}
	if v.Graph == nil {
		graph = nil
	}
	return s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx,
			`INSERT INTO views (id, folder_id, title, query, graph, position)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING created_at, updated_at`,
			v.ID, v.FolderID, v.Title, v.Query, graph, v.Position).
			Scan(&v.CreatedAt, &v.UpdatedAt)
		if err != nil {
			return mapPgError(err, "view", v.ID)
		}
		v.TenantUID = tenantUID
		return nil
	})
}

// ViewPatch carries the updatable fields of a view; nil fields are left
// unchanged.
type ViewPatch struct {
	Title    *string
	Query    *string
	Graph    *models.Graph
	FolderID *string
	Position *int
}

// UpdateView applies a partial update.
func (s *Store) UpdateView(ctx context.Context, tenantUID int64, id string, patch ViewPatch) error {
	return s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		set := "updated_at = now()"
		args := []any{id}
		add := func(column string, value any) {
			args = append(args, value)
			set += fmt.Sprintf(", %s = $%d", column, len(args))
		}
		if patch.Title != nil {
			add("title", *patch.Title)
		}
		if patch.Query != nil {
			add("query", *patch.Query)
		}
		if patch.Graph != nil {
			graph, err := json.Marshal(patch.Graph)
			if err != nil {
				return fmt.Errorf("encoding view graph: %w", err)
			}
			add("graph", graph)
		}
		if patch.FolderID != nil {
			add("folder_id", *patch.FolderID)
		}
		if patch.Position != nil {
			add("position", *patch.Position)
		}

		tag, err := conn.Exec(ctx,
			`UPDATE views SET `+set+` WHERE id = $1 AND deleted_at IS NULL`, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("view", "view %q not found", id)
		}
		return nil
	})
}

// ListViews returns all live views ordered by folder, position, creation.
func (s *Store) ListViews(ctx context.Context, tenantUID int64) ([]models.View, error) {
	var views []models.View
	err := s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT id, folder_id, title, query, graph, position, created_at, updated_at
			 FROM views WHERE deleted_at IS NULL
			 ORDER BY folder_id, position, created_at`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v models.View
			var graph []byte
			if err := rows.Scan(&v.ID, &v.FolderID, &v.Title, &v.Query,
				&graph, &v.Position, &v.CreatedAt, &v.UpdatedAt); err != nil {
				return err
			}
			if len(graph) > 0 {
				if err := json.Unmarshal(graph, &v.Graph); err != nil {
					return fmt.Errorf("decoding view graph: %w", err)
				}
			}
			v.TenantUID = tenantUID
			views = append(views, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing views: %w", err)
	}
	return views, nil
}

// DeleteView soft-deletes a view.
func (s *Store) DeleteView(ctx context.Context, tenantUID int64, id string) error {
	return s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx,
			`UPDATE views SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("view", "view %q not found", id)
		}
		return nil
	})
}

// CreateFolder inserts a view folder.
func (s *Store) CreateFolder(ctx context.Context, tenantUID int64, f *models.ViewFolder) error {
	return s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx,
			`INSERT INTO view_folders (id, name) VALUES ($1, $2) RETURNING created_at`,
			f.ID, f.Name).Scan(&f.CreatedAt)
		if err != nil {
			return mapPgError(err, "view_folder", f.ID)
		}
		f.TenantUID = tenantUID
		return nil
	})
}

// ListFolders returns live folders, newest first. The implicit root folder
// is not stored; the service layer appends it.
func (s *Store) ListFolders(ctx context.Context, tenantUID int64) ([]models.ViewFolder, error) {
	var folders []models.ViewFolder
	err := s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT id, name, created_at FROM view_folders
			 WHERE deleted_at IS NULL ORDER BY created_at DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f models.ViewFolder
			if err := rows.Scan(&f.ID, &f.Name, &f.CreatedAt); err != nil {
				return err
			}
			f.TenantUID = tenantUID
			folders = append(folders, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing view folders: %w", err)
	}
	return folders, nil
}

// DeleteFolder soft-deletes a folder; its views fall back to the implicit
// root folder.
func (s *Store) DeleteFolder(ctx context.Context, tenantUID int64, id string) error {
	return s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx,
			`UPDATE view_folders SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("view_folder", "view folder %q not found", id)
		}
		if _, err := conn.Exec(ctx,
			`UPDATE views SET folder_id = '', updated_at = now() WHERE folder_id = $1`, id); err != nil {
			return err
		}
		return nil
	})
}
