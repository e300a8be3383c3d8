package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anotherai-dev/anotherai/pkg/models"
)

// StoreAnnotation persists an annotation. The row keys on (tenant_uid, id)
// so replays upsert.
func (s *Store) StoreAnnotation(ctx context.Context, tenantUID int64, a *models.Annotation) error {
	var metricName, metricValue string
	if a.Metric != nil {
		metricName = a.Metric.Name
		raw, err := json.Marshal(a.Metric.Value)
		if err != nil {
			return fmt.Errorf("encoding annotation metric: %w", err)
		}
		metricValue = string(raw)
	}
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("encoding annotation metadata: %w", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	if err := s.conn.Exec(ctx, `
		INSERT INTO annotations (
			tenant_uid, id, completion_id, experiment_id, key_path,
			author, text, metric_name, metric_value, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tenantUID, a.ID, a.Target.CompletionID, a.Target.ExperimentID, a.Target.KeyPath,
		a.Author, a.Text, metricName, metricValue, string(metadata), a.CreatedAt); err != nil {
		return fmt.Errorf("storing annotation %q: %w", a.ID, err)
	}
	a.TenantUID = tenantUID
	return nil
}

// ListAnnotations returns annotations filtered by completion and/or
// experiment, newest first.
func (s *Store) ListAnnotations(ctx context.Context, tenantUID int64, completionID, experimentID string, limit int) ([]models.Annotation, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, completion_id, experiment_id, key_path, author, text,
		metric_name, metric_value, metadata, created_at
		FROM annotations WHERE tenant_uid = ?`
	args := []any{tenantUID}
	if completionID != "" {
		query += " AND completion_id = ?"
		args = append(args, completionID)
	}
	if experimentID != "" {
		query += " AND experiment_id = ?"
		args = append(args, experimentID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing annotations: %w", err)
	}
	defer rows.Close()

	var annotations []models.Annotation
	for rows.Next() {
		var a models.Annotation
		var metricName, metricValue, metadata string
		if err := rows.Scan(&a.ID, &a.Target.CompletionID, &a.Target.ExperimentID,
			&a.Target.KeyPath, &a.Author, &a.Text,
			&metricName, &metricValue, &metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		if metricName != "" {
			var value any
			if metricValue != "" {
				if err := json.Unmarshal([]byte(metricValue), &value); err != nil {
					return nil, fmt.Errorf("decoding metric value for annotation %q: %w", a.ID, err)
				}
			}
			a.Metric = &models.Metric{Name: metricName, Value: value}
		}
		if metadata != "" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &a.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata for annotation %q: %w", a.ID, err)
			}
		}
		a.TenantUID = tenantUID
		annotations = append(annotations, a)
	}
	return annotations, rows.Err()
}

// DeleteAnnotation removes an annotation with a lightweight delete.
func (s *Store) DeleteAnnotation(ctx context.Context, tenantUID int64, id string) error {
	if err := s.conn.Exec(ctx,
		`DELETE FROM annotations WHERE tenant_uid = ? AND id = ?`, tenantUID, id); err != nil {
		return fmt.Errorf("deleting annotation %q: %w", id, err)
	}
	return nil
}
