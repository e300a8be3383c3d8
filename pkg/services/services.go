// Package services composes the stores, the runner and the task bus into
// the operations the HTTP surface exposes: experiment composition and
// execution, deployments, views, agents, annotations and completion
// import. Handlers stay thin; tenant scoping and idempotency live here.
// Each service declares the store slice it needs; *storage.Store and
// *analytics.Store satisfy all of them.
package services

import "context"

// Publisher enqueues background tasks.
type Publisher interface {
	Publish(ctx context.Context, taskName string, payload any) error
}
