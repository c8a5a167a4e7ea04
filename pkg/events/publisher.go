package events

import "context"

// EventPublisher delivers deployment change events. Publish failures are
// reported to the caller, which logs them; they never undo a deployment.
type EventPublisher interface {
	PublishChanged(ctx context.Context, event *DeploymentChangedEvent) error
}

// NoOpPublisher drops every event. The registry uses it when no COMMS URL is configured.
type NoOpPublisher struct{}

func (NoOpPublisher) PublishChanged(context.Context, *DeploymentChangedEvent) error { return nil }

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(ctx context.Context, event *DeploymentChangedEvent) error

func (f PublisherFunc) PublishChanged(ctx context.Context, event *DeploymentChangedEvent) error {
	return f(ctx, event)
}
