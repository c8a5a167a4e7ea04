// Package events defines event types and publisher interfaces for deployment change events.
package events

// Deployment change actions.
const (
	ActionRegistered   = "registered"
	ActionUnregistered = "unregistered"
)

// DeploymentChangedEvent is emitted when a deployment enters or leaves the registry.
type DeploymentChangedEvent struct {
	DeploymentID string `json:"deploymentId"`
	Index        uint32 `json:"index"`
	Kind         string `json:"kind"`
	Version      string `json:"version,omitempty"`
	Action       string `json:"action"`
	Timestamp    string `json:"timestamp"`
}
