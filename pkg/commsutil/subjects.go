package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectDeploymentChanged = "beanserver.deployment.changed"
)

// BuildDeploymentSubject builds the granular change subject for one deployment.
// Dots and spaces in the deployment ID are replaced so the ID stays a single token.
func BuildDeploymentSubject(base, deploymentID string) string {
	safe := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(deploymentID)
	return fmt.Sprintf("%s.%s", base, safe)
}
