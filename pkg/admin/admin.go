// Package admin exposes the deployment registry over JSON-RPC 2.0 for
// operator tooling.
package admin

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/morezero/beanserver/pkg/deployment"
)

const logPrefix = "admin:admin"

// ServiceName is the JSON-RPC service prefix ("Admin.ListDeployments").
const ServiceName = "Admin"

// DeploymentInfo describes one registered deployment.
type DeploymentInfo struct {
	Name            string `json:"name"`
	Index           uint32 `json:"index"`
	Kind            string `json:"kind"`
	HomeInterface   string `json:"homeInterface,omitempty"`
	RemoteInterface string `json:"remoteInterface,omitempty"`
	LocalInterface  string `json:"localInterface,omitempty"`
	PrimaryKeyType  string `json:"primaryKeyType,omitempty"`
	Version         string `json:"version,omitempty"`
}

// InfoFor converts a registry entry.
func InfoFor(e deployment.Entry) DeploymentInfo {
	d := e.Descriptor
	return DeploymentInfo{
		Name:            e.Name,
		Index:           e.Index,
		Kind:            string(d.Kind()),
		HomeInterface:   d.HomeInterface(),
		RemoteInterface: d.RemoteInterface(),
		LocalInterface:  d.LocalInterface(),
		PrimaryKeyType:  d.PrimaryKeyType(),
		Version:         d.VersionString(),
	}
}

type ListDeploymentsArgs struct {
	Kind string `json:"kind,omitempty"`
}

type ListDeploymentsReply struct {
	Deployments []DeploymentInfo `json:"deployments"`
}

type DescribeArgs struct {
	Name string `json:"name"`
}

type DescribeReply struct {
	Deployment DeploymentInfo `json:"deployment"`
}

// Service implements the Admin JSON-RPC methods.
type Service struct {
	registry *deployment.Registry
}

func NewService(registry *deployment.Registry) *Service {
	return &Service{registry: registry}
}

// ListDeployments returns deployments ordered by index, optionally filtered by kind.
func (s *Service) ListDeployments(_ *http.Request, args *ListDeploymentsArgs, reply *ListDeploymentsReply) error {
	var kind deployment.Kind
	if args.Kind != "" {
		k, err := deployment.ParseKind(args.Kind)
		if err != nil {
			return &json2.Error{Code: json2.E_BAD_PARAMS, Message: err.Error()}
		}
		kind = k
	}
	reply.Deployments = []DeploymentInfo{}
	for _, e := range s.registry.List() {
		if kind != "" && e.Descriptor.Kind() != kind {
			continue
		}
		reply.Deployments = append(reply.Deployments, InfoFor(e))
	}
	return nil
}

// Describe returns one deployment. Name may carry a version constraint.
func (s *Service) Describe(_ *http.Request, args *DescribeArgs, reply *DescribeReply) error {
	ref, err := deployment.ParseRef(args.Name)
	if err != nil {
		return &json2.Error{Code: json2.E_BAD_PARAMS, Message: err.Error()}
	}
	entry, err := s.registry.LookupRef(ref)
	if err != nil {
		if errors.Is(err, deployment.ErrNotFound) {
			return &json2.Error{Code: json2.E_BAD_PARAMS, Message: fmt.Sprintf("deployment %s not found", ref)}
		}
		return err
	}
	reply.Deployment = InfoFor(entry)
	return nil
}

// NewHandler returns the JSON-RPC HTTP handler serving the Admin service.
func NewHandler(registry *deployment.Registry) (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	if err := server.RegisterService(NewService(registry), ServiceName); err != nil {
		return nil, fmt.Errorf("%s - register service: %w", logPrefix, err)
	}
	slog.Debug(fmt.Sprintf("%s - Registered %s JSON-RPC service", logPrefix, ServiceName))
	return server, nil
}
