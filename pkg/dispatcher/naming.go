package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/beanserver/pkg/deployment"
	"github.com/morezero/beanserver/pkg/naming"
	"github.com/morezero/beanserver/pkg/protocol"
)

const namingLogPrefix = "dispatcher:naming"

// handleNaming resolves a lookup path. Registered deployments win; anything
// else goes to the naming resolver.
func (s *Server) handleNaming(_ context.Context, req *protocol.NamingRequest) (protocol.ResponseCode, interface{}) {
	path := naming.Normalize(req.Path)
	slog.Debug(fmt.Sprintf("%s - lookup %q", namingLogPrefix, path))

	if path != "" && !strings.Contains(path, "/") {
		ref, err := deployment.ParseRef(path)
		if err != nil {
			return namingFailure(protocol.JNDINamingException, req.Path, "invalid deployment reference", err)
		}
		entry, err := s.registry.LookupRef(ref)
		if err == nil {
			return protocol.JNDIEJBHome, homeMetadata(entry)
		}
		if ref.Constraint != nil {
			return namingFailure(protocol.JNDINotFound, req.Path, "", err)
		}
	}

	if s.resolver == nil {
		return namingFailure(protocol.JNDINotFound, req.Path, "", nil)
	}
	value, err := s.resolver.Lookup(path)
	if err != nil {
		if errors.Is(err, naming.ErrNotFound) {
			return namingFailure(protocol.JNDINotFound, req.Path, "", err)
		}
		return namingFailure(protocol.JNDINamingException, req.Path, "lookup failed", err)
	}

	switch v := value.(type) {
	case naming.SubContext:
		return protocol.JNDIContext, protocol.ContextListing{Path: v.Path, Names: v.Names}
	case naming.Link:
		entry, err := s.registry.Lookup(v.Target)
		if err != nil {
			return namingFailure(protocol.JNDINotFound, req.Path, "link target "+v.Target+" is not deployed", err)
		}
		return protocol.JNDIEJBHome, homeMetadata(entry)
	default:
		return namingFailure(protocol.JNDINamingException, req.Path, "not a component reference", nil)
	}
}

func homeMetadata(entry deployment.Entry) protocol.HomeMetadata {
	d := entry.Descriptor
	return protocol.HomeMetadata{
		DeploymentID:    d.ID(),
		DeploymentIndex: entry.Index,
		Kind:            string(d.Kind()),
		HomeInterface:   d.HomeInterface(),
		RemoteInterface: d.RemoteInterface(),
		LocalInterface:  d.LocalInterface(),
		PrimaryKeyType:  d.PrimaryKeyType(),
		Version:         d.VersionString(),
	}
}

func namingFailure(code protocol.ResponseCode, path, message string, cause error) (protocol.ResponseCode, interface{}) {
	f := protocol.NamingFailure{Path: path, Message: message}
	if cause != nil {
		f.Cause = cause.Error()
	}
	return code, f
}
