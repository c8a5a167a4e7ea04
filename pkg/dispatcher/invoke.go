package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/morezero/beanserver/pkg/callctx"
	"github.com/morezero/beanserver/pkg/protocol"
	"github.com/morezero/beanserver/pkg/proxy"
)

const invokeLogPrefix = "dispatcher:invoke"

// handleInvoke resolves the deployment index, runs the call inside the
// worker's call context and maps the result to a response code.
func (s *Server) handleInvoke(ctx context.Context, req *protocol.InvokeRequest) (protocol.ResponseCode, interface{}) {
	entry, err := s.registry.LookupIndex(req.DeploymentIndex)
	if err != nil {
		return protocol.EJBObjectNotFound, protocol.SystemFailure{Message: err.Error()}
	}

	cc := callctx.Current(ctx)
	release := cc.Enter(entry.Descriptor, req)
	defer release()
	ctx = callctx.NewContext(ctx, cc)

	p, err := proxy.New(entry.Descriptor, entry.Index, req.PrimaryKey, req.Interface)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - %s: %v", invokeLogPrefix, entry.Name, err))
		return protocol.EJBSysException, protocol.SystemFailure{Message: err.Error()}
	}

	r := p.InvokeArgs(ctx, proxy.Method{Name: req.Method.Name, Params: req.Method.Params}, req.Args)
	slog.Debug(fmt.Sprintf("%s - %s[%s].%s -> %s", invokeLogPrefix, entry.Name, req.PrimaryKey, req.Method.Name, r.Kind))
	switch r.Kind {
	case proxy.ResultOK:
		value, err := json.Marshal(r.Value)
		if err != nil {
			return protocol.EJBSysException, protocol.SystemFailure{Message: fmt.Sprintf("encode result: %v", err)}
		}
		return protocol.EJBOK, protocol.InvokeResult{Value: value}
	case proxy.ResultApplicationError:
		return protocol.EJBApplicationException, protocol.ApplicationFailure{
			Type:    r.AppErr.Type,
			Message: r.AppErr.Message,
			Data:    r.AppErr.Data,
		}
	case proxy.ResultNotFound:
		return protocol.EJBObjectNotFound, protocol.SystemFailure{Message: r.Err.Error()}
	default:
		slog.Warn(fmt.Sprintf("%s - %s[%s].%s system failure: %v", invokeLogPrefix, entry.Name, req.PrimaryKey, req.Method.Name, r.Err))
		return protocol.EJBSysException, protocol.SystemFailure{Message: r.Err.Error()}
	}
}
