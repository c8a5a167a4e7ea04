package proxy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/morezero/beanserver/pkg/commsutil"
	"github.com/morezero/beanserver/pkg/container"
	"github.com/morezero/beanserver/pkg/deployment"
	"github.com/morezero/beanserver/pkg/keygen"
)

// HomeHandler implements create, find and remove for every kind.
// Exactly one container field is set, matching kind.
type HomeHandler struct {
	kind      deployment.Kind
	stateless *container.StatelessContainer
	stateful  *container.StatefulContainer
	entity    *container.EntityContainer
	singleton *container.SingletonContainer
}

// Invoke dispatches create*, find* and remove. Created and found objects are
// returned as Ref values (a []Ref for collection finders).
func (h *HomeHandler) Invoke(ctx context.Context, method Method, args commsutil.Args, info Info) Result {
	switch {
	case strings.HasPrefix(method.Name, "create"):
		return h.create(ctx, args, info)
	case strings.HasPrefix(method.Name, "find"):
		return h.find(ctx, method.Name, args, info)
	case method.Name == methodRemove:
		return h.remove(ctx, args, info)
	default:
		return SysError(fmt.Errorf("%s - %s: %q is not a home method", logPrefix, info.DeploymentID, method.Name))
	}
}

func (h *HomeHandler) create(ctx context.Context, args commsutil.Args, info Info) Result {
	ref := objectRef(info, "")
	switch h.kind {
	case deployment.KindStateless, deployment.KindSingleton:
		return OK(ref)
	case deployment.KindStateful:
		pk, err := h.stateful.Create(ctx, args)
		if err != nil {
			return FromError(nil, err)
		}
		ref.PrimaryKey = pk
		return OK(ref)
	case deployment.KindEntity:
		return inTx(ctx, h.entity, func(ctx context.Context) Result {
			pk, err := h.entity.Create(ctx, args)
			if err != nil {
				var kgErr *keygen.KeyGenerationError
				if errors.As(err, &kgErr) {
					return SysError(fmt.Errorf("%s - %s: create failed: %s", logPrefix, info.DeploymentID, kgErr.Error()))
				}
				return FromError(nil, err)
			}
			ref.PrimaryKey = pk
			return OK(ref)
		})
	default:
		return SysError(fmt.Errorf("%s - %s: %w", logPrefix, info.DeploymentID, ErrUnknownKind))
	}
}

func (h *HomeHandler) find(ctx context.Context, method string, args commsutil.Args, info Info) Result {
	if h.kind != deployment.KindEntity {
		return SysError(fmt.Errorf("%s - %s: %s homes have no finders", logPrefix, info.DeploymentID, h.kind))
	}
	return inTx(ctx, h.entity, func(ctx context.Context) Result {
		keys, err := h.entity.Find(ctx, method, args)
		if err != nil {
			return FromError(nil, err)
		}
		if strings.HasPrefix(method, "findAll") {
			refs := make([]Ref, 0, len(keys))
			for _, pk := range keys {
				refs = append(refs, objectRef(info, pk))
			}
			return OK(refs)
		}
		if len(keys) == 0 {
			return NotFound(fmt.Errorf("%s - %s: %s matched nothing: %w", logPrefix, info.DeploymentID, method, container.ErrObjectNotFound))
		}
		return OK(objectRef(info, keys[0]))
	})
}

func (h *HomeHandler) remove(ctx context.Context, args commsutil.Args, info Info) Result {
	var pk string
	if err := args.Decode(0, &pk); err != nil {
		return SysError(fmt.Errorf("%s - %s: remove: %w", logPrefix, info.DeploymentID, err))
	}
	switch h.kind {
	case deployment.KindStateful:
		return FromError(nil, h.stateful.Remove(ctx, pk))
	case deployment.KindEntity:
		return inTx(ctx, h.entity, func(ctx context.Context) Result {
			return FromError(nil, h.entity.Remove(ctx, pk))
		})
	default:
		return SysError(fmt.Errorf("%s - %s: %s objects cannot be removed by key", logPrefix, info.DeploymentID, h.kind))
	}
}

func objectRef(info Info, pk string) Ref {
	return Ref{DeploymentID: info.DeploymentID, DeploymentIndex: info.DeploymentIndex, PrimaryKey: pk, Interface: Remote}
}
