package proxy

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/morezero/beanserver/pkg/commsutil"
	"github.com/morezero/beanserver/pkg/container"
	"github.com/morezero/beanserver/pkg/keygen"
)

// StatelessHandler dispatches to any pooled instance.
type StatelessHandler struct {
	container *container.StatelessContainer
}

// Invoke runs method on a pooled instance. remove is a no-op for stateless objects.
func (h *StatelessHandler) Invoke(ctx context.Context, method Method, args commsutil.Args, _ Info) Result {
	if method.Name == methodRemove {
		return OK(nil)
	}
	return FromError(h.container.Invoke(ctx, method.Name, args))
}

// StatefulHandler dispatches to the session named by the proxy's primary key.
type StatefulHandler struct {
	container *container.StatefulContainer
}

// Invoke runs method on the session. A system failure removes the session,
// so the next call through the same key reports not-found.
func (h *StatefulHandler) Invoke(ctx context.Context, method Method, args commsutil.Args, info Info) Result {
	if info.PrimaryKey == "" {
		return NotFound(fmt.Errorf("%s - %s: stateful call without a session key: %w", logPrefix, info.DeploymentID, container.ErrObjectNotFound))
	}
	if method.Name == methodRemove {
		return FromError(nil, h.container.Remove(ctx, info.PrimaryKey))
	}
	return FromError(h.container.Invoke(ctx, info.PrimaryKey, method.Name, args))
}

// EntityHandler dispatches to the persistent instance named by the primary key.
type EntityHandler struct {
	container *container.EntityContainer
}

// Invoke runs method on the loaded instance inside a transaction scope.
func (h *EntityHandler) Invoke(ctx context.Context, method Method, args commsutil.Args, info Info) Result {
	if info.PrimaryKey == "" {
		return NotFound(fmt.Errorf("%s - %s: entity call without a primary key: %w", logPrefix, info.DeploymentID, container.ErrObjectNotFound))
	}
	return inTx(ctx, h.container, func(ctx context.Context) Result {
		if method.Name == methodRemove {
			return FromError(nil, h.container.Remove(ctx, info.PrimaryKey))
		}
		return FromError(h.container.Invoke(ctx, info.PrimaryKey, method.Name, args))
	})
}

// SingletonHandler dispatches to the deployment's single instance.
type SingletonHandler struct {
	container *container.SingletonContainer
}

// Invoke runs method on the singleton. Singletons cannot be removed.
func (h *SingletonHandler) Invoke(ctx context.Context, method Method, args commsutil.Args, info Info) Result {
	if method.Name == methodRemove {
		return SysError(fmt.Errorf("%s - %s: singleton instances cannot be removed", logPrefix, info.DeploymentID))
	}
	return FromError(h.container.Invoke(ctx, method.Name, args))
}

// inTx runs fn inside the caller's transaction, or opens one scoped to this
// call that commits on success and rolls back otherwise.
func inTx(ctx context.Context, ec *container.EntityContainer, fn func(context.Context) Result) Result {
	if keygen.TxIDFromContext(ctx) != "" {
		return fn(ctx)
	}
	txID := uuid.NewString()
	r := fn(keygen.WithTxID(ctx, txID))
	if r.Kind == ResultOK {
		ec.Commit(txID)
	} else {
		ec.Rollback(txID)
	}
	return r
}
