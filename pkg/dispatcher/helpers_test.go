package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/morezero/beanserver/pkg/callctx"
	"github.com/morezero/beanserver/pkg/commsutil"
	"github.com/morezero/beanserver/pkg/container"
	"github.com/morezero/beanserver/pkg/deployment"
	"github.com/morezero/beanserver/pkg/keygen"
	"github.com/morezero/beanserver/pkg/naming"
	"github.com/morezero/beanserver/pkg/protocol"
)

// orderBean is an entity holding an order total.
type orderBean struct {
	total float64
}

func (b *orderBean) Invoke(ctx context.Context, method string, args commsutil.Args) (interface{}, error) {
	switch method {
	case "getTotal":
		return b.total, nil
	case "addItem":
		var price float64
		if err := args.Decode(0, &price); err != nil {
			return nil, err
		}
		b.total += price
		return b.total, nil
	case "cancel":
		return nil, container.NewApplicationError("OrderShipped", "order already shipped", map[string]string{"state": "shipped"})
	case "deployment":
		return callctx.Current(ctx).Deployment().ID(), nil
	case "fail":
		return nil, errors.New("ledger unavailable")
	case "panic":
		panic("corrupt order state")
	default:
		return nil, fmt.Errorf("unknown method %s", method)
	}
}

func (b *orderBean) Load(row keygen.Row) error {
	if v, ok := row["total"].(float64); ok {
		b.total = v
	}
	return nil
}

func (b *orderBean) Snapshot() keygen.Row { return keygen.Row{"total": b.total} }

func orderFactory() container.Bean { return &orderBean{} }

func mustDeploy(t *testing.T, reg *deployment.Registry, id string, kind deployment.Kind, version string, c container.Container) {
	t.Helper()
	d, err := deployment.NewDescriptor(deployment.DescriptorParams{
		ID:              id,
		Kind:            kind,
		HomeInterface:   "com.acme." + id + "Home",
		RemoteInterface: "com.acme." + id,
		PrimaryKeyType:  "java.lang.String",
		Version:         version,
		Container:       c,
	})
	if err != nil {
		t.Fatalf("dispatcher:helpers_test - NewDescriptor(%s): %v", id, err)
	}
	if _, err := reg.Register(context.Background(), id, d); err != nil {
		t.Fatalf("dispatcher:helpers_test - Register(%s): %v", id, err)
	}
}

// newTestServer deploys Greeter (1), Cart (2) and OrderService (3) with
// order "X-1" totalling 42, plus a naming tree under env/.
func newTestServer(t *testing.T, auth Authenticator) *Server {
	t.Helper()
	reg := deployment.NewRegistry(deployment.NewRegistryParams{})
	mustDeploy(t, reg, "Greeter", deployment.KindStateless, "", container.NewStatelessContainer("Greeter", orderFactory, 2))
	mustDeploy(t, reg, "Cart", deployment.KindStateful, "", container.NewStatefulContainer("Cart", orderFactory, 0))

	store := container.NewMemoryStore()
	if err := store.Save(context.Background(), "X-1", keygen.Row{"total": 42.0}); err != nil {
		t.Fatalf("dispatcher:helpers_test - seed order: %v", err)
	}
	mustDeploy(t, reg, "OrderService", deployment.KindEntity, "1.4.0", container.NewEntityContainer(container.EntityContainerParams{
		ID: "OrderService", Factory: orderFactory, Store: store,
	}))

	names := naming.New()
	for path, v := range map[string]interface{}{
		"env/OrderAlias":  naming.Link{Target: "OrderService"},
		"env/GoneAlias":   naming.Link{Target: "Retired"},
		"env/jdbc/Orders": "postgres://orders",
	} {
		if err := names.Bind(path, v); err != nil {
			t.Fatalf("dispatcher:helpers_test - Bind(%s): %v", path, err)
		}
	}

	return NewServer(ServerParams{
		Registry:      reg,
		Resolver:      names,
		Authenticator: auth,
		Workers:       4,
		ReadTimeout:   2 * time.Second,
		WriteTimeout:  2 * time.Second,
	})
}

// startServer serves s on a loopback port and shuts it down at cleanup.
func startServer(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("dispatcher:helpers_test - Listen: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Errorf("dispatcher:helpers_test - Shutdown: %v", err)
		}
		if err := <-errCh; !errors.Is(err, ErrServerClosed) {
			t.Errorf("dispatcher:helpers_test - Serve returned %v, want ErrServerClosed", err)
		}
	})
	return ln.Addr().String()
}

// roundTrip sends one request and reads the response.
func roundTrip(t *testing.T, addr string, typ protocol.RequestType, payload interface{}) *protocol.Response {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dispatcher:helpers_test - Dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	if err := protocol.WriteRequest(conn, typ, payload); err != nil {
		t.Fatalf("dispatcher:helpers_test - WriteRequest: %v", err)
	}
	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		t.Fatalf("dispatcher:helpers_test - ReadResponse: %v", err)
	}
	return resp
}

func mustArgs(t *testing.T, values ...interface{}) commsutil.Args {
	t.Helper()
	args, err := commsutil.EncodeArgs(values...)
	if err != nil {
		t.Fatalf("dispatcher:helpers_test - EncodeArgs: %v", err)
	}
	return args
}
