// Package beans holds the sample components shipped with beanserver and
// referenced by the bundled deployment manifest.
package beans

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/morezero/beanserver/pkg/commsutil"
	"github.com/morezero/beanserver/pkg/container"
	"github.com/morezero/beanserver/pkg/keygen"
)

// Factory names used in manifests.
const (
	GreeterBean = "greeter"
	CartBean    = "cart"
	OrderBean   = "order"
	ConfigBean  = "config"
)

// Register adds the sample factories to f.
func Register(f *container.BeanFactories) error {
	for name, factory := range map[string]container.Factory{
		GreeterBean: func() container.Bean { return &greeter{} },
		CartBean:    func() container.Bean { return &cart{} },
		OrderBean:   func() container.Bean { return &order{State: orderOpen} },
		ConfigBean:  func() container.Bean { return &settings{values: make(map[string]string)} },
	} {
		if err := f.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}

func unknownMethod(bean, method string) error {
	return fmt.Errorf("%s has no method %q", bean, method)
}

// greeter is stateless.
type greeter struct{}

func (g *greeter) Invoke(_ context.Context, method string, args commsutil.Args) (interface{}, error) {
	switch method {
	case "greet":
		var name string
		if err := args.Decode(0, &name); err != nil {
			return nil, err
		}
		if name == "" {
			return nil, container.NewApplicationError("InvalidName", "name must not be empty", nil)
		}
		return "Hello, " + name, nil
	default:
		return nil, unknownMethod(GreeterBean, method)
	}
}

// cart is a stateful session holding item SKUs.
type cart struct {
	owner string
	items []string
}

func (c *cart) Create(_ context.Context, args commsutil.Args) error {
	if args.Len() > 0 {
		return args.Decode(0, &c.owner)
	}
	return nil
}

func (c *cart) Invoke(_ context.Context, method string, args commsutil.Args) (interface{}, error) {
	switch method {
	case "owner":
		return c.owner, nil
	case "addItem":
		var sku string
		if err := args.Decode(0, &sku); err != nil {
			return nil, err
		}
		c.items = append(c.items, sku)
		return len(c.items), nil
	case "items":
		out := make([]string, len(c.items))
		copy(out, c.items)
		return out, nil
	case "checkout":
		if len(c.items) == 0 {
			return nil, container.NewApplicationError("EmptyCart", "cart has no items", nil)
		}
		n := len(c.items)
		c.items = nil
		return n, nil
	default:
		return nil, unknownMethod(CartBean, method)
	}
}

const (
	orderOpen      = "open"
	orderShipped   = "shipped"
	orderCancelled = "cancelled"
)

// order is an entity persisted as {customer, total, state}.
type order struct {
	Customer string
	Total    float64
	State    string
}

func (o *order) Create(_ context.Context, args commsutil.Args) error {
	if args.Len() == 0 {
		return container.NewApplicationError("InvalidOrder", "customer is required", nil)
	}
	if err := args.Decode(0, &o.Customer); err != nil {
		return err
	}
	if args.Len() > 1 {
		if err := args.Decode(1, &o.Total); err != nil {
			return err
		}
	}
	return nil
}

func (o *order) Invoke(_ context.Context, method string, args commsutil.Args) (interface{}, error) {
	switch method {
	case "getCustomer":
		return o.Customer, nil
	case "getTotal":
		return o.Total, nil
	case "getState":
		return o.State, nil
	case "addItem":
		if o.State != orderOpen {
			return nil, o.closed()
		}
		var amount float64
		if err := args.Decode(0, &amount); err != nil {
			return nil, err
		}
		if amount <= 0 {
			return nil, container.NewApplicationError("InvalidAmount", "amount must be positive", map[string]float64{"amount": amount})
		}
		o.Total += amount
		return o.Total, nil
	case "ship":
		if o.State != orderOpen {
			return nil, o.closed()
		}
		o.State = orderShipped
		return o.State, nil
	case "cancel":
		if o.State != orderOpen {
			return nil, o.closed()
		}
		o.State = orderCancelled
		return o.State, nil
	default:
		return nil, unknownMethod(OrderBean, method)
	}
}

func (o *order) closed() error {
	return container.NewApplicationError("OrderClosed", "order is "+o.State, map[string]string{"state": o.State})
}

func (o *order) Load(row keygen.Row) error {
	if v, ok := row["customer"].(string); ok {
		o.Customer = v
	}
	switch v := row["total"].(type) {
	case float64:
		o.Total = v
	case int:
		o.Total = float64(v)
	}
	if v, ok := row["state"].(string); ok && v != "" {
		o.State = v
	}
	return nil
}

func (o *order) Snapshot() keygen.Row {
	return keygen.Row{"customer": o.Customer, "total": o.Total, "state": o.State}
}

// settings is a singleton key/value map shared by every caller.
type settings struct {
	mu     sync.RWMutex
	values map[string]string
}

func (s *settings) Invoke(_ context.Context, method string, args commsutil.Args) (interface{}, error) {
	switch method {
	case "get":
		var key string
		if err := args.Decode(0, &key); err != nil {
			return nil, err
		}
		s.mu.RLock()
		v, ok := s.values[key]
		s.mu.RUnlock()
		if !ok {
			return nil, container.NewApplicationError("NoSuchSetting", "no setting "+key, nil)
		}
		return v, nil
	case "set":
		var key, value string
		if err := args.Decode(0, &key); err != nil {
			return nil, err
		}
		if err := args.Decode(1, &value); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.values[key] = value
		s.mu.Unlock()
		return nil, nil
	case "keys":
		s.mu.RLock()
		keys := make([]string, 0, len(s.values))
		for k := range s.values {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
		sort.Strings(keys)
		return keys, nil
	default:
		return nil, unknownMethod(ConfigBean, method)
	}
}
