package container

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/morezero/beanserver/pkg/commsutil"
	"github.com/morezero/beanserver/pkg/keygen"
)

// counterBean counts calls and fails on request.
type counterBean struct {
	calls   int
	created bool
	removed bool
	total   float64
}

func (b *counterBean) Invoke(_ context.Context, method string, args commsutil.Args) (interface{}, error) {
	b.calls++
	switch method {
	case "count":
		return b.calls, nil
	case "add":
		var n float64
		if err := args.Decode(0, &n); err != nil {
			return nil, err
		}
		b.total += n
		return b.total, nil
	case "getTotal":
		return b.total, nil
	case "reject":
		return nil, NewApplicationError("InsufficientFunds", "balance too low", map[string]int{"balance": 3})
	case "fail":
		return nil, errors.New("database connection lost")
	case "panic":
		panic("nil map write")
	default:
		return nil, fmt.Errorf("unknown method %s", method)
	}
}

func (b *counterBean) Create(_ context.Context, args commsutil.Args) error {
	b.created = true
	if args.Len() > 0 {
		return args.Decode(0, &b.total)
	}
	return nil
}

func (b *counterBean) Remove(context.Context) error {
	b.removed = true
	return nil
}

func (b *counterBean) Load(row keygen.Row) error {
	if v, ok := row["total"].(float64); ok {
		b.total = v
	}
	return nil
}

func (b *counterBean) Snapshot() keygen.Row {
	return keygen.Row{"total": b.total}
}

func counterFactory() Bean { return &counterBean{} }

func mustArgs(values ...interface{}) commsutil.Args {
	args, err := commsutil.EncodeArgs(values...)
	if err != nil {
		panic(err)
	}
	return args
}

type countingGenerator struct {
	next    keygen.Key
	err     error
	started bool
}

func (g *countingGenerator) Start(context.Context) error { g.started = true; return nil }
func (g *countingGenerator) Stop()                       { g.started = false }
func (g *countingGenerator) NextKey(context.Context, keygen.Row) (keygen.Key, error) {
	if g.err != nil {
		return 0, g.err
	}
	g.next++
	return g.next, nil
}
func (g *countingGenerator) UpdateCache(cache *keygen.TxCache, txID string, key keygen.Key, row keygen.Row) {
	if txID != "" {
		cache.Put(txID, key, row)
	}
}

// gatedBean blocks inside failSlow and Remove until gate is closed, so other
// calls can queue behind the instance lock.
type gatedBean struct {
	counterBean
	entered chan struct{}
	gate    chan struct{}
}

func (b *gatedBean) Invoke(ctx context.Context, method string, args commsutil.Args) (interface{}, error) {
	if method == "failSlow" {
		b.total = -999
		b.entered <- struct{}{}
		<-b.gate
		return nil, errors.New("ledger write timed out")
	}
	return b.counterBean.Invoke(ctx, method, args)
}

func (b *gatedBean) Remove(context.Context) error {
	b.entered <- struct{}{}
	<-b.gate
	return nil
}

func gatedFactory(entered, gate chan struct{}) Factory {
	return func() Bean { return &gatedBean{entered: entered, gate: gate} }
}

// flakyFactory panics on its first n calls.
func flakyFactory(n int) Factory {
	var mu sync.Mutex
	return func() Bean {
		mu.Lock()
		defer mu.Unlock()
		if n > 0 {
			n--
			panic("connection pool not ready")
		}
		return &counterBean{}
	}
}
