// Package commsutil provides COMMS connection helpers and the JSON codecs shared
// by event payloads and invocation arguments.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

// Reconnect policy for long-lived server connections.
const (
	ConnectTimeout = 10 * time.Second
	ReconnectWait  = 2 * time.Second
	MaxReconnects  = 60
)

// Connect dials url as name. The connection reconnects in the background and
// logs state changes. extra options are applied after the defaults.
func Connect(url, name string, extra ...comms.Option) (*comms.Conn, error) {
	if url == "" {
		return nil, fmt.Errorf("%s - COMMS url is required", logPrefix)
	}
	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", logPrefix, url, name))

	opts := []comms.Option{
		comms.Name(name),
		comms.Timeout(ConnectTimeout),
		comms.ReconnectWait(ReconnectWait),
		comms.MaxReconnects(MaxReconnects),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			if err != nil {
				slog.Warn(fmt.Sprintf("%s - %s disconnected: %v", logPrefix, name, err))
			}
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - %s reconnected to %s", logPrefix, name, nc.ConnectedUrl()))
		}),
		comms.ClosedHandler(func(*comms.Conn) {
			slog.Debug(fmt.Sprintf("%s - %s connection closed", logPrefix, name))
		}),
	}
	nc, err := comms.Connect(url, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS at %s: %w", logPrefix, url, err)
	}
	return nc, nil
}
