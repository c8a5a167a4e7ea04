// Package client speaks the bean protocol to a remote server, one connection
// per request.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/morezero/beanserver/pkg/commsutil"
	"github.com/morezero/beanserver/pkg/protocol"
)

const logPrefix = "client:client"

// DefaultTimeout bounds a request when its context has no deadline.
const DefaultTimeout = 30 * time.Second

// NewClientParams configures a Client.
type NewClientParams struct {
	Addr    string
	Timeout time.Duration
}

// Client sends requests to one server.
type Client struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

func New(params NewClientParams) *Client {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{addr: params.Addr, timeout: timeout}
}

// Addr returns the server address.
func (c *Client) Addr() string { return c.addr }

// Authenticate returns the identity token granted for principal.
func (c *Client) Authenticate(ctx context.Context, principal, credential string) (string, error) {
	resp, err := c.roundTrip(ctx, protocol.RequestAuth, protocol.AuthRequest{Principal: principal, Credential: credential})
	if err != nil {
		return "", err
	}
	switch resp.Code {
	case protocol.AuthGranted:
		var p protocol.AuthGrantedPayload
		if err := resp.Decode(&p); err != nil {
			return "", err
		}
		return p.Identity, nil
	case protocol.AuthDenied:
		var p protocol.AuthDeniedPayload
		_ = resp.Decode(&p)
		return "", fmt.Errorf("%s - %s: %w", logPrefix, p.Reason, ErrAuthDenied)
	default:
		return "", unexpected(resp)
	}
}

// LookupResult is a successful naming lookup: exactly one of Home or Context is set.
type LookupResult struct {
	Home    *protocol.HomeMetadata
	Context *protocol.ContextListing
}

// Lookup resolves path on the server.
func (c *Client) Lookup(ctx context.Context, path string) (*LookupResult, error) {
	resp, err := c.roundTrip(ctx, protocol.RequestJNDI, protocol.NamingRequest{Path: path})
	if err != nil {
		return nil, err
	}
	switch resp.Code {
	case protocol.JNDIEJBHome:
		var meta protocol.HomeMetadata
		if err := resp.Decode(&meta); err != nil {
			return nil, err
		}
		return &LookupResult{Home: &meta}, nil
	case protocol.JNDIContext:
		var listing protocol.ContextListing
		if err := resp.Decode(&listing); err != nil {
			return nil, err
		}
		return &LookupResult{Context: &listing}, nil
	case protocol.JNDINotFound:
		return nil, fmt.Errorf("%s - %s: %w", logPrefix, path, ErrNameNotFound)
	case protocol.JNDINamingException:
		var f protocol.NamingFailure
		if err := resp.Decode(&f); err != nil {
			return nil, err
		}
		return nil, &RemoteNamingError{Path: f.Path, Message: f.Message, Cause: f.Cause}
	default:
		return nil, unexpected(resp)
	}
}

// Home looks up path and returns a proxy for the component home it names.
func (c *Client) Home(ctx context.Context, path string) (*RemoteProxy, error) {
	res, err := c.Lookup(ctx, path)
	if err != nil {
		return nil, err
	}
	if res.Home == nil {
		return nil, fmt.Errorf("%s - %s: %w", logPrefix, path, ErrNotHome)
	}
	p := c.Proxy(protocol.Ref{
		DeploymentID:    res.Home.DeploymentID,
		DeploymentIndex: res.Home.DeploymentIndex,
		Interface:       protocol.InterfaceHome,
	})
	p.meta = res.Home
	return p, nil
}

// Invoke sends one invocation and returns the raw JSON result.
func (c *Client) Invoke(ctx context.Context, req protocol.InvokeRequest) (json.RawMessage, error) {
	resp, err := c.roundTrip(ctx, protocol.RequestEJB, req)
	if err != nil {
		return nil, err
	}
	switch resp.Code {
	case protocol.EJBOK:
		var r protocol.InvokeResult
		if err := resp.Decode(&r); err != nil {
			return nil, err
		}
		return r.Value, nil
	case protocol.EJBApplicationException:
		var f protocol.ApplicationFailure
		if err := resp.Decode(&f); err != nil {
			return nil, err
		}
		return nil, &RemoteApplicationError{Type: f.Type, Message: f.Message, Data: f.Data}
	case protocol.EJBSysException:
		var f protocol.SystemFailure
		if err := resp.Decode(&f); err != nil {
			return nil, err
		}
		return nil, &RemoteSystemError{Message: f.Message}
	case protocol.EJBObjectNotFound:
		var f protocol.SystemFailure
		_ = resp.Decode(&f)
		return nil, fmt.Errorf("%s - %s: %w", logPrefix, f.Message, ErrObjectNotFound)
	default:
		return nil, unexpected(resp)
	}
}

// Proxy returns a remote proxy for ref.
func (c *Client) Proxy(ref protocol.Ref) *RemoteProxy {
	if ref.Interface == "" {
		ref.Interface = protocol.InterfaceRemote
	}
	return &RemoteProxy{client: c, ref: ref}
}

func (c *Client) roundTrip(ctx context.Context, typ protocol.RequestType, payload interface{}) (*protocol.Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("%s - dial %s: %w", logPrefix, c.addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := protocol.WriteRequest(conn, typ, payload); err != nil {
		return nil, fmt.Errorf("%s - send %s request: %w", logPrefix, typ, err)
	}
	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		return nil, fmt.Errorf("%s - read %s response: %w", logPrefix, typ, err)
	}
	return resp, nil
}

func unexpected(resp *protocol.Response) error {
	return fmt.Errorf("%s - unexpected response %s", logPrefix, resp.Code)
}

// RemoteProxy addresses a home or component object on the server.
type RemoteProxy struct {
	client *Client
	ref    protocol.Ref
	meta   *protocol.HomeMetadata
}

// Ref returns the proxy's reference.
func (p *RemoteProxy) Ref() protocol.Ref { return p.ref }

// Metadata returns the home metadata when the proxy came from a lookup.
func (p *RemoteProxy) Metadata() *protocol.HomeMetadata { return p.meta }

// Invoke calls method with args and returns the raw JSON result.
func (p *RemoteProxy) Invoke(ctx context.Context, method string, args ...interface{}) (json.RawMessage, error) {
	encoded, err := commsutil.EncodeArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("%s - encode %s args: %w", logPrefix, method, err)
	}
	return p.client.Invoke(ctx, protocol.InvokeRequest{
		DeploymentIndex: p.ref.DeploymentIndex,
		PrimaryKey:      p.ref.PrimaryKey,
		Interface:       p.ref.Interface,
		Method:          protocol.MethodDescriptor{Name: method},
		Args:            encoded,
	})
}

// Call invokes method and decodes the result into out. A nil out discards it.
func (p *RemoteProxy) Call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	raw, err := p.Invoke(ctx, method, args...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s - decode %s result: %w", logPrefix, method, err)
	}
	return nil
}

// Create calls a home create method and returns a proxy for the new object.
func (p *RemoteProxy) Create(ctx context.Context, method string, args ...interface{}) (*RemoteProxy, error) {
	return p.refCall(ctx, method, args...)
}

// Find calls a single-object home finder such as findByPrimaryKey.
func (p *RemoteProxy) Find(ctx context.Context, method string, args ...interface{}) (*RemoteProxy, error) {
	return p.refCall(ctx, method, args...)
}

func (p *RemoteProxy) refCall(ctx context.Context, method string, args ...interface{}) (*RemoteProxy, error) {
	var ref protocol.Ref
	if err := p.Call(ctx, &ref, method, args...); err != nil {
		return nil, err
	}
	return p.client.Proxy(ref), nil
}

// FindAll calls a home collection finder.
func (p *RemoteProxy) FindAll(ctx context.Context, method string, args ...interface{}) ([]*RemoteProxy, error) {
	var refs []protocol.Ref
	if err := p.Call(ctx, &refs, method, args...); err != nil {
		return nil, err
	}
	out := make([]*RemoteProxy, 0, len(refs))
	for _, ref := range refs {
		out = append(out, p.client.Proxy(ref))
	}
	return out, nil
}
