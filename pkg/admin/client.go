package admin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2/json2"
)

// Client calls the Admin service at URL.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string) *Client {
	return &Client{url: url, http: &http.Client{Timeout: 30 * time.Second}}
}

// Call sends one JSON-RPC request. Server-side failures are *json2.Error.
func (c *Client) Call(ctx context.Context, method string, args, reply interface{}) error {
	body, err := json2.EncodeClientRequest(method, args)
	if err != nil {
		return fmt.Errorf("admin:client - encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("admin:client - build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("admin:client - %s: %w", method, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("admin:client - %s: status %d", method, resp.StatusCode)
	}
	return json2.DecodeClientResponse(resp.Body, reply)
}

func (c *Client) ListDeployments(ctx context.Context, kind string) ([]DeploymentInfo, error) {
	var reply ListDeploymentsReply
	if err := c.Call(ctx, ServiceName+".ListDeployments", &ListDeploymentsArgs{Kind: kind}, &reply); err != nil {
		return nil, err
	}
	return reply.Deployments, nil
}

func (c *Client) Describe(ctx context.Context, name string) (DeploymentInfo, error) {
	var reply DescribeReply
	if err := c.Call(ctx, ServiceName+".Describe", &DescribeArgs{Name: name}, &reply); err != nil {
		return DeploymentInfo{}, err
	}
	return reply.Deployment, nil
}
