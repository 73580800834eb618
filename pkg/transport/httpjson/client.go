package httpjson

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tarlanmammadov/paxos-council/pkg/transport"
)

// Client is a thin HTTP client for a member's admin surface. It supports
// optional TLS configuration and simple retry with backoff for robustness
// against a member that is briefly unreachable.
type Client struct {
	httpc     *http.Client
	transport *http.Transport
	isTLS     bool
}

// NewClient constructs a new Client with the given timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	tr := &http.Transport{}
	return &Client{httpc: &http.Client{Timeout: timeout, Transport: tr}, transport: tr}
}

// UseTLS sets the TLS config for the underlying HTTP client and switches the
// request scheme to https.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
	if c.transport != nil {
		c.transport.TLSClientConfig = cfg
	}
	c.isTLS = cfg != nil
	return c
}

func (c *Client) scheme() string {
	if c.isTLS {
		return "https"
	}
	return "http"
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
	url := fmt.Sprintf("%s://%s/status", c.scheme(), addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
		} else {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(resp.Body)
				lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
			} else {
				return io.ReadAll(resp.Body)
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
		}
	}
	return nil, lastErr
}

func (c *Client) PostPropose(ctx context.Context, addr string, req transport.ProposeRequest) (transport.ProposeResponse, error) {
	url := fmt.Sprintf("%s://%s/propose", c.scheme(), addr)
	var out transport.ProposeResponse
	body, err := json.Marshal(req)
	if err != nil {
		return out, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := c.httpc.Do(httpReq)
		if err != nil {
			lastErr = err
		} else {
			func() {
				defer resp.Body.Close()
				b, _ := io.ReadAll(resp.Body)
				_ = json.Unmarshal(b, &out)
				if resp.StatusCode != http.StatusOK {
					if out.Error != "" {
						lastErr = errors.New(out.Error)
					} else {
						lastErr = fmt.Errorf("propose status %d: %s", resp.StatusCode, string(b))
					}
				} else {
					lastErr = nil
				}
			}()
			if lastErr == nil {
				return out, nil
			}
		}
		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return out, lastErr
		case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
		}
	}
	return out, lastErr
}

func (c *Client) PostReset(ctx context.Context, addr string) (transport.ResetResponse, error) {
	url := fmt.Sprintf("%s://%s/reset", c.scheme(), addr)
	var out transport.ResetResponse
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return out, err
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := c.httpc.Do(httpReq)
		if err != nil {
			lastErr = err
		} else {
			func() {
				defer resp.Body.Close()
				b, _ := io.ReadAll(resp.Body)
				_ = json.Unmarshal(b, &out)
				if resp.StatusCode != http.StatusOK {
					if out.Error != "" {
						lastErr = errors.New(out.Error)
					} else {
						lastErr = fmt.Errorf("reset status %d: %s", resp.StatusCode, string(b))
					}
				} else {
					lastErr = nil
				}
			}()
			if lastErr == nil {
				return out, nil
			}
		}
		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return out, lastErr
		case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
		}
	}
	return out, lastErr
}

var _ transport.AdminClient = (*Client)(nil)
