package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer opens upstream connections at <base>/<roomSlug>.
type Dialer struct {
	base         *url.URL
	dialer       websocket.Dialer
	forwardToken bool
}

// NewDialer validates baseURL and returns a Dialer. When forwardToken is
// set the verified client token is passed upstream as ?token=.
func NewDialer(baseURL string, timeout time.Duration, forwardToken bool) (*Dialer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("upstream url must use ws or wss, got %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Dialer{
		base: u,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		forwardToken: forwardToken,
	}, nil
}

// Target returns the upstream URL for a room without credentials, for logs.
func (d *Dialer) Target(roomSlug string) string {
	return d.url(roomSlug, "").String()
}

func (d *Dialer) url(roomSlug, token string) *url.URL {
	u := *d.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + roomSlug
	u.RawPath = ""
	if token != "" && d.forwardToken {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return &u
}

// Dial connects to the room's upstream endpoint. There is no retry.
func (d *Dialer) Dial(ctx context.Context, roomSlug, token string) (*websocket.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.url(roomSlug, token).String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("upstream handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial upstream: %w", err)
	}
	return conn, nil
}
