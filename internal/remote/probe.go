package remote

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	defaultProbeTTL     = 30 * time.Second
	defaultProbeTimeout = 3 * time.Second
)

// Probe reports internet connectivity by requesting a URL. The result is
// cached for ttl so frequent checks do not hit the network.
type Probe struct {
	client  *Client
	url     string
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu        sync.Mutex
	online    bool
	checkedAt time.Time
}

func NewProbe(client *Client, url string, ttl time.Duration) *Probe {
	if ttl <= 0 {
		ttl = defaultProbeTTL
	}
	return &Probe{
		client:  client,
		url:     url,
		ttl:     ttl,
		timeout: defaultProbeTimeout,
		now:     time.Now,
	}
}

func (p *Probe) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.checkedAt.IsZero() && p.now().Sub(p.checkedAt) < p.ttl {
		return p.online
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	online := true
	resp, err := p.client.do(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		online = false
	} else {
		_ = resp.Body.Close()
	}

	if online != p.online || p.checkedAt.IsZero() {
		p.client.logger.Info("connectivity changed", slog.Bool("online", online))
	}
	p.online, p.checkedAt = online, p.now()
	return online
}
