package timeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/perfmaster/agent/internal/logging"
)

const defaultProbeInterval = 30 * time.Second

// ProberConfig configures a Prober.
type ProberConfig struct {
	Target    string        // page fetched once as the navigation
	Resources []string      // URLs fetched on every interval
	Interval  time.Duration // delay between resource rounds
	Rate      int           // max resource fetches per second, 0 for unlimited
}

// Prober feeds a Buffer by loading a target page and then periodically
// fetching its resources through a recording Transport.
type Prober struct {
	cfg     ProberConfig
	buf     *Buffer
	client  *http.Client
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

// NewProber creates a Prober. base is the underlying transport used for the
// recorded requests (http.DefaultTransport when nil).
func NewProber(buf *Buffer, cfg ProberConfig, base http.RoundTripper, log logrus.FieldLogger) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProbeInterval
	}
	limit := rate.Inf
	burst := 1
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
		burst = cfg.Rate
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Prober{
		cfg:     cfg,
		buf:     buf,
		client:  &http.Client{Transport: NewTransport(buf, base), Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(limit, burst),
		log:     logging.Component(log, "prober"),
	}
}

// Run performs the navigation, marks the page loaded, and fetches resources
// every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	if p.cfg.Target != "" {
		if err := p.fetch(WithNavigation(ctx), p.cfg.Target); err != nil {
			p.log.WithError(err).Warn("navigation request failed")
		}
	}
	p.buf.MarkLoaded()

	if len(p.cfg.Resources) == 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := p.round(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Prober) round(ctx context.Context) error {
	for _, url := range p.cfg.Resources {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := p.fetch(ctx, url); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.WithError(err).WithField("url", url).Debug("resource request failed")
		}
	}
	return nil
}

func (p *Prober) fetch(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	return nil
}
