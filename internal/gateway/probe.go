/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/billhaggle/reqguard/log"
	"github.com/billhaggle/reqguard/reqclient"
	"github.com/billhaggle/reqguard/retry"
)

const probeMaxDrainSize = 64 * 1024

// Prober checks that the upstream is reachable and keeps reqclient.ConnectivityState up to date.
// Any response below 500 means the upstream is online, even 401 or 404.
type Prober struct {
	httpClient *http.Client
	url        string
	state      *reqclient.ConnectivityState
	policy     retry.Policy
	logger     log.FieldLogger
}

// NewProber creates a new Prober that sends GET requests to url.
func NewProber(
	httpClient *http.Client, url string, state *reqclient.ConnectivityState, policy retry.Policy, logger log.FieldLogger,
) *Prober {
	return &Prober{httpClient: httpClient, url: url, state: state, policy: policy, logger: logger}
}

// Run probes the upstream retrying failures according to the policy and records the outcome.
// It implements service.Worker.
func (p *Prober) Run(ctx context.Context) error {
	err := retry.DoWithRetry(ctx, p.policy, nil, func(err error, delay time.Duration) {
		p.logger.Debug("upstream probe failed, retrying", log.DurationMs("delay_ms", delay), log.Error(err))
	}, p.probe)
	if ctx.Err() != nil {
		return nil
	}

	online := err == nil
	if p.state.SetOnline(online) {
		if online {
			p.logger.Info("upstream is reachable", log.String("url", p.url))
		} else {
			p.logger.Warn("upstream is unreachable", log.String("url", p.url), log.Error(err))
		}
	}
	return err
}

func (p *Prober) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return fmt.Errorf("new probe request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, probeMaxDrainSize))
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.Debug("closing probe response body error", log.Error(closeErr))
		}
	}()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("upstream responded with status %d", resp.StatusCode)
	}
	return nil
}
