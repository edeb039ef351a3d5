package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/technews/internal/generator"
	"github.com/deusflow/technews/internal/rss"
)

// NetworkTimeout bounds each reachability request.
const NetworkTimeout = 5 * time.Second

var defaultEndpoints = map[string]string{
	generator.ProviderGemini:   "https://generativelanguage.googleapis.com",
	generator.ProviderOpenAI:   "https://api.openai.com",
	generator.ProviderDeepSeek: "https://api.deepseek.com",
	generator.ProviderOllama:   "http://127.0.0.1:11434",
}

// NetworkReport lists unreachable sources as warnings and unreachable
// provider endpoints as errors.
type NetworkReport struct {
	Warnings []string
	Errors   []error
}

// Err joins the provider errors.
func (r NetworkReport) Err() error {
	return errors.Join(r.Errors...)
}

type reachTarget struct {
	name     string
	url      string
	provider bool
}

// CheckNetwork sends a HEAD request to every source and to the endpoint of
// every provider the stages use. No tokens are spent.
func (a *App) CheckNetwork(ctx context.Context, client *http.Client) NetworkReport {
	if client == nil {
		client = &http.Client{}
	}

	var targets []reachTarget
	for _, src := range a.Catalog.Sources {
		targets = append(targets, reachTarget{name: src.ID, url: src.URL})
	}
	for _, p := range a.Catalog.Stages.Providers() {
		targets = append(targets, reachTarget{name: p, url: a.endpoint(p), provider: true})
	}

	failures := make([]error, len(targets))
	var g errgroup.Group
	g.SetLimit(rss.MaxWorkers)
	for i, t := range targets {
		g.Go(func() error {
			failures[i] = a.head(ctx, client, t)
			return nil
		})
	}
	_ = g.Wait()

	var report NetworkReport
	reachable := 0
	for i, t := range targets {
		err := failures[i]
		switch {
		case err == nil:
			if !t.provider {
				reachable++
			}
		case t.provider:
			report.Errors = append(report.Errors, fmt.Errorf("%s API unreachable (%s): %w", t.name, t.url, err))
		default:
			report.Warnings = append(report.Warnings, fmt.Sprintf("source %s unreachable: %v", t.name, err))
		}
	}

	a.log.Info("📡 source reachability", "reachable", reachable, "total", len(a.Catalog.Sources))
	for _, w := range report.Warnings {
		a.log.Warn("⚠️ " + w)
	}
	return report
}

// head treats any response as reachable for providers, and a 4xx/5xx as a
// failure for sources.
func (a *App) head(ctx context.Context, client *http.Client, t reachTarget) error {
	ctx, cancel := context.WithTimeout(ctx, NetworkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, t.url, nil)
	if err != nil {
		return err
	}
	if ua := a.Catalog.Fetch.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if !t.provider && resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (a *App) endpoint(provider string) string {
	switch provider {
	case generator.ProviderOpenAI:
		if a.Config.OpenAIBaseURL != "" {
			return a.Config.OpenAIBaseURL
		}
	case generator.ProviderDeepSeek:
		if a.Config.DeepSeekBaseURL != "" {
			return a.Config.DeepSeekBaseURL
		}
	case generator.ProviderOllama:
		if host := os.Getenv("OLLAMA_HOST"); host != "" {
			if !strings.Contains(host, "://") {
				host = "http://" + host
			}
			return host
		}
	}
	return defaultEndpoints[provider]
}
