// Package satellite fetches satellite-derived risk context for located
// events from an external provider. The pipeline treats the payload as
// opaque JSON.
package satellite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"

	domainerrors "github.com/worldwatch/intel-backend/internal/domain/errors"
	"github.com/worldwatch/intel-backend/internal/domain/event"
	"github.com/worldwatch/intel-backend/internal/infrastructure/config"
)

const maxResponseBytes = 1 << 20 // 1 MiB

// Client is a rate-limited HTTP client for the satellite context API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient returns nil when the feature is disabled, letting callers wire
// the provider straight through.
func NewClient(cfg config.SatelliteConfig, logger *slog.Logger) *Client {
	if !cfg.Enabled || cfg.BaseURL == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// FetchContext retrieves the risk context around an event's coordinates.
// The raw response body is returned untouched.
func (c *Client) FetchContext(ctx context.Context, ev *event.ClusteredEvent) (json.RawMessage, error) {
	if !ev.HasLocation() {
		return nil, domainerrors.NewValidationError("NO_LOCATION", "event has no coordinates")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domainerrors.NewExternalError("satellite", "rate limit wait aborted").WithCause(err)
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(ev.Location.Latitude, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(ev.Location.Longitude, 'f', 6, 64))
	endpoint := fmt.Sprintf("%s/v1/context?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to build satellite request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domainerrors.NewExternalError("satellite", "context request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domainerrors.NewExternalError("satellite",
			fmt.Sprintf("provider returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domainerrors.NewExternalError("satellite", "failed to read response").WithCause(err)
	}
	return body, nil
}
