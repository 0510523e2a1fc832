// Package mlengine provides a client for the external ML prediction
// service: market regime calls, per-factor momentum signals, and
// Shapley-style factor attribution. Predictions are optional per cycle -
// any failure here degrades to "no predictions" rather than failing the
// caller.
package mlengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client is the ML engine API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new ML engine client
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		log: log.With().Str("component", "mlengine").Logger(),
	}
}

// predictionRequest is the shared request body for prediction endpoints
type predictionRequest struct {
	Scope     string                    `json:"scope"`
	Returns   []float64                 `json:"returns,omitempty"`
	Exposures map[domain.Factor]float64 `json:"exposures,omitempty"`
}

// GetRegimePrediction fetches the current regime call
func (c *Client) GetRegimePrediction(scope string, returns []float64) (*domain.RegimePrediction, error) {
	var prediction domain.RegimePrediction
	err := c.post("/regime", predictionRequest{Scope: scope, Returns: returns}, &prediction)
	if err != nil {
		return nil, err
	}
	return &prediction, nil
}

// GetFactorMomentum fetches per-factor momentum signals
func (c *Client) GetFactorMomentum(scope string) (map[domain.Factor]domain.MomentumPrediction, error) {
	var momentum map[domain.Factor]domain.MomentumPrediction
	err := c.post("/factor-momentum", predictionRequest{Scope: scope}, &momentum)
	if err != nil {
		return nil, err
	}
	return momentum, nil
}

// GetAttribution fetches the factor attribution decomposition
func (c *Client) GetAttribution(scope string, returns []float64, exposures map[domain.Factor]float64) (*domain.AttributionResult, error) {
	var attribution domain.AttributionResult
	err := c.post("/attribution", predictionRequest{Scope: scope, Returns: returns, Exposures: exposures}, &attribution)
	if err != nil {
		return nil, err
	}
	return &attribution, nil
}

// FetchPredictions assembles the optional prediction bundle for a
// cycle. Individual endpoint failures are logged and skipped; a fully
// empty bundle is returned as nil (the absent variant).
func (c *Client) FetchPredictions(scope string, episode *domain.Episode) *domain.ModelPredictions {
	predictions := &domain.ModelPredictions{}

	var returns []float64
	var exposures map[domain.Factor]float64
	if episode != nil {
		exposures = episode.FactorExposures
		for _, d := range episode.Decisions {
			if d.OutcomeReturn != nil {
				returns = append(returns, *d.OutcomeReturn)
			}
		}
	}

	if regime, err := c.GetRegimePrediction(scope, returns); err != nil {
		c.log.Warn().Err(err).Msg("Regime prediction unavailable")
	} else {
		predictions.Regime = regime
	}

	if momentum, err := c.GetFactorMomentum(scope); err != nil {
		c.log.Warn().Err(err).Msg("Factor momentum unavailable")
	} else {
		predictions.FactorMomentum = momentum
	}

	if attribution, err := c.GetAttribution(scope, returns, exposures); err != nil {
		c.log.Warn().Err(err).Msg("Factor attribution unavailable")
	} else {
		predictions.Attribution = attribution
	}

	if !predictions.HasRegime() && !predictions.HasMomentum() && !predictions.HasAttribution() {
		return nil
	}

	return predictions
}

// HealthCheck verifies the ML engine is reachable
func (c *Client) HealthCheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return fmt.Errorf("ml engine unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ml engine health check returned status %d", resp.StatusCode)
	}

	return nil
}

// post sends a JSON request and decodes the JSON response
func (c *Client) post(path string, body interface{}, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return nil
}
