// Package switchbot reads device status from the Switchbot cloud API.
package switchbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.switch-bot.com"

// statusSuccess is the API-level success code carried in the body.
const statusSuccess = 100

var (
	ErrBadStatus          = errors.New("switchbot: unexpected http status")
	ErrAPIStatus          = errors.New("switchbot: api error")
	ErrMissingTemperature = errors.New("switchbot: response has no temperature")
)

type Config struct {
	BaseURL  string
	Token    string
	DeviceID string
	Timeout  time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("switchbot: DeviceID is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

// Status is the device status payload. Only the fields of meter-type
// devices are decoded.
type Status struct {
	DeviceID    string   `json:"deviceId"`
	DeviceType  string   `json:"deviceType"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Battery     *int     `json:"battery"`
}

type statusResponse struct {
	StatusCode *int   `json:"statusCode"`
	Message    string `json:"message"`
	Body       Status `json:"body"`
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1.0/devices/" + url.PathEscape(c.cfg.DeviceID) + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Status{}, fmt.Errorf("switchbot: build request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("switchbot: get status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.CopyN(io.Discard, resp.Body, 512)
		return Status{}, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Status{}, fmt.Errorf("switchbot: decode status: %w", err)
	}
	if sr.StatusCode != nil && *sr.StatusCode != statusSuccess {
		return Status{}, fmt.Errorf("%w: %d %s", ErrAPIStatus, *sr.StatusCode, sr.Message)
	}
	return sr.Body, nil
}

// FetchTemperature returns the current reading in degrees Celsius.
func (c *Client) FetchTemperature(ctx context.Context) (float64, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return 0, err
	}
	if st.Temperature == nil {
		return 0, ErrMissingTemperature
	}
	return *st.Temperature, nil
}
