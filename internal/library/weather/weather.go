// Package weather looks up current conditions on WeatherAPI.
package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
)

const (
	defaultAPIBase = "https://api.weatherapi.com"
	defaultTimeout = 10 * time.Second
)

var (
	// ErrLocationRequired is returned for an empty query.
	ErrLocationRequired = errors.New("location is required")
	// ErrMissingAPIKey is returned when no key is configured.
	ErrMissingAPIKey = errors.New("weather api key missing")
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("weather not found")
)

// NotFoundError is an upstream rejection, usually an unknown place.
type NotFoundError struct {
	// Message is the provider's explanation, may be empty.
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message == "" {
		return ErrNotFound.Error()
	}
	return e.Message
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Current is the summary returned to clients.
type Current struct {
	Location     string  `json:"location"`
	Region       string  `json:"region"`
	Country      string  `json:"country"`
	Climate      string  `json:"climate"`
	TemperatureC float64 `json:"temperatureC"`
	WindKph      float64 `json:"windKph"`
	Humidity     int     `json:"humidity"`
}

// Client calls the current.json endpoint.
type Client struct {
	apiBase    string
	apiKey     string
	httpClient *http.Client
}

// NewClient returns a Client, filling defaults for empty values.
func NewClient(apiBase, apiKey string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = defaultAPIBase
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpcli, err := gutils.NewHTTPClient(gutils.WithHTTPClientTimeout(timeout))
	if err != nil {
		return nil, errors.Wrap(err, "new http client")
	}

	return &Client{
		apiBase:    strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpcli,
	}, nil
}

type currentResponse struct {
	Location struct {
		Name    string `json:"name"`
		Region  string `json:"region"`
		Country string `json:"country"`
	} `json:"location"`
	Current struct {
		TempC     float64 `json:"temp_c"`
		WindKph   float64 `json:"wind_kph"`
		Humidity  int     `json:"humidity"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Current fetches the weather for a free-text location.
func (c *Client) Current(ctx context.Context, location string) (*Current, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, ErrLocationRequired
	}
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	query := url.Values{}
	query.Set("key", c.apiKey)
	query.Set("q", location)
	query.Set("aqi", "no")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.apiBase+"/v1/current.json?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request weather")
	}
	defer resp.Body.Close()

	var decoded currentResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&decoded)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		nf := new(NotFoundError)
		if decodeErr == nil && decoded.Error != nil {
			nf.Message = decoded.Error.Message
		}
		return nil, nf
	}
	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "decode weather")
	}

	return &Current{
		Location:     decoded.Location.Name,
		Region:       decoded.Location.Region,
		Country:      decoded.Location.Country,
		Climate:      decoded.Current.Condition.Text,
		TemperatureC: decoded.Current.TempC,
		WindKph:      decoded.Current.WindKph,
		Humidity:     decoded.Current.Humidity,
	}, nil
}
