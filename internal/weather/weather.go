package weather

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/url"
    "time"

    "golang.org/x/time/rate"

    "coldroute/internal/model"
)

// Provider returns the forecast for a location on a plan date.
type Provider interface {
    GetWeather(ctx context.Context, date string, at model.GeoPoint) (model.WeatherSnapshot, error)
}

// Conservative is the snapshot used when no provider answer is available.
// Mild temperature, no rain, so risk evaluation falls back to distance rules.
func Conservative() model.WeatherSnapshot {
    return model.WeatherSnapshot{TemperatureC: 22, Raining: false, Condition: "unknown"}
}

// HTTPProvider queries an external forecast endpoint. Calls are rate limited
// so a large batch pass does not hammer the upstream.
type HTTPProvider struct {
    baseURL string
    apiKey  string
    client  *http.Client
    limiter *rate.Limiter
}

func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
    return &HTTPProvider{
        baseURL: baseURL,
        apiKey: apiKey,
        client: &http.Client{Timeout: 5 * time.Second},
        limiter: rate.NewLimiter(rate.Limit(10), 20),
    }
}

type forecastResponse struct {
    TemperatureC float64 `json:"temperature_c"`
    Raining      bool    `json:"raining"`
    Condition    string  `json:"condition"`
}

func (p *HTTPProvider) GetWeather(ctx context.Context, date string, at model.GeoPoint) (model.WeatherSnapshot, error) {
    if err := p.limiter.Wait(ctx); err != nil {
        return model.WeatherSnapshot{}, err
    }
    q := url.Values{}
    q.Set("lat", fmt.Sprintf("%f", at.Lat))
    q.Set("lng", fmt.Sprintf("%f", at.Lng))
    q.Set("date", date)
    if p.apiKey != "" { q.Set("key", p.apiKey) }

    req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
    if err != nil { return model.WeatherSnapshot{}, err }
    resp, err := p.client.Do(req)
    if err != nil { return model.WeatherSnapshot{}, fmt.Errorf("weather request: %w", err) }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        return model.WeatherSnapshot{}, fmt.Errorf("weather request: status %d", resp.StatusCode)
    }
    var fr forecastResponse
    if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
        return model.WeatherSnapshot{}, fmt.Errorf("weather decode: %w", err)
    }
    return model.WeatherSnapshot{TemperatureC: fr.TemperatureC, Raining: fr.Raining, Condition: fr.Condition}, nil
}

// Static always returns the same snapshot. Used in tests and local runs
// without a forecast endpoint.
type Static struct {
    Snapshot model.WeatherSnapshot
    Err      error
}

func (s Static) GetWeather(ctx context.Context, date string, at model.GeoPoint) (model.WeatherSnapshot, error) {
    if s.Err != nil { return model.WeatherSnapshot{}, s.Err }
    return s.Snapshot, nil
}
