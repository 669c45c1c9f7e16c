package remote

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/unit-companion/internal/link"
)

const (
	forecastHours = 12
	weatherTime   = "2006-01-02T15:04"
)

// WeatherClient fetches current conditions and an hourly forecast from an
// Open-Meteo compatible API.
type WeatherClient struct {
	client  *Client
	baseURL string
}

func NewWeatherClient(client *Client, baseURL string) *WeatherClient {
	return &WeatherClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type forecastResponse struct {
	Current struct {
		Time          string  `json:"time"`
		Temperature   float64 `json:"temperature_2m"`
		ApparentTemp  float64 `json:"apparent_temperature"`
		Humidity      int     `json:"relative_humidity_2m"`
		Precipitation float64 `json:"precipitation"`
		WeatherCode   int     `json:"weather_code"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		WindDirection int     `json:"wind_direction_10m"`
	} `json:"current"`
	Hourly struct {
		Time          []string  `json:"time"`
		Temperature   []float64 `json:"temperature_2m"`
		Precipitation []float64 `json:"precipitation"`
		WeatherCode   []int     `json:"weather_code"`
	} `json:"hourly"`
}

func (w *WeatherClient) Weather(ctx context.Context, lat, lon float64) (link.WeatherReport, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	query.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	query.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,precipitation,weather_code,wind_speed_10m,wind_direction_10m")
	query.Set("hourly", "temperature_2m,precipitation,weather_code")
	query.Set("forecast_hours", strconv.Itoa(forecastHours))
	query.Set("timezone", "UTC")

	var out forecastResponse
	if err := w.client.getJSON(ctx, w.baseURL+"/v1/forecast", query, &out); err != nil {
		return link.WeatherReport{}, err
	}

	observed, err := time.Parse(weatherTime, out.Current.Time)
	if err != nil {
		return link.WeatherReport{}, fmt.Errorf("parsing observation time: %w", err)
	}

	report := link.WeatherReport{
		Lat:           lat,
		Lon:           lon,
		Temperature:   out.Current.Temperature,
		ApparentTemp:  out.Current.ApparentTemp,
		WindSpeed:     out.Current.WindSpeed,
		WindDirection: out.Current.WindDirection,
		Humidity:      out.Current.Humidity,
		WeatherCode:   out.Current.WeatherCode,
		Precipitation: out.Current.Precipitation,
		ObservedAt:    observed,
	}

	hourly := out.Hourly
	if len(hourly.Temperature) != len(hourly.Time) || len(hourly.Precipitation) != len(hourly.Time) || len(hourly.WeatherCode) != len(hourly.Time) {
		return link.WeatherReport{}, fmt.Errorf("inconsistent hourly forecast: %d times", len(hourly.Time))
	}

	for i, ts := range hourly.Time {
		t, err := time.Parse(weatherTime, ts)
		if err != nil {
			return link.WeatherReport{}, fmt.Errorf("parsing forecast time: %w", err)
		}
		report.HourlyForecast = append(report.HourlyForecast, link.HourlyWeather{
			Time:          t,
			Temperature:   hourly.Temperature[i],
			Precipitation: hourly.Precipitation[i],
			WeatherCode:   hourly.WeatherCode[i],
		})
	}

	return report, nil
}
