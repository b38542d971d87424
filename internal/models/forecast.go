package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Upstream date formats used by the provider.
const (
	upstreamDateLayout     = "2006-01-02"
	upstreamDateTimeLayout = "2006-01-02 15:04"
)

// ForecastEnvelope is the provider response for both current.json and forecast.json.
type ForecastEnvelope struct {
	Location Location `json:"location"`
	Current  Current  `json:"current"`
	Forecast Forecast `json:"forecast"`
}

type Location struct {
	Name    string `json:"name"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

type Current struct {
	TempC float64 `json:"temp_c"`
	TempF float64 `json:"temp_f"`
}

type Forecast struct {
	Days []ForecastDay `json:"forecastday"`
}

// ForecastDay holds one calendar day with its hourly temperatures (24 entries from a well-formed provider).
type ForecastDay struct {
	Date     time.Time
	Hourly   []HourlyTemp
	MaxTempC float64
}

type HourlyTemp struct {
	Time  time.Time
	TempC float64
}

func (d *ForecastDay) UnmarshalJSON(data []byte) error {
	var raw struct {
		Date string `json:"date"`
		Day  struct {
			MaxTempC float64 `json:"maxtemp_c"`
		} `json:"day"`
		Hour []HourlyTemp `json:"hour"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	date, err := time.Parse(upstreamDateLayout, raw.Date)
	if err != nil {
		return fmt.Errorf("forecast day date %q: %w", raw.Date, err)
	}
	*d = ForecastDay{Date: date, Hourly: raw.Hour, MaxTempC: raw.Day.MaxTempC}
	return nil
}

func (h *HourlyTemp) UnmarshalJSON(data []byte) error {
	var raw struct {
		Time  string  `json:"time"`
		TempC float64 `json:"temp_c"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := time.Parse(upstreamDateTimeLayout, raw.Time)
	if err != nil {
		return fmt.Errorf("hourly time %q: %w", raw.Time, err)
	}
	*h = HourlyTemp{Time: t, TempC: raw.TempC}
	return nil
}
