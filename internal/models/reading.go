package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Unit is the temperature unit of a reading. Celsius is the only unit produced.
type Unit string

const UnitCelsius Unit = "celsius"

// DateTimeLayout is the wire format of WeatherReading.date.
const DateTimeLayout = "2006-01-02T15:04:05"

// RequestDateTimeLayout is the format of the dt query parameter (minute precision).
const RequestDateTimeLayout = "2006-01-02T15:04"

// WeatherReading is a resolved temperature for a city. Timestamp is nil for
// current weather and set for forecast readings. The JSON form is the HTTP
// wire shape: date is local wall time without an offset.
type WeatherReading struct {
	City        string
	Temperature float64
	Unit        Unit
	Timestamp   *time.Time
}

// NewCurrentReading builds a reading for "now" (no timestamp).
func NewCurrentReading(city string, tempC float64) WeatherReading {
	return WeatherReading{City: city, Temperature: tempC, Unit: UnitCelsius}
}

// NewForecastReading builds a reading pinned to t.
func NewForecastReading(city string, tempC float64, t time.Time) WeatherReading {
	ts := t
	return WeatherReading{City: city, Temperature: tempC, Unit: UnitCelsius, Timestamp: &ts}
}

type readingJSON struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
	Unit        Unit    `json:"unit"`
	Date        string  `json:"date,omitempty"`
}

func (r WeatherReading) MarshalJSON() ([]byte, error) {
	out := readingJSON{City: r.City, Temperature: r.Temperature, Unit: r.Unit}
	if r.Timestamp != nil {
		out.Date = r.Timestamp.Format(DateTimeLayout)
	}
	return json.Marshal(out)
}

func (r *WeatherReading) UnmarshalJSON(data []byte) error {
	var in readingJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = WeatherReading{City: in.City, Temperature: in.Temperature, Unit: in.Unit}
	if strings.TrimSpace(in.Date) != "" {
		// No offset on the wire; RFC 3339 values keep theirs.
		t, err := ParseDateTime(in.Date, time.UTC)
		if err != nil {
			return err
		}
		r.Timestamp = &t
	}
	return nil
}

// ParseDateTime accepts minute or second precision local date-times and RFC 3339.
// Values without an offset are interpreted in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{RequestDateTimeLayout, DateTimeLayout} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q: want %s", s, RequestDateTimeLayout)
}
