package client

import (
	"fmt"
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
)

// forecastMargin is added to the day distance so the target day is always the
// last day the provider returns (forecasts start at today).
const forecastMargin = 2

// DaysAhead returns the whole-day distance from now to target, truncated toward
// zero, plus the over-fetch margin.
func DaysAhead(now, target time.Time) int {
	days := int(target.Sub(now) / (24 * time.Hour))
	return days + forecastMargin
}

// SelectHour picks the hourly entry for target from the last forecast day. The
// last day is the target day by construction of DaysAhead; it is not searched by date.
func SelectHour(env models.ForecastEnvelope, target time.Time) (models.HourlyTemp, error) {
	days := env.Forecast.Days
	if len(days) == 0 {
		return models.HourlyTemp{}, fmt.Errorf("%w: no forecast days", ErrMalformedResponse)
	}
	day := days[len(days)-1]
	if len(day.Hourly) != HourlyEntries {
		return models.HourlyTemp{}, fmt.Errorf("%w: forecast day %s has %d hourly entries, want %d",
			ErrMalformedResponse, day.Date.Format("2006-01-02"), len(day.Hourly), HourlyEntries)
	}
	return day.Hourly[target.Hour()], nil
}
