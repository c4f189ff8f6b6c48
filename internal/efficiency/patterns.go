package efficiency

import (
	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/stats"
)

// DeliveryPatterns holds mean delivery time grouped by when deliveries
// happened. Hours are 0-23 UTC, weekdays run 0 (Monday) to 6 (Sunday).
// Groups without deliveries are absent.
type DeliveryPatterns struct {
	ByHour    map[int]float64 `json:"by_hour"`
	ByWeekday map[int]float64 `json:"by_weekday"`
}

// Patterns groups deliveries by UTC hour of day and by weekday
func Patterns(deliveries []model.DeliveryRecord) (DeliveryPatterns, error) {
	if len(deliveries) == 0 {
		return DeliveryPatterns{}, &model.ValidationError{Field: "deliveries", Reason: "batch is empty"}
	}

	hours := make(map[int][]float64)
	days := make(map[int][]float64)
	for _, d := range deliveries {
		if d.Timestamp.IsZero() {
			return DeliveryPatterns{}, &model.ValidationError{Field: "timestamp", Value: d.VehicleID, Reason: "is required"}
		}
		if !stats.AllFinite(d.DeliveryTime) {
			return DeliveryPatterns{}, &model.ValidationError{Field: "delivery_time", Value: d.VehicleID, Reason: "must be finite"}
		}
		at := d.Timestamp.UTC()
		hours[at.Hour()] = append(hours[at.Hour()], d.DeliveryTime)
		wd := (int(at.Weekday()) + 6) % 7
		days[wd] = append(days[wd], d.DeliveryTime)
	}

	out := DeliveryPatterns{
		ByHour:    make(map[int]float64, len(hours)),
		ByWeekday: make(map[int]float64, len(days)),
	}
	for h, v := range hours {
		out.ByHour[h] = stats.Mean(v)
	}
	for d, v := range days {
		out.ByWeekday[d] = stats.Mean(v)
	}
	return out, nil
}
