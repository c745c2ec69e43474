// Package engine contains the core retrieval and versioning logic: the fact
// versioner, the hybrid ranker, and context reinstatement matching.
package engine

import (
	"math"

	"github.com/evermind-ai/evermind/pkg/types"
)

// Geo distance bands for the context match, in kilometers.
const (
	geoNearKm = 0.5
	geoFarKm  = 2.0
)

// MatchContext scores how well a stored encoding context matches the
// query-time context, in [0,1]. Only dimensions present on both sides
// participate; the result is the mean over those dimensions. Zero
// comparable dimensions score 0.
func MatchContext(stored *types.EncodingContext, query *types.QueryContext) float64 {
	if stored == nil || query == nil {
		return 0
	}

	var sum float64
	var dims int

	if stored.HasGeo() && query.HasGeo() {
		km := haversineKm(*stored.Latitude, *stored.Longitude, *query.Latitude, *query.Longitude)
		switch {
		case km < geoNearKm:
			sum += 1.0
		case km < geoFarKm:
			sum += 0.5
		}
		dims++
	}

	if stored.TimeOfDay != "" && query.TimeOfDay != "" {
		if stored.TimeOfDay == query.TimeOfDay {
			sum += 1.0
		}
		dims++
	}

	if stored.DayOfWeek != "" && query.DayOfWeek != "" {
		if stored.DayOfWeek == query.DayOfWeek {
			sum += 1.0
		} else if weekendMatches(stored, query) {
			sum += 0.5
		}
		dims++
	}

	if stored.ActivityCategory != "" && query.ActivityCategory != "" {
		if stored.ActivityCategory == query.ActivityCategory {
			sum += 1.0
		}
		dims++
	}

	if stored.LocationType != "" && query.LocationType != "" {
		if stored.LocationType == query.LocationType {
			sum += 1.0
		}
		dims++
	}

	if dims == 0 {
		return 0
	}
	return sum / float64(dims)
}

// weekendMatches reports whether both sides classify as weekend or both as
// weekday. The explicit flag wins; otherwise it is derived from the day name.
func weekendMatches(stored *types.EncodingContext, query *types.QueryContext) bool {
	storedWeekend := types.WeekendFromDay(stored.DayOfWeek)
	if stored.IsWeekend != nil {
		storedWeekend = *stored.IsWeekend
	}
	queryWeekend := types.WeekendFromDay(query.DayOfWeek)
	if query.IsWeekend != nil {
		queryWeekend = *query.IsWeekend
	}
	return storedWeekend == queryWeekend
}

const earthRadiusKm = 6371.0

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
