// Package types defines the domain types shared across the Evermind memory
// core: episodic records, atomic facts, entity relations, encoding contexts,
// and the spaced-repetition decay state attached to every record.
package types

import "time"

// RecordSource identifies how an episodic record was captured.
type RecordSource string

const (
	SourceText  RecordSource = "text"
	SourceVoice RecordSource = "voice"
	SourcePhoto RecordSource = "photo"
)

// TimeOfDay buckets local capture time into coarse segments used for
// context reinstatement matching.
type TimeOfDay string

const (
	TimeOfDayMorning   TimeOfDay = "morning"   // 05:00-11:59
	TimeOfDayAfternoon TimeOfDay = "afternoon" // 12:00-16:59
	TimeOfDayEvening   TimeOfDay = "evening"   // 17:00-21:59
	TimeOfDayNight     TimeOfDay = "night"     // 22:00-04:59
)

// BucketTimeOfDay maps a local timestamp into its TimeOfDay bucket.
func BucketTimeOfDay(t time.Time) TimeOfDay {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return TimeOfDayMorning
	case h >= 12 && h < 17:
		return TimeOfDayAfternoon
	case h >= 17 && h < 22:
		return TimeOfDayEvening
	default:
		return TimeOfDayNight
	}
}

// EpisodicRecord is a raw captured unit of memory. Content is immutable
// after ingestion; only decay-state and access bookkeeping change over the
// record's lifetime.
type EpisodicRecord struct {
	ID        string       `json:"id"`                  // Unique identifier (format: rec:<uuid>)
	Content   string       `json:"content"`             // Raw captured text
	Source    RecordSource `json:"source"`              // Capture origin (text, voice, photo)
	Timestamp time.Time    `json:"timestamp"`           // When the episode occurred
	CreatedAt time.Time    `json:"created_at"`          // When the record entered the system
	UpdatedAt time.Time    `json:"updated_at"`          // Last bookkeeping update

	// Embedding fields (optional; ranking degrades without them)
	Embedding          []float32 `json:"embedding,omitempty"`
	EmbeddingModel     string    `json:"embedding_model,omitempty"`
	EmbeddingDimension int       `json:"embedding_dimension,omitempty"`

	// Context captured at encoding time (nil when capture had no context).
	Context *EncodingContext `json:"context,omitempty"`

	// Access bookkeeping (feeds the recency signal)
	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`

	// Soft delete (grace period for recovery before purge)
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// EncodingContext holds the attributes captured when a record was created.
// Immutable once created; one-to-one with its EpisodicRecord. All fields
// are optional: a dimension that was not captured simply never participates
// in context matching.
type EncodingContext struct {
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	LocationName string    `json:"location_name,omitempty"`
	LocationType string    `json:"location_type,omitempty"` // e.g. "cafe", "office", "home"
	TimeOfDay    TimeOfDay `json:"time_of_day,omitempty"`
	DayOfWeek    string    `json:"day_of_week,omitempty"` // "Monday".."Sunday"
	IsWeekend    *bool     `json:"is_weekend,omitempty"`
	Weather      string    `json:"weather,omitempty"`
	TemperatureC *float64  `json:"temperature_c,omitempty"`
	Activity     string    `json:"activity,omitempty"`
	ActivityCategory string `json:"activity_category,omitempty"` // e.g. "work", "exercise", "social"
	SocialSetting string   `json:"social_setting,omitempty"`     // e.g. "alone", "small_group"
	Device       string    `json:"device,omitempty"`
}

// QueryContext is the partial context supplied at query time. It mirrors
// EncodingContext but every dimension is optional; only dimensions present
// on both sides count toward the match score.
type QueryContext struct {
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	LocationType     string    `json:"location_type,omitempty"`
	TimeOfDay        TimeOfDay `json:"time_of_day,omitempty"`
	DayOfWeek        string    `json:"day_of_week,omitempty"`
	IsWeekend        *bool     `json:"is_weekend,omitempty"`
	ActivityCategory string    `json:"activity_category,omitempty"`
}

// HasGeo reports whether both coordinates are present.
func (q *QueryContext) HasGeo() bool {
	return q != nil && q.Latitude != nil && q.Longitude != nil
}

// HasGeo reports whether both coordinates are present.
func (c *EncodingContext) HasGeo() bool {
	return c != nil && c.Latitude != nil && c.Longitude != nil
}

// WeekendFromDay reports whether the named day-of-week falls on a weekend.
// Unknown day names are treated as weekdays.
func WeekendFromDay(day string) bool {
	return day == "Saturday" || day == "Sunday"
}
