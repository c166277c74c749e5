package storage

import "time"

// Listing is a persisted vehicle listing. (Source, URL) is the natural key;
// ID stays stable across updates and reactivations.
type Listing struct {
	ID      int64  `json:"id"`
	Source  string `json:"source"`
	URL     string `json:"url"`
	Make    string `json:"make"`
	Model   string `json:"model"`
	Variant string `json:"variant,omitempty"`
	Year    int    `json:"year,omitempty"`

	Price    int    `json:"price"`
	Currency string `json:"currency,omitempty"`

	Mileage      int    `json:"mileage,omitempty"`
	FuelType     string `json:"fuel_type,omitempty"`
	Transmission string `json:"transmission,omitempty"`
	BodyType     string `json:"body_type,omitempty"`

	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`

	DealerName string   `json:"dealer_name,omitempty"`
	ImageURLs  []string `json:"image_urls,omitempty"`

	IsActive    bool      `json:"is_active"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PricePoint is one entry in a listing's price history.
type PricePoint struct {
	Price      int       `json:"price"`
	Currency   string    `json:"currency,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// ReconcileResult is the delta a reconciliation pass produced. Only listings
// in New, Updated or Reactivated are handed to alert matching; untouched
// actives are not re-evaluated.
type ReconcileResult struct {
	New         []Listing
	Updated     []Listing
	Reactivated []Listing
	Deactivated int
	Found       int
}

// Delta returns the new, updated and reactivated listings in one slice.
// Reactivated listings count as new for alert-matching purposes.
func (r *ReconcileResult) Delta() []Listing {
	out := make([]Listing, 0, len(r.New)+len(r.Updated)+len(r.Reactivated))
	out = append(out, r.New...)
	out = append(out, r.Reactivated...)
	out = append(out, r.Updated...)
	return out
}

// Alert frequencies.
const (
	FrequencyImmediate = "immediate"
	FrequencyDaily     = "daily"
)

// Alert is a user-defined filter set matched against new listings.
// Nil filter fields are unset and match everything.
type Alert struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`

	Make       *string `json:"make,omitempty"`
	Model      *string `json:"model,omitempty"`
	MinYear    *int    `json:"min_year,omitempty"`
	MaxYear    *int    `json:"max_year,omitempty"`
	MinPrice   *int    `json:"min_price,omitempty"`
	MaxPrice   *int    `json:"max_price,omitempty"`
	MaxMileage *int    `json:"max_mileage,omitempty"`

	FuelType     *string `json:"fuel_type,omitempty"`
	Transmission *string `json:"transmission,omitempty"`
	BodyType     *string `json:"body_type,omitempty"`
	City         *string `json:"city,omitempty"`

	IsActive               bool      `json:"is_active"`
	NotificationFrequency  string    `json:"notification_frequency"`
	MaxNotificationsPerDay int       `json:"max_notifications_per_day"`
	LastTriggeredAt        time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Notification is a persisted alert match. The (AlertID, ListingID) pair is
// unique: re-matching an already-notified pair never creates a second row.
// Summary is a denormalized listing snapshot so the notification renders
// even after the listing changes or deactivates.
type Notification struct {
	ID          int64     `json:"id"`
	AlertID     int64     `json:"alert_id"`
	ListingID   int64     `json:"listing_id"`
	Summary     string    `json:"summary"`
	MatchScore  float64   `json:"match_score"`
	IsRead      bool      `json:"is_read"`
	Suppressed  bool      `json:"suppressed"`
	CreatedAt   time.Time `json:"created_at"`
	DeliveredAt time.Time `json:"delivered_at,omitempty"`
}

// Session statuses.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// Session records the lifecycle of one scrape cycle for one source.
type Session struct {
	ID          int64     `json:"id"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	Found       int    `json:"found"`
	NewCount    int    `json:"new"`
	Updated     int    `json:"updated"`
	Reactivated int    `json:"reactivated"`
	Deactivated int    `json:"deactivated"`
	ParseErrors int    `json:"parse_errors"`
	Error       string `json:"error,omitempty"`
}
