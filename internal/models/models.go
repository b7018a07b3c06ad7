package models

// Session represents the authenticated user on this device
type Session struct {
	UserID int64  `json:"userId" yaml:"userId"`
	Email  string `json:"email" yaml:"email"`
	Name   string `json:"name" yaml:"name"`
	Token  string `json:"token" yaml:"token"`
}

// AuthResponse is returned by the login and register endpoints
type AuthResponse struct {
	Token  string `json:"token"`
	Type   string `json:"type,omitempty"`
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// UserProfile is returned by GET /api/users/me
type UserProfile struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// PickStatus is the lifecycle state of a pick request
type PickStatus string

const (
	PickStatusActive    PickStatus = "ACTIVE"
	PickStatusMatched   PickStatus = "MATCHED"
	PickStatusCompleted PickStatus = "COMPLETED"
	PickStatusExpired   PickStatus = "EXPIRED"
	PickStatusCancelled PickStatus = "CANCELLED"
)

// MatchStatus is the lifecycle state of a match
type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "PENDING"
	MatchStatusAccepted  MatchStatus = "ACCEPTED"
	MatchStatusDeclined  MatchStatus = "DECLINED"
	MatchStatusCompleted MatchStatus = "COMPLETED"
)

// ActivityType is the kind of meetup a pick request is for
type ActivityType string

const (
	ActivityCoffee ActivityType = "COFFEE"
	ActivityWalk   ActivityType = "WALK"
	ActivityFood   ActivityType = "FOOD"
	ActivityGaming ActivityType = "GAMING"
	ActivityStudy  ActivityType = "STUDY"
	ActivityMovie  ActivityType = "MOVIE"
	ActivityGym    ActivityType = "GYM"
	ActivityOther  ActivityType = "OTHER"
)

// PickRequest represents a user's open invitation to be met
type PickRequest struct {
	PickRequestID   int64        `json:"pickRequestId"`
	UserID          int64        `json:"userId"`
	UserName        string       `json:"userName"`
	UserAge         *int         `json:"userAge,omitempty"`
	UserBio         *string      `json:"userBio,omitempty"`
	Interests       []string     `json:"interests,omitempty"`
	SafetyScore     *int         `json:"safetyScore,omitempty"`
	ActivityType    ActivityType `json:"activityType"`
	Subject         *string      `json:"subject,omitempty"`
	DurationMinutes int          `json:"durationMinutes"`
	// Pointers so a missing coordinate is distinguishable from 0.
	Latitude       *float64   `json:"latitude"`
	Longitude      *float64   `json:"longitude"`
	DistanceMeters *float64   `json:"distanceMeters,omitempty"`
	Status         PickStatus `json:"status,omitempty"`
	CreatedAt      string     `json:"createdAt"`
	ExpiresAt      *string    `json:"expiresAt,omitempty"`
}

// Coordinate returns the request location; ok is false when either value is missing
func (p PickRequest) Coordinate() (Coordinate, bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return Coordinate{}, false
	}
	return Coordinate{Latitude: *p.Latitude, Longitude: *p.Longitude}, true
}

// CreatePickRequest is the body of POST /api/pick-requests
type CreatePickRequest struct {
	ActivityType    ActivityType `json:"activityType"`
	Subject         *string      `json:"subject,omitempty"`
	DurationMinutes int          `json:"durationMinutes"`
	Latitude        float64      `json:"latitude"`
	Longitude       float64      `json:"longitude"`
}

// SendPickRequest is the body of POST /api/matches
type SendPickRequest struct {
	PickRequestID int64 `json:"pickRequestId"`
}

// Match represents a pick sent against a pick request
type Match struct {
	MatchID       int64       `json:"matchId"`
	PickRequestID int64       `json:"pickRequestId"`
	PickerID      int64       `json:"pickerId"`
	PickerName    string      `json:"pickerName"`
	RequesterID   int64       `json:"requesterId"`
	RequesterName string      `json:"requesterName"`
	Status        MatchStatus `json:"status"`
	CreatedAt     string      `json:"createdAt"`
	ApprovedAt    *string     `json:"approvedAt,omitempty"`
	// Derived is set when the match was synthesized from a MATCHED pick request.
	Derived bool `json:"-"`
}

// Coordinate is a WGS84 position in degrees
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Position is a device location fix
type Position struct {
	Coordinate
	Accuracy  float64 `json:"accuracy,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// Region is a map viewport, expressed as a center and spans in degrees
type Region struct {
	Center         Coordinate `json:"center"`
	LatitudeDelta  float64    `json:"latitudeDelta"`
	LongitudeDelta float64    `json:"longitudeDelta"`
}
