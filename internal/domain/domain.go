package domain

import "time"

// Category is the normalized distraction category of a FocusEvent.
type Category string

const (
	CategoryVideo    Category = "switched_to_video"
	CategorySocial   Category = "switched_to_social"
	CategoryNews     Category = "switched_to_news"
	CategoryShopping Category = "switched_to_shopping"
	CategoryGaming   Category = "switched_to_gaming"
	CategoryIdle     Category = "idle_timeout"
	CategoryUnknown  Category = "unknown"
)

// Categories lists every category the validator can produce, in a stable order.
func Categories() []Category {
	return []Category{
		CategoryVideo,
		CategorySocial,
		CategoryNews,
		CategoryShopping,
		CategoryGaming,
		CategoryIdle,
		CategoryUnknown,
	}
}

// ProviderRole identifies one of the three upstream intelligence providers.
type ProviderRole string

const (
	RoleEvidence  ProviderRole = "evidence"
	RoleRecency   ProviderRole = "recency"
	RoleSynthesis ProviderRole = "synthesis"
)

func Roles() []ProviderRole {
	return []ProviderRole{RoleEvidence, RoleRecency, RoleSynthesis}
}

// Origin records where a ProviderResult payload came from.
type Origin string

const (
	OriginLiveSuccess  Origin = "live_success"
	OriginLiveFallback Origin = "live_fallback"
	OriginDemoTemplate Origin = "demo_template"
)

// FocusEvent is the validated inbound distraction event.
type FocusEvent struct {
	SessionID         string   `json:"session_id,omitempty"`
	Goal              string   `json:"goal"`
	ContextTitle      string   `json:"context_title,omitempty"`
	ContextApp        string   `json:"context_app,omitempty"`
	TimeOnTaskMinutes int      `json:"time_on_task_minutes"`
	Event             string   `json:"event,omitempty"`
	Category          Category `json:"category"`
}

// ProviderResult is one provider's contribution to a single composition.
type ProviderResult struct {
	Role    ProviderRole  `json:"role"`
	Origin  Origin        `json:"origin"`
	Payload string        `json:"payload"`
	Source  string        `json:"source,omitempty"`
	Latency time.Duration `json:"latency"`
	// Attempts is the number of network calls made; zero for templates and cache hits.
	Attempts int   `json:"attempts"`
	Cached   bool  `json:"cached,omitempty"`
	Err      error `json:"-"`
}

func (r ProviderResult) Failed() bool {
	return r.Err != nil
}

// InterventionResponse is the composed micro-intervention.
type InterventionResponse struct {
	ActionNow    string `json:"action_now" doc:"Immediate action to take"`
	WhyItWorks   string `json:"why_it_works" doc:"Rationale grounded in evidence and recent research"`
	GoalReminder string `json:"goal_reminder" doc:"The user's goal, restated"`
	Citation     string `json:"citation" doc:"Source attribution"`
}

// Complete reports whether all four fields are non-empty.
func (r InterventionResponse) Complete() bool {
	return r.ActionNow != "" && r.WhyItWorks != "" && r.GoalReminder != "" && r.Citation != ""
}

type SessionInfo struct {
	SessionID         string    `json:"session_id"`
	DistractionCount  int       `json:"distraction_count"`
	InterventionCount int       `json:"intervention_count"`
	LastCategory      Category  `json:"last_category,omitempty"`
	CreatedAt         time.Time `json:"created_at" format:"date-time"`
	LastActivity      time.Time `json:"last_activity" format:"date-time"`
}
