package server

import (
	"focusaura/internal/config"
	"focusaura/internal/domain"
)

// Request payloads

// InterventionRequest documents the accepted body of POST /intervention.
// Decoding is done by the validator, which is more lenient than this schema
// (time_on_task_minutes may also be a numeric string).
type InterventionRequest struct {
	Goal              string `json:"goal" example:"Finish Section 2 by 3 PM"`
	ContextTitle      string `json:"context_title,omitempty" example:"Project_Proposal.docx"`
	ContextApp        string `json:"context_app,omitempty" example:"Google Docs"`
	TimeOnTaskMinutes int    `json:"time_on_task_minutes,omitempty" minimum:"0" example:"42"`
	Event             string `json:"event,omitempty" example:"switched_to_video"`
	SessionID         string `json:"session_id,omitempty"`
}

// Response payloads

type InterventionResponse struct {
	ActionNow    string `json:"action_now"`
	WhyItWorks   string `json:"why_it_works"`
	GoalReminder string `json:"goal_reminder"`
	Citation     string `json:"citation"`
}

type HealthResponse struct {
	Status               string            `json:"status" example:"ok"`
	Service              string            `json:"service"`
	Mode                 string            `json:"mode" enum:"demo,live"`
	ModeDescription      string            `json:"mode_description"`
	CredentialConfigured bool              `json:"credential_configured"`
	ReadyForLiveMode     bool              `json:"ready_for_live_mode"`
	CacheEnabled         bool              `json:"cache_enabled"`
	Warnings             []string          `json:"warnings"`
	Providers            map[string]string `json:"providers"`
}

type BannerResponse struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type SessionResponse struct {
	SessionID         string `json:"session_id"`
	DistractionCount  int    `json:"distraction_count"`
	InterventionCount int    `json:"intervention_count"`
	LastCategory      string `json:"last_category,omitempty"`
	CreatedAt         string `json:"created_at" format:"date-time"`
	LastActivity      string `json:"last_activity" format:"date-time"`
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Count    int               `json:"count"`
}

func interventionResponse(r domain.InterventionResponse) InterventionResponse {
	return InterventionResponse{
		ActionNow:    r.ActionNow,
		WhyItWorks:   r.WhyItWorks,
		GoalReminder: r.GoalReminder,
		Citation:     r.Citation,
	}
}

func healthResponse(cfg *config.Config, routes map[domain.ProviderRole]string) HealthResponse {
	providers := make(map[string]string, len(routes))
	for role, route := range routes {
		providers[string(role)] = route
	}
	return HealthResponse{
		Status:               "ok",
		Service:              serviceName,
		Mode:                 string(cfg.Mode),
		ModeDescription:      cfg.ModeDescription(),
		CredentialConfigured: cfg.HasCredential(),
		ReadyForLiveMode:     cfg.LiveReady(),
		CacheEnabled:         cfg.Cache.Enabled,
		Warnings:             cfg.Warnings(),
		Providers:            providers,
	}
}

func sessionResponse(s domain.SessionInfo) SessionResponse {
	return SessionResponse{
		SessionID:         s.SessionID,
		DistractionCount:  s.DistractionCount,
		InterventionCount: s.InterventionCount,
		LastCategory:      string(s.LastCategory),
		CreatedAt:         s.CreatedAt.UTC().Format(timeLayout),
		LastActivity:      s.LastActivity.UTC().Format(timeLayout),
	}
}

func mapSessions(items []domain.SessionInfo) []SessionResponse {
	out := make([]SessionResponse, 0, len(items))
	for _, s := range items {
		out = append(out, sessionResponse(s))
	}
	return out
}
