package server

import (
	"stratline/internal/domain"
)

// Request payloads

type CreatePlanRequest struct {
	ID          *string `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	StartDate   *string `json:"start_date,omitempty" format:"date"`
	EndDate     *string `json:"end_date,omitempty" format:"date"`
}

type UpdatePlanRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	StartDate   *string `json:"start_date,omitempty" format:"date"`
	EndDate     *string `json:"end_date,omitempty" format:"date"`
	Status      *string `json:"status,omitempty" enum:"active,archived"`
}

type CreatePillarRequest struct {
	Title string `json:"title"`
}

type UpdateNodeRequest struct {
	Title    *string  `json:"title,omitempty"`
	Weight   *float64 `json:"weight,omitempty"`
	Position *int     `json:"position,omitempty"`
}

type CreateObjectiveRequest struct {
	PillarID string  `json:"pillar_id"`
	Title    string  `json:"title"`
	Weight   float64 `json:"weight"`
}

type CreateInitiativeRequest struct {
	ObjectiveID string  `json:"objective_id"`
	Title       string  `json:"title"`
	Weight      float64 `json:"weight"`
}

type CreateActivityRequest struct {
	ID            *string `json:"id,omitempty"`
	InitiativeID  *string `json:"initiative_id,omitempty"`
	Title         string  `json:"title"`
	Weight        float64 `json:"weight"`
	StartDate     *string `json:"start_date,omitempty" format:"date"`
	EndDate       *string `json:"end_date,omitempty" format:"date"`
	ResponsibleID *string `json:"responsible_id,omitempty"`
}

type UpdateActivityRequest struct {
	Title         *string  `json:"title,omitempty"`
	Weight        *float64 `json:"weight,omitempty"`
	StartDate     *string  `json:"start_date,omitempty" format:"date"`
	EndDate       *string  `json:"end_date,omitempty" format:"date"`
	ResponsibleID *string  `json:"responsible_id,omitempty"`
	InitiativeID  *string  `json:"initiative_id,omitempty"`
}

type SubmitUpdateRequest struct {
	Progress float64 `json:"progress" minimum:"0" maximum:"100"`
	Comment  string  `json:"comment"`
}

type DeclineUpdateRequest struct {
	Reason string `json:"reason"`
}

type CreateRuleRequest struct {
	ID          *string `json:"id,omitempty"`
	Status      string  `json:"status"`
	Description *string `json:"description,omitempty"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Unbounded   bool    `json:"unbounded,omitempty"`
	Condition   *string `json:"condition,omitempty" enum:"overdue"`
}

type UpdateRuleRequest struct {
	Status      *string  `json:"status,omitempty"`
	Description *string  `json:"description,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Unbounded   *bool    `json:"unbounded,omitempty"`
	Condition   *string  `json:"condition,omitempty"`
}

type MoveRuleRequest struct {
	Position int `json:"position" minimum:"1"`
}

type CreateUserRequest struct {
	ID   *string `json:"id,omitempty"`
	Name string  `json:"name"`
	Role string  `json:"role,omitempty" enum:"administrator,approver,contributor"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty" enum:"administrator,approver,contributor"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type PlanResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StartDate   string `json:"start_date,omitempty" format:"date"`
	EndDate     string `json:"end_date,omitempty" format:"date"`
	Status      string `json:"status" enum:"active,archived"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type ActivityUpdateResponse struct {
	ID            string  `json:"id"`
	ActivityID    string  `json:"activity_id"`
	UserID        string  `json:"user_id"`
	Progress      float64 `json:"progress"`
	Comment       string  `json:"comment"`
	Status        string  `json:"status"`
	ApprovalState string  `json:"approval_state" enum:"pending,approved,declined"`
	DeclineReason *string `json:"decline_reason,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	DecidedAt     *string `json:"decided_at,omitempty" format:"date-time"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	PlanID     string `json:"plan_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func planResponse(p domain.Plan) PlanResponse {
	return PlanResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
	}
}

func mapPlans(items []domain.Plan) []PlanResponse {
	res := make([]PlanResponse, 0, len(items))
	for _, p := range items {
		res = append(res, planResponse(p))
	}
	return res
}

func updateResponse(u domain.ActivityUpdate) ActivityUpdateResponse {
	return ActivityUpdateResponse{
		ID:            u.ID,
		ActivityID:    u.ActivityID,
		UserID:        u.UserID,
		Progress:      u.Progress,
		Comment:       u.Comment,
		Status:        u.Status,
		ApprovalState: u.ApprovalState,
		DeclineReason: u.DeclineReason,
		CreatedAt:     u.CreatedAt,
		DecidedAt:     u.DecidedAt,
	}
}

func mapUpdates(items []domain.ActivityUpdate) []ActivityUpdateResponse {
	res := make([]ActivityUpdateResponse, 0, len(items))
	for _, u := range items {
		res = append(res, updateResponse(u))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		PlanID:     e.PlanID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
