package domain

type Plan struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StartDate   string `json:"start_date,omitempty" format:"date"`
	EndDate     string `json:"end_date,omitempty" format:"date"`
	Status      string `json:"status" enum:"active,archived"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Pillar struct {
	ID        string `json:"id"`
	PlanID    string `json:"plan_id"`
	Title     string `json:"title"`
	Position  int    `json:"position"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Objective struct {
	ID        string  `json:"id"`
	PlanID    string  `json:"plan_id"`
	PillarID  string  `json:"pillar_id"`
	Title     string  `json:"title"`
	Weight    float64 `json:"weight"`
	Position  int     `json:"position"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Initiative struct {
	ID          string  `json:"id"`
	PlanID      string  `json:"plan_id"`
	ObjectiveID string  `json:"objective_id"`
	Title       string  `json:"title"`
	Weight      float64 `json:"weight"`
	Position    int     `json:"position"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

// Activity is the leaf of the hierarchy and the only node whose progress is
// authoritative rather than derived.
type Activity struct {
	ID             string  `json:"id"`
	PlanID         string  `json:"plan_id"`
	InitiativeID   *string `json:"initiative_id,omitempty"`
	Title          string  `json:"title"`
	Weight         float64 `json:"weight"`
	Progress       float64 `json:"progress"`
	StartDate      string  `json:"start_date,omitempty" format:"date"`
	EndDate        string  `json:"end_date,omitempty" format:"date"`
	Status         string  `json:"status"`
	ApprovalStatus string  `json:"approval_status" enum:"pending,approved,declined"`
	DeclineReason  *string `json:"decline_reason,omitempty"`
	ResponsibleID  *string `json:"responsible_id,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// ActivityUpdate is one row of the append-only update history. At most one row
// per activity is in the pending state at any time.
type ActivityUpdate struct {
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

// Rule maps a progress range (or a named deadline condition) to a status
// label. Position is the serialized, user-visible evaluation order.
type Rule struct {
	ID          string  `json:"id"`
	PlanID      string  `json:"plan_id"`
	Status      string  `json:"status"`
	Description string  `json:"description,omitempty"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Unbounded   bool    `json:"unbounded"`
	Condition   string  `json:"condition,omitempty"`
	IsSystem    bool    `json:"is_system"`
	Position    int     `json:"position"`
}

// User identifies a responsible or approving person. Responsible references
// elsewhere are always by ID, resolved to Name at the loading boundary.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role" enum:"administrator,approver,contributor"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	PlanID     string `json:"plan_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
