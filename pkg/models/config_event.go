package models

import "time"

type ConfigUpdateEvent struct {
	EventType   string                 `json:"event_type"`   // "filter_rules_updated", "trap_list_updated", "limits_updated"
	ServiceType string                 `json:"service_type"` // stage name, empty for all stages
	RuleID      string                 `json:"rule_id,omitempty"`
	Action      string                 `json:"action"` // "create", "update", "delete", "toggle", "reload"
	Timestamp   time.Time              `json:"timestamp"`
	ChangedBy   string                 `json:"changed_by,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

const (
	EventTypeFilterRulesUpdated = "filter_rules_updated"
	EventTypeTrapListUpdated    = "trap_list_updated"
	EventTypeLimitsUpdated      = "limits_updated"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionToggle = "toggle"
	ActionReload = "reload"
)

const (
	ServiceTypeAuthFilter = "auth-filter"
	ServiceTypeRuleFilter = "rule-filter"
)

// AppliesTo reports whether the event targets stage. An empty ServiceType
// addresses every stage.
func (e ConfigUpdateEvent) AppliesTo(stage string) bool {
	return e.ServiceType == "" || e.ServiceType == stage
}
