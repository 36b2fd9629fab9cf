// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by communitycore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityMember identifies a community member record.
	EntityMember EntityType = "member"
	// EntityEvent identifies a scheduled event record.
	EntityEvent EntityType = "event"
	// EntityDonation identifies a donation record.
	EntityDonation EntityType = "donation"
	// EntityContribution identifies a pledged or given contribution record.
	EntityContribution EntityType = "contribution"
	// EntityPrayerRequest identifies a prayer request record.
	EntityPrayerRequest EntityType = "prayer_request"
	// EntityContent identifies a published content record.
	EntityContent EntityType = "content"
)

// ContributionTypePledge marks a contribution promised for a future date; a
// pledge requires an explicit commitment date. Other contribution types
// (for example "Tithe" or "Offering") are free-form.
const ContributionTypePledge = "Pledge"

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member represents an individual tracked by the organization.
type Member struct {
	Base
	Name             string `json:"name"`
	Contact          string `json:"contact"`
	MembershipStatus string `json:"membership_status"`
}

// Event captures a scheduled gathering.
type Event struct {
	Base
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DateTime    time.Time `json:"date_time"`
	Location    string    `json:"location"`
}

// Donation records a monetary gift attributed to a donor identifier.
// The donor identifier is free-form and is not checked against the member
// collection.
type Donation struct {
	Base
	DonorID string  `json:"donor_id"`
	Amount  float64 `json:"amount"`
}

// Contribution records a pledged or given contribution by an existing member.
// MemberID holds a copy of the referenced member identifier, not a live
// reference: deleting the member leaves the contribution in place.
type Contribution struct {
	Base
	MemberID        string     `json:"member_id"`
	Type            string     `json:"type"`
	Amount          float64    `json:"amount"`
	Description     string     `json:"description"`
	CommitmentDate  time.Time  `json:"commitment_date"`
	FulfillmentDate *time.Time `json:"fulfillment_date,omitempty"`
}

// PrayerRequest captures a request submitted on behalf of a member identifier.
type PrayerRequest struct {
	Base
	MemberID string `json:"member_id"`
	Request  string `json:"request"`
}

// Content represents published material such as sermons or announcements.
type Content struct {
	Base
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the subset of violations that do not block commit.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
