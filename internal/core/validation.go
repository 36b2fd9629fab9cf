package core

import (
	"fmt"
	"strings"
	"time"

	"communitycore/pkg/domain"
)

// Typed input values sit behind the untyped transport boundary: the Parse*
// functions convert a decoded JSON field set into one of these structs or a
// ValidationError, and the validate* functions re-check required fields before
// any store mutation regardless of how the input was constructed.

// MemberInput carries the mutable member fields for create and update.
type MemberInput struct {
	Name             string
	Contact          string
	MembershipStatus string
}

// EventInput carries the fields required to create an event.
type EventInput struct {
	Title       string
	Description string
	DateTime    time.Time
	Location    string
}

// DonationInput carries the fields required to create a donation.
type DonationInput struct {
	DonorID string
	Amount  float64
}

// ContributionInput carries the fields required to create a contribution.
// A nil CommitmentDate means "not supplied"; the store defaults it to the
// creation time, and pledges reject the absence outright.
type ContributionInput struct {
	MemberID       string
	Type           string
	Amount         float64
	Description    string
	CommitmentDate *time.Time
}

// PrayerRequestInput carries the fields required to create a prayer request.
type PrayerRequestInput struct {
	MemberID string
	Request  string
}

// ContentInput carries the fields required to create a content record.
type ContentInput struct {
	Type    string
	Title   string
	Content string
}

// ParseMemberInput converts an untyped field set into a MemberInput.
func ParseMemberInput(fields map[string]any) (MemberInput, error) {
	var in MemberInput
	var err error
	if in.Name, err = stringField(fields, "name"); err != nil {
		return MemberInput{}, err
	}
	if in.Contact, err = stringField(fields, "contact"); err != nil {
		return MemberInput{}, err
	}
	if in.MembershipStatus, err = stringField(fields, "membership_status"); err != nil {
		return MemberInput{}, err
	}
	return in, nil
}

// ParseEventInput converts an untyped field set into an EventInput.
func ParseEventInput(fields map[string]any) (EventInput, error) {
	var in EventInput
	var err error
	if in.Title, err = stringField(fields, "title"); err != nil {
		return EventInput{}, err
	}
	if in.Description, err = stringField(fields, "description"); err != nil {
		return EventInput{}, err
	}
	dt, ok, err := timeField(fields, "date_time")
	if err != nil {
		return EventInput{}, err
	}
	if !ok {
		return EventInput{}, ValidationError{Field: "date_time", Reason: "is required"}
	}
	in.DateTime = dt
	if in.Location, err = stringField(fields, "location"); err != nil {
		return EventInput{}, err
	}
	return in, nil
}

// ParseDonationInput converts an untyped field set into a DonationInput.
func ParseDonationInput(fields map[string]any) (DonationInput, error) {
	var in DonationInput
	var err error
	if in.DonorID, err = stringField(fields, "donor_id"); err != nil {
		return DonationInput{}, err
	}
	if in.Amount, err = numberField(fields, "amount"); err != nil {
		return DonationInput{}, err
	}
	return in, nil
}

// ParseContributionInput converts an untyped field set into a ContributionInput.
func ParseContributionInput(fields map[string]any) (ContributionInput, error) {
	var in ContributionInput
	var err error
	if in.MemberID, err = stringField(fields, "member_id"); err != nil {
		return ContributionInput{}, err
	}
	if in.Type, err = stringField(fields, "type"); err != nil {
		return ContributionInput{}, err
	}
	if in.Amount, err = numberField(fields, "amount"); err != nil {
		return ContributionInput{}, err
	}
	if in.Description, err = stringField(fields, "description"); err != nil {
		return ContributionInput{}, err
	}
	if dt, ok, err := timeField(fields, "commitment_date"); err != nil {
		return ContributionInput{}, err
	} else if ok {
		in.CommitmentDate = &dt
	}
	return in, nil
}

// ParsePrayerRequestInput converts an untyped field set into a PrayerRequestInput.
func ParsePrayerRequestInput(fields map[string]any) (PrayerRequestInput, error) {
	var in PrayerRequestInput
	var err error
	if in.MemberID, err = stringField(fields, "member_id"); err != nil {
		return PrayerRequestInput{}, err
	}
	if in.Request, err = stringField(fields, "request"); err != nil {
		return PrayerRequestInput{}, err
	}
	return in, nil
}

// ParseContentInput converts an untyped field set into a ContentInput.
func ParseContentInput(fields map[string]any) (ContentInput, error) {
	var in ContentInput
	var err error
	if in.Type, err = stringField(fields, "type"); err != nil {
		return ContentInput{}, err
	}
	if in.Title, err = stringField(fields, "title"); err != nil {
		return ContentInput{}, err
	}
	if in.Content, err = stringField(fields, "content"); err != nil {
		return ContentInput{}, err
	}
	return in, nil
}

func validateMemberInput(in MemberInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return ValidationError{Field: "name", Reason: "is required"}
	}
	if strings.TrimSpace(in.Contact) == "" {
		return ValidationError{Field: "contact", Reason: "is required"}
	}
	if strings.TrimSpace(in.MembershipStatus) == "" {
		return ValidationError{Field: "membership_status", Reason: "is required"}
	}
	return nil
}

func validateEventInput(in EventInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return ValidationError{Field: "title", Reason: "is required"}
	}
	if strings.TrimSpace(in.Description) == "" {
		return ValidationError{Field: "description", Reason: "is required"}
	}
	if in.DateTime.IsZero() {
		return ValidationError{Field: "date_time", Reason: "is required"}
	}
	if strings.TrimSpace(in.Location) == "" {
		return ValidationError{Field: "location", Reason: "is required"}
	}
	return nil
}

func validateDonationInput(in DonationInput) error {
	if strings.TrimSpace(in.DonorID) == "" {
		return ValidationError{Field: "donor_id", Reason: "is required"}
	}
	return nil
}

func validateContributionInput(in ContributionInput) error {
	if strings.TrimSpace(in.MemberID) == "" {
		return ValidationError{Field: "member_id", Reason: "is required"}
	}
	if strings.TrimSpace(in.Type) == "" {
		return ValidationError{Field: "type", Reason: "is required"}
	}
	if strings.TrimSpace(in.Description) == "" {
		return ValidationError{Field: "description", Reason: "is required"}
	}
	if in.Type == domain.ContributionTypePledge && in.CommitmentDate == nil {
		return ValidationError{Field: "commitment_date", Reason: "is required for pledges"}
	}
	return nil
}

func validatePrayerRequestInput(in PrayerRequestInput) error {
	if strings.TrimSpace(in.MemberID) == "" {
		return ValidationError{Field: "member_id", Reason: "is required"}
	}
	if strings.TrimSpace(in.Request) == "" {
		return ValidationError{Field: "request", Reason: "is required"}
	}
	return nil
}

func validateContentInput(in ContentInput) error {
	if strings.TrimSpace(in.Type) == "" {
		return ValidationError{Field: "type", Reason: "is required"}
	}
	if strings.TrimSpace(in.Title) == "" {
		return ValidationError{Field: "title", Reason: "is required"}
	}
	if strings.TrimSpace(in.Content) == "" {
		return ValidationError{Field: "content", Reason: "is required"}
	}
	return nil
}

func stringField(fields map[string]any, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return "", ValidationError{Field: name, Reason: "is required"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", ValidationError{Field: name, Reason: "must be a string"}
	}
	return s, nil
}

func numberField(fields map[string]any, name string) (float64, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return 0, ValidationError{Field: name, Reason: "is required"}
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, ValidationError{Field: name, Reason: "must be a number"}
	}
}

// Timestamp layouts accepted at the boundary, beyond RFC3339: date-only and
// zone-less values common in hand-written payloads.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// timeField coerces an optional timestamp field. The second return reports
// whether the field was present.
func timeField(fields map[string]any, name string) (time.Time, bool, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return time.Time{}, false, nil
	}
	switch v := raw.(type) {
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts.UTC(), true, nil
			}
		}
		return time.Time{}, false, ValidationError{Field: name, Reason: fmt.Sprintf("cannot parse %q as a timestamp", v)}
	case float64:
		// epoch milliseconds
		return time.UnixMilli(int64(v)).UTC(), true, nil
	case time.Time:
		return v.UTC(), true, nil
	default:
		return time.Time{}, false, ValidationError{Field: name, Reason: "must be a timestamp"}
	}
}
