package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateMember(Member) (Member, error)
	UpdateMember(id string, mutator func(*Member) error) (Member, error)
	DeleteMember(id string) error
	CreateEvent(Event) (Event, error)
	CreateDonation(Donation) (Donation, error)
	CreateContribution(Contribution) (Contribution, error)
	CreatePrayerRequest(PrayerRequest) (PrayerRequest, error)
	CreateContent(Content) (Content, error)
	FindMember(id string) (Member, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListMembers() []Member
	ListContributions() []Contribution
	FindMember(id string) (Member, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetMember(id string) (Member, bool)
	ListMembers() []Member
	ListEvents() []Event
	ListDonations() []Donation
	GetContribution(id string) (Contribution, bool)
	ListContributions() []Contribution
	ListPrayerRequests() []PrayerRequest
	ListContents() []Content
}
