// Package core implements the record-management service: typed field
// validation, CRUD operations over the persistent store, default rules, and
// the observability hooks the binary wires in.
package core

import (
	"context"
	"errors"
	"time"

	"communitycore/internal/infra/persistence/memory"
	"communitycore/pkg/domain"
)

// Service exposes the transactional CRUD operations for the six record
// collections. Validation runs before any store mutation; the contribution
// create additionally checks that the referenced member exists.
type Service struct {
	store   domain.PersistentStore
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithLogger attaches a structured logger. *slog.Logger satisfies Logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer attaches a tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// instrument opens a span for the operation and returns the completion hook
// that closes it, records the metric, and logs unexpected failures.
func (s *Service) instrument(ctx context.Context, operation string) (context.Context, func(err error)) {
	ctx, span := s.tracer.Start(ctx, operation)
	start := time.Now()
	return ctx, func(err error) {
		span.End(err)
		s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
		if err != nil && !expectedFailure(err) {
			s.logger.Error("operation failed", "operation", operation, "error", err)
		}
	}
}

// expectedFailure reports whether the error is a recoverable-by-caller
// outcome rather than a store or rules-engine fault.
func expectedFailure(err error) bool {
	var ve ValidationError
	var nf ErrNotFound
	var rve domain.RuleViolationError
	return errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &rve)
}

// CreateMember validates and persists a new member.
func (s *Service) CreateMember(ctx context.Context, input MemberInput) (domain.Member, domain.Result, error) {
	ctx, done := s.instrument(ctx, "create_member")
	var created domain.Member
	var res domain.Result
	err := func() error {
		if err := validateMemberInput(input); err != nil {
			return err
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateMember(domain.Member{
				Name:             input.Name,
				Contact:          input.Contact,
				MembershipStatus: input.MembershipStatus,
			})
			return err
		})
		return err
	}()
	done(err)
	return created, res, err
}

// ListMembers returns all members in key order.
func (s *Service) ListMembers(ctx context.Context) ([]domain.Member, error) {
	_, done := s.instrument(ctx, "list_members")
	members := s.store.ListMembers()
	done(nil)
	return members, nil
}

// GetMember looks up a member by identifier.
func (s *Service) GetMember(ctx context.Context, id string) (domain.Member, error) {
	_, done := s.instrument(ctx, "get_member")
	member, ok := s.store.GetMember(id)
	var err error
	if !ok {
		err = ErrNotFound{Entity: domain.EntityMember, ID: id}
	}
	done(err)
	return member, err
}

// UpdateMember replaces the three mutable member fields atomically. The
// point lookup runs first, so an absent id reports not-found even when the
// payload is also invalid; the update then validates the same constraints as
// create.
func (s *Service) UpdateMember(ctx context.Context, id string, input MemberInput) (domain.Member, domain.Result, error) {
	ctx, done := s.instrument(ctx, "update_member")
	var updated domain.Member
	var res domain.Result
	err := func() error {
		if _, ok := s.store.GetMember(id); !ok {
			return ErrNotFound{Entity: domain.EntityMember, ID: id}
		}
		if err := validateMemberInput(input); err != nil {
			return err
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindMember(id); !ok {
				return ErrNotFound{Entity: domain.EntityMember, ID: id}
			}
			var err error
			updated, err = tx.UpdateMember(id, func(m *domain.Member) error {
				m.Name = input.Name
				m.Contact = input.Contact
				m.MembershipStatus = input.MembershipStatus
				return nil
			})
			return err
		})
		return err
	}()
	done(err)
	return updated, res, err
}

// DeleteMember removes a member. Contributions referencing the member are
// left in place; the default rules surface them as warnings in the result.
func (s *Service) DeleteMember(ctx context.Context, id string) (domain.Result, error) {
	ctx, done := s.instrument(ctx, "delete_member")
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindMember(id); !ok {
			return ErrNotFound{Entity: domain.EntityMember, ID: id}
		}
		return tx.DeleteMember(id)
	})
	done(err)
	return res, err
}

// CreateEvent validates and persists a new event.
func (s *Service) CreateEvent(ctx context.Context, input EventInput) (domain.Event, domain.Result, error) {
	ctx, done := s.instrument(ctx, "create_event")
	var created domain.Event
	var res domain.Result
	err := func() error {
		if err := validateEventInput(input); err != nil {
			return err
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateEvent(domain.Event{
				Title:       input.Title,
				Description: input.Description,
				DateTime:    input.DateTime,
				Location:    input.Location,
			})
			return err
		})
		return err
	}()
	done(err)
	return created, res, err
}

// ListEvents returns all events in key order.
func (s *Service) ListEvents(ctx context.Context) ([]domain.Event, error) {
	_, done := s.instrument(ctx, "list_events")
	events := s.store.ListEvents()
	done(nil)
	return events, nil
}

// CreateDonation validates and persists a new donation.
func (s *Service) CreateDonation(ctx context.Context, input DonationInput) (domain.Donation, domain.Result, error) {
	ctx, done := s.instrument(ctx, "create_donation")
	var created domain.Donation
	var res domain.Result
	err := func() error {
		if err := validateDonationInput(input); err != nil {
			return err
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateDonation(domain.Donation{
				DonorID: input.DonorID,
				Amount:  input.Amount,
			})
			return err
		})
		return err
	}()
	done(err)
	return created, res, err
}

// ListDonations returns all donations in key order.
func (s *Service) ListDonations(ctx context.Context) ([]domain.Donation, error) {
	_, done := s.instrument(ctx, "list_donations")
	donations := s.store.ListDonations()
	done(nil)
	return donations, nil
}

// CreateContribution validates the input, checks that the referenced member
// exists, and persists the contribution. An unknown member id yields
// ErrNotFound, distinct from a ValidationError, and nothing is inserted.
func (s *Service) CreateContribution(ctx context.Context, input ContributionInput) (domain.Contribution, domain.Result, error) {
	ctx, done := s.instrument(ctx, "create_contribution")
	var created domain.Contribution
	var res domain.Result
	err := func() error {
		if err := validateContributionInput(input); err != nil {
			return err
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindMember(input.MemberID); !ok {
				return ErrNotFound{Entity: domain.EntityMember, ID: input.MemberID}
			}
			contribution := domain.Contribution{
				MemberID:    input.MemberID,
				Type:        input.Type,
				Amount:      input.Amount,
				Description: input.Description,
			}
			if input.CommitmentDate != nil {
				contribution.CommitmentDate = *input.CommitmentDate
			}
			var err error
			created, err = tx.CreateContribution(contribution)
			return err
		})
		return err
	}()
	done(err)
	return created, res, err
}

// ListContributions returns all contributions in key order.
func (s *Service) ListContributions(ctx context.Context) ([]domain.Contribution, error) {
	_, done := s.instrument(ctx, "list_contributions")
	contributions := s.store.ListContributions()
	done(nil)
	return contributions, nil
}

// CreatePrayerRequest validates and persists a new prayer request. The member
// id is stored as given without an existence check.
func (s *Service) CreatePrayerRequest(ctx context.Context, input PrayerRequestInput) (domain.PrayerRequest, domain.Result, error) {
	ctx, done := s.instrument(ctx, "create_prayer_request")
	var created domain.PrayerRequest
	var res domain.Result
	err := func() error {
		if err := validatePrayerRequestInput(input); err != nil {
			return err
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreatePrayerRequest(domain.PrayerRequest{
				MemberID: input.MemberID,
				Request:  input.Request,
			})
			return err
		})
		return err
	}()
	done(err)
	return created, res, err
}

// ListPrayerRequests returns all prayer requests in key order.
func (s *Service) ListPrayerRequests(ctx context.Context) ([]domain.PrayerRequest, error) {
	_, done := s.instrument(ctx, "list_prayer_requests")
	requests := s.store.ListPrayerRequests()
	done(nil)
	return requests, nil
}

// CreateContent validates and persists a new content record.
func (s *Service) CreateContent(ctx context.Context, input ContentInput) (domain.Content, domain.Result, error) {
	ctx, done := s.instrument(ctx, "create_content")
	var created domain.Content
	var res domain.Result
	err := func() error {
		if err := validateContentInput(input); err != nil {
			return err
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateContent(domain.Content{
				Type:    input.Type,
				Title:   input.Title,
				Content: input.Content,
			})
			return err
		})
		return err
	}()
	done(err)
	return created, res, err
}

// ListContents returns all content records in key order.
func (s *Service) ListContents(ctx context.Context) ([]domain.Content, error) {
	_, done := s.instrument(ctx, "list_contents")
	contents := s.store.ListContents()
	done(nil)
	return contents, nil
}
