// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"communitycore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Member aliases domain.Member for in-memory persistence operations.
	Member = domain.Member
	// Event aliases domain.Event.
	Event = domain.Event
	// Donation aliases domain.Donation.
	Donation = domain.Donation
	// Contribution aliases domain.Contribution.
	Contribution = domain.Contribution
	// PrayerRequest aliases domain.PrayerRequest.
	PrayerRequest = domain.PrayerRequest
	// Content aliases domain.Content.
	Content = domain.Content
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	members        map[string]Member
	events         map[string]Event
	donations      map[string]Donation
	contributions  map[string]Contribution
	prayerRequests map[string]PrayerRequest
	contents       map[string]Content
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Members        map[string]Member        `json:"members"`
	Events         map[string]Event         `json:"events"`
	Donations      map[string]Donation      `json:"donations"`
	Contributions  map[string]Contribution  `json:"contributions"`
	PrayerRequests map[string]PrayerRequest `json:"prayer_requests"`
	Contents       map[string]Content       `json:"contents"`
}

func newMemoryState() memoryState {
	return memoryState{
		members:        make(map[string]Member),
		events:         make(map[string]Event),
		donations:      make(map[string]Donation),
		contributions:  make(map[string]Contribution),
		prayerRequests: make(map[string]PrayerRequest),
		contents:       make(map[string]Content),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.members {
		cloned.members[k] = v
	}
	for k, v := range s.events {
		cloned.events[k] = v
	}
	for k, v := range s.donations {
		cloned.donations[k] = v
	}
	for k, v := range s.contributions {
		cloned.contributions[k] = cloneContribution(v)
	}
	for k, v := range s.prayerRequests {
		cloned.prayerRequests[k] = v
	}
	for k, v := range s.contents {
		cloned.contents[k] = v
	}
	return cloned
}

// cloneContribution deep-copies the optional fulfillment date so callers
// cannot mutate committed state through the shared pointer.
func cloneContribution(c Contribution) Contribution {
	cp := c
	if c.FulfillmentDate != nil {
		fulfilled := *c.FulfillmentDate
		cp.FulfillmentDate = &fulfilled
	}
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	snapshot := Snapshot{
		Members:        make(map[string]Member, len(state.members)),
		Events:         make(map[string]Event, len(state.events)),
		Donations:      make(map[string]Donation, len(state.donations)),
		Contributions:  make(map[string]Contribution, len(state.contributions)),
		PrayerRequests: make(map[string]PrayerRequest, len(state.prayerRequests)),
		Contents:       make(map[string]Content, len(state.contents)),
	}
	for k, v := range state.members {
		snapshot.Members[k] = v
	}
	for k, v := range state.events {
		snapshot.Events[k] = v
	}
	for k, v := range state.donations {
		snapshot.Donations[k] = v
	}
	for k, v := range state.contributions {
		snapshot.Contributions[k] = cloneContribution(v)
	}
	for k, v := range state.prayerRequests {
		snapshot.PrayerRequests[k] = v
	}
	for k, v := range state.contents {
		snapshot.Contents[k] = v
	}
	return snapshot
}

func memoryStateFromSnapshot(snapshot Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range snapshot.Members {
		state.members[k] = v
	}
	for k, v := range snapshot.Events {
		state.events[k] = v
	}
	for k, v := range snapshot.Donations {
		state.donations[k] = v
	}
	for k, v := range snapshot.Contributions {
		state.contributions[k] = cloneContribution(v)
	}
	for k, v := range snapshot.PrayerRequests {
		state.prayerRequests[k] = v
	}
	for k, v := range snapshot.Contents {
		state.contents[k] = v
	}
	return state
}

// migrateSnapshot normalizes snapshots loaded from older payloads where some
// buckets may be absent.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Members == nil {
		snapshot.Members = map[string]Member{}
	}
	if snapshot.Events == nil {
		snapshot.Events = map[string]Event{}
	}
	if snapshot.Donations == nil {
		snapshot.Donations = map[string]Donation{}
	}
	if snapshot.Contributions == nil {
		snapshot.Contributions = map[string]Contribution{}
	}
	if snapshot.PrayerRequests == nil {
		snapshot.PrayerRequests = map[string]PrayerRequest{}
	}
	if snapshot.Contents == nil {
		snapshot.Contents = map[string]Content{}
	}
	return snapshot
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider, primarily for deterministic tests.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.nowFn = now
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) domain.RuleView {
	return transactionView{state: state}
}

// ListMembers returns all members within the snapshot in key order.
func (v transactionView) ListMembers() []Member {
	return sortedMembers(v.state.members)
}

// ListEvents returns all events within the snapshot in key order.
func (v transactionView) ListEvents() []Event {
	return sortedEvents(v.state.events)
}

// ListDonations returns all donations within the snapshot in key order.
func (v transactionView) ListDonations() []Donation {
	return sortedDonations(v.state.donations)
}

// ListContributions returns all contributions within the snapshot in key order.
func (v transactionView) ListContributions() []Contribution {
	return sortedContributions(v.state.contributions)
}

// ListPrayerRequests returns all prayer requests within the snapshot in key order.
func (v transactionView) ListPrayerRequests() []PrayerRequest {
	return sortedPrayerRequests(v.state.prayerRequests)
}

// ListContents returns all content records within the snapshot in key order.
func (v transactionView) ListContents() []Content {
	return sortedContents(v.state.contents)
}

// FindMember retrieves a member by ID from the snapshot.
func (v transactionView) FindMember(id string) (Member, bool) {
	m, ok := v.state.members[id]
	return m, ok
}

// FindContribution retrieves a contribution by ID from the snapshot.
func (v transactionView) FindContribution(id string) (Contribution, bool) {
	c, ok := v.state.contributions[id]
	if !ok {
		return Contribution{}, false
	}
	return cloneContribution(c), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := transactionView{state: &snapshot}
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return transactionView{state: &tx.state}
}

// FindMember exposes member lookup within the transaction scope, used for
// referential checks before dependent records are inserted.
func (tx *transaction) FindMember(id string) (Member, bool) {
	m, ok := tx.state.members[id]
	return m, ok
}

// CreateMember stores a new member within the transaction.
func (tx *transaction) CreateMember(m Member) (Member, error) {
	if m.ID == "" {
		m.ID = tx.store.newID()
	}
	if _, exists := tx.state.members[m.ID]; exists {
		return Member{}, fmt.Errorf("member %q already exists", m.ID)
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.members[m.ID] = m
	tx.recordChange(Change{Entity: domain.EntityMember, Action: domain.ActionCreate, After: m})
	return m, nil
}

// UpdateMember mutates a member using the provided mutator function. The
// identifier and creation timestamp are preserved across the mutation.
func (tx *transaction) UpdateMember(id string, mutator func(*Member) error) (Member, error) {
	current, ok := tx.state.members[id]
	if !ok {
		return Member{}, fmt.Errorf("member %q not found", id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Member{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.members[id] = current
	tx.recordChange(Change{Entity: domain.EntityMember, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteMember removes a member from the transaction state. Contributions
// referencing the member are left untouched.
func (tx *transaction) DeleteMember(id string) error {
	current, ok := tx.state.members[id]
	if !ok {
		return fmt.Errorf("member %q not found", id)
	}
	delete(tx.state.members, id)
	tx.recordChange(Change{Entity: domain.EntityMember, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateEvent stores a new event record.
func (tx *transaction) CreateEvent(e Event) (Event, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.events[e.ID]; exists {
		return Event{}, fmt.Errorf("event %q already exists", e.ID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.events[e.ID] = e
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionCreate, After: e})
	return e, nil
}

// CreateDonation stores a new donation record.
func (tx *transaction) CreateDonation(d Donation) (Donation, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.donations[d.ID]; exists {
		return Donation{}, fmt.Errorf("donation %q already exists", d.ID)
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.donations[d.ID] = d
	tx.recordChange(Change{Entity: domain.EntityDonation, Action: domain.ActionCreate, After: d})
	return d, nil
}

// CreateContribution stores a new contribution record. A zero commitment date
// defaults to the transaction time, matching the creation timestamp.
func (tx *transaction) CreateContribution(c Contribution) (Contribution, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.contributions[c.ID]; exists {
		return Contribution{}, fmt.Errorf("contribution %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	if c.CommitmentDate.IsZero() {
		c.CommitmentDate = tx.now
	}
	tx.state.contributions[c.ID] = cloneContribution(c)
	tx.recordChange(Change{Entity: domain.EntityContribution, Action: domain.ActionCreate, After: cloneContribution(c)})
	return cloneContribution(c), nil
}

// CreatePrayerRequest stores a new prayer request record.
func (tx *transaction) CreatePrayerRequest(p PrayerRequest) (PrayerRequest, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.prayerRequests[p.ID]; exists {
		return PrayerRequest{}, fmt.Errorf("prayer request %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.prayerRequests[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityPrayerRequest, Action: domain.ActionCreate, After: p})
	return p, nil
}

// CreateContent stores a new content record.
func (tx *transaction) CreateContent(c Content) (Content, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.contents[c.ID]; exists {
		return Content{}, fmt.Errorf("content %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.contents[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityContent, Action: domain.ActionCreate, After: c})
	return c, nil
}

// Read helpers ---------------------------------------------------------------

// GetMember retrieves a member by ID from committed state.
func (s *Store) GetMember(id string) (Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.members[id]
	return m, ok
}

// ListMembers returns all members from committed state in key order.
func (s *Store) ListMembers() []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedMembers(s.state.members)
}

// ListEvents returns all events in key order.
func (s *Store) ListEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedEvents(s.state.events)
}

// ListDonations returns all donations in key order.
func (s *Store) ListDonations() []Donation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedDonations(s.state.donations)
}

// GetContribution retrieves a contribution by ID from committed state.
func (s *Store) GetContribution(id string) (Contribution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.contributions[id]
	if !ok {
		return Contribution{}, false
	}
	return cloneContribution(c), true
}

// ListContributions returns all contributions in key order.
func (s *Store) ListContributions() []Contribution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedContributions(s.state.contributions)
}

// ListPrayerRequests returns all prayer requests in key order.
func (s *Store) ListPrayerRequests() []PrayerRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedPrayerRequests(s.state.prayerRequests)
}

// ListContents returns all content records in key order.
func (s *Store) ListContents() []Content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedContents(s.state.contents)
}

// Listing order is the primary-key order of each bucket: identifiers are
// random, so the order is stable between calls but carries no creation-time
// meaning.

func sortedKeys[T any](records map[string]T) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedMembers(records map[string]Member) []Member {
	out := make([]Member, 0, len(records))
	for _, k := range sortedKeys(records) {
		out = append(out, records[k])
	}
	return out
}

func sortedEvents(records map[string]Event) []Event {
	out := make([]Event, 0, len(records))
	for _, k := range sortedKeys(records) {
		out = append(out, records[k])
	}
	return out
}

func sortedDonations(records map[string]Donation) []Donation {
	out := make([]Donation, 0, len(records))
	for _, k := range sortedKeys(records) {
		out = append(out, records[k])
	}
	return out
}

func sortedContributions(records map[string]Contribution) []Contribution {
	out := make([]Contribution, 0, len(records))
	for _, k := range sortedKeys(records) {
		out = append(out, cloneContribution(records[k]))
	}
	return out
}

func sortedPrayerRequests(records map[string]PrayerRequest) []PrayerRequest {
	out := make([]PrayerRequest, 0, len(records))
	for _, k := range sortedKeys(records) {
		out = append(out, records[k])
	}
	return out
}

func sortedContents(records map[string]Content) []Content {
	out := make([]Content, 0, len(records))
	for _, k := range sortedKeys(records) {
		out = append(out, records[k])
	}
	return out
}
