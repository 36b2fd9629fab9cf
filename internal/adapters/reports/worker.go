// Package reports renders record collections into downloadable artifacts.
// Report requests are queued and processed asynchronously by a worker; the
// rendered payloads are stored through the blob store.
package reports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"communitycore/internal/blob"
	"communitycore/internal/core"
)

// Format identifies the rendering of a report artifact.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Status describes the lifecycle stage of a report request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Collections that can be reported on. They mirror the snapshot bucket names.
const (
	CollectionMembers        = "members"
	CollectionEvents         = "events"
	CollectionDonations      = "donations"
	CollectionContributions  = "contributions"
	CollectionPrayerRequests = "prayer_requests"
	CollectionContents       = "contents"
)

// Request describes a report to generate.
type Request struct {
	Collection  string `json:"collection"`
	Format      Format `json:"format"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// Artifact captures a stored report payload.
type Artifact struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	URL         string `json:"url,omitempty"`
}

// Record tracks a report request through its lifecycle.
type Record struct {
	ID          string     `json:"id"`
	Collection  string     `json:"collection"`
	Format      Format     `json:"format"`
	Status      Status     `json:"status"`
	RequestedBy string     `json:"requested_by,omitempty"`
	Error       string     `json:"error,omitempty"`
	Artifact    *Artifact  `json:"artifact,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AuditLogger records report lifecycle entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for report runs.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor,omitempty"`
	Collection string    `json:"collection"`
	Status     Status    `json:"status"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Worker renders report requests asynchronously.
type Worker struct {
	service *core.Service
	store   blob.Store
	audit   AuditLogger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record
	order []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id string
}

// NewWorker constructs a report worker. The blob store may be nil, in which
// case rendered artifacts are dropped after accounting.
func NewWorker(service *core.Service, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		service: service,
		store:   store,
		audit:   audit,
		queue:   make(chan task, 32),
		jobs:    make(map[string]*Record),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing queued report requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules a report and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, req Request) (Record, error) {
	if w.service == nil {
		return Record{}, fmt.Errorf("report service not configured")
	}
	collection := strings.TrimSpace(req.Collection)
	if !validCollection(collection) {
		return Record{}, fmt.Errorf("unknown report collection %q", req.Collection)
	}
	format := req.Format
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV {
		return Record{}, fmt.Errorf("unsupported report format %q", req.Format)
	}

	id := newID()
	now := time.Now().UTC()
	record := Record{
		ID:          id,
		Collection:  collection,
		Format:      format,
		Status:      StatusQueued,
		RequestedBy: req.RequestedBy,
		RequestedAt: now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	w.order = append(w.order, id)
	queued := record.copy()
	w.mu.Unlock()

	if w.audit != nil {
		w.audit.Record(ctx, AuditEntry{
			ID:         newID(),
			Action:     "report_run",
			Actor:      req.RequestedBy,
			Collection: collection,
			Status:     StatusQueued,
			OccurredAt: now,
		})
	}

	select {
	case w.queue <- task{id: id}:
	default:
		w.fail(id, "report queue full")
		return Record{}, fmt.Errorf("report queue full")
	}

	return queued, nil
}

// Get returns a snapshot of the report record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

// List returns snapshots of all report records in enqueue order.
func (w *Worker) List() []Record {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Record, 0, len(w.order))
	for _, id := range w.order {
		if record, ok := w.jobs[id]; ok {
			out = append(out, record.copy())
		}
	}
	return out
}

func (w *Worker) process(t task) {
	record, ok := w.Get(t.id)
	if !ok {
		return
	}

	w.markRunning(t.id)

	payload, contentType, err := w.render(record.Collection, record.Format)
	if err != nil {
		w.fail(t.id, err.Error())
		return
	}

	artifact := Artifact{
		Key:         fmt.Sprintf("reports/%s/%s.%s", record.Collection, record.ID, record.Format),
		ContentType: contentType,
		SizeBytes:   int64(len(payload)),
	}
	if w.store != nil {
		info, err := w.store.Put(w.ctx, artifact.Key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"collection": record.Collection, "format": string(record.Format)},
		})
		if err != nil {
			w.fail(t.id, fmt.Sprintf("store artifact: %v", err))
			return
		}
		artifact.URL = info.URL
	}

	w.complete(t.id, artifact)
}

func (w *Worker) render(collection string, format Format) ([]byte, string, error) {
	ctx := w.ctx
	switch format {
	case FormatJSON:
		rows, err := w.collect(ctx, collection)
		if err != nil {
			return nil, "", err
		}
		payload, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("marshal json: %w", err)
		}
		return payload, "application/json", nil
	case FormatCSV:
		header, rows, err := w.tabulate(ctx, collection)
		if err != nil {
			return nil, "", err
		}
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		if err := writer.Write(header); err != nil {
			return nil, "", err
		}
		for _, row := range rows {
			if err := writer.Write(row); err != nil {
				return nil, "", err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil
	default:
		return nil, "", fmt.Errorf("unsupported report format %q", format)
	}
}

func (w *Worker) collect(ctx context.Context, collection string) (any, error) {
	switch collection {
	case CollectionMembers:
		return w.service.ListMembers(ctx)
	case CollectionEvents:
		return w.service.ListEvents(ctx)
	case CollectionDonations:
		return w.service.ListDonations(ctx)
	case CollectionContributions:
		return w.service.ListContributions(ctx)
	case CollectionPrayerRequests:
		return w.service.ListPrayerRequests(ctx)
	case CollectionContents:
		return w.service.ListContents(ctx)
	default:
		return nil, fmt.Errorf("unknown report collection %q", collection)
	}
}

func (w *Worker) tabulate(ctx context.Context, collection string) ([]string, [][]string, error) {
	switch collection {
	case CollectionMembers:
		members, err := w.service.ListMembers(ctx)
		if err != nil {
			return nil, nil, err
		}
		rows := make([][]string, 0, len(members))
		for _, m := range members {
			rows = append(rows, []string{m.ID, m.Name, m.Contact, m.MembershipStatus, formatTime(m.CreatedAt)})
		}
		return []string{"id", "name", "contact", "membership_status", "created_at"}, rows, nil
	case CollectionEvents:
		events, err := w.service.ListEvents(ctx)
		if err != nil {
			return nil, nil, err
		}
		rows := make([][]string, 0, len(events))
		for _, e := range events {
			rows = append(rows, []string{e.ID, e.Title, e.Description, formatTime(e.DateTime), e.Location, formatTime(e.CreatedAt)})
		}
		return []string{"id", "title", "description", "date_time", "location", "created_at"}, rows, nil
	case CollectionDonations:
		donations, err := w.service.ListDonations(ctx)
		if err != nil {
			return nil, nil, err
		}
		rows := make([][]string, 0, len(donations))
		for _, d := range donations {
			rows = append(rows, []string{d.ID, d.DonorID, formatAmount(d.Amount), formatTime(d.CreatedAt)})
		}
		return []string{"id", "donor_id", "amount", "created_at"}, rows, nil
	case CollectionContributions:
		contributions, err := w.service.ListContributions(ctx)
		if err != nil {
			return nil, nil, err
		}
		rows := make([][]string, 0, len(contributions))
		for _, c := range contributions {
			fulfillment := ""
			if c.FulfillmentDate != nil {
				fulfillment = formatTime(*c.FulfillmentDate)
			}
			rows = append(rows, []string{c.ID, c.MemberID, c.Type, formatAmount(c.Amount), c.Description, formatTime(c.CommitmentDate), fulfillment, formatTime(c.CreatedAt)})
		}
		return []string{"id", "member_id", "type", "amount", "description", "commitment_date", "fulfillment_date", "created_at"}, rows, nil
	case CollectionPrayerRequests:
		requests, err := w.service.ListPrayerRequests(ctx)
		if err != nil {
			return nil, nil, err
		}
		rows := make([][]string, 0, len(requests))
		for _, p := range requests {
			rows = append(rows, []string{p.ID, p.MemberID, p.Request, formatTime(p.CreatedAt)})
		}
		return []string{"id", "member_id", "request", "created_at"}, rows, nil
	case CollectionContents:
		contents, err := w.service.ListContents(ctx)
		if err != nil {
			return nil, nil, err
		}
		rows := make([][]string, 0, len(contents))
		for _, c := range contents {
			rows = append(rows, []string{c.ID, c.Type, c.Title, formatTime(c.CreatedAt)})
		}
		return []string{"id", "type", "title", "created_at"}, rows, nil
	default:
		return nil, nil, fmt.Errorf("unknown report collection %q", collection)
	}
}

func (w *Worker) markRunning(id string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusRunning
		record.StartedAt = &now
	}
	w.mu.Unlock()
	w.auditStatus(id, StatusRunning, "")
}

func (w *Worker) complete(id string, artifact Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifact = &artifact
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.auditStatus(id, StatusSucceeded, "")
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.auditStatus(id, StatusFailed, reason)
}

func (w *Worker) auditStatus(id string, status Status, note string) {
	if w.audit == nil {
		return
	}
	w.mu.RLock()
	actor, collection := "", ""
	if record, ok := w.jobs[id]; ok {
		actor = record.RequestedBy
		collection = record.Collection
	}
	w.mu.RUnlock()
	w.audit.Record(w.ctx, AuditEntry{
		ID:         newID(),
		Action:     "report_run",
		Actor:      actor,
		Collection: collection,
		Status:     status,
		Note:       note,
		OccurredAt: time.Now().UTC(),
	})
}

func (r Record) copy() Record {
	dup := r
	if r.Artifact != nil {
		artifact := *r.Artifact
		dup.Artifact = &artifact
	}
	if r.StartedAt != nil {
		started := *r.StartedAt
		dup.StartedAt = &started
	}
	if r.CompletedAt != nil {
		completed := *r.CompletedAt
		dup.CompletedAt = &completed
	}
	return dup
}

func validCollection(name string) bool {
	switch name {
	case CollectionMembers, CollectionEvents, CollectionDonations,
		CollectionContributions, CollectionPrayerRequests, CollectionContents:
		return true
	}
	return false
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryAuditLog captures audit entries in memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(ctx context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a defensive copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// SlogAuditLog writes audit entries through a structured logger, one info
// record per lifecycle event.
type SlogAuditLog struct {
	logger *slog.Logger
}

// NewSlogAuditLog constructs an audit log over the supplied logger. A nil
// logger falls back to slog.Default.
func NewSlogAuditLog(logger *slog.Logger) *SlogAuditLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLog{logger: logger}
}

// Record emits the audit entry as a structured log record.
func (l *SlogAuditLog) Record(ctx context.Context, entry AuditEntry) {
	l.logger.InfoContext(ctx, "report audit",
		"audit_id", entry.ID,
		"action", entry.Action,
		"actor", entry.Actor,
		"collection", entry.Collection,
		"status", string(entry.Status),
		"note", entry.Note,
		"occurred_at", entry.OccurredAt,
	)
}
