package signature

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/SignFlow/app/models"
	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
	"github.com/ManuelReschke/SignFlow/internal/pkg/packager"
	"github.com/ManuelReschke/SignFlow/internal/pkg/provider"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// memoryRepo is a SignatureEventRepository with version checks and a write log.
type memoryRepo struct {
	mu          sync.Mutex
	events      map[string]*models.SignatureEvent
	writes      int
	transitions [][2]models.SignatureStatus
	conflicts   map[string]int // forced conflicts per id
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{events: map[string]*models.SignatureEvent{}, conflicts: map[string]int{}}
}

func (r *memoryRepo) Create(_ context.Context, e *models.SignatureEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[e.ID]; ok {
		return fmt.Errorf("duplicate id %s", e.ID)
	}
	r.events[e.ID] = copyOf(e)
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*models.SignatureEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, apperrors.NotFound("memoryRepo.GetByID", id)
	}
	return copyOf(e), nil
}

func (r *memoryRepo) Update(_ context.Context, e *models.SignatureEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.events[e.ID]
	if !ok {
		return apperrors.NotFound("memoryRepo.Update", e.ID)
	}
	if n := r.conflicts[e.ID]; n > 0 {
		r.conflicts[e.ID] = n - 1
		stored.Version++
	}
	if stored.Version != e.Version {
		return apperrors.Conflict("memoryRepo.Update", e.ID)
	}
	r.writes++
	if stored.Status != e.Status {
		r.transitions = append(r.transitions, [2]models.SignatureStatus{stored.Status, e.Status})
	}
	e.Version++
	r.events[e.ID] = copyOf(e)
	return nil
}

func (r *memoryRepo) filter(keep func(*models.SignatureEvent) bool, less func(a, b *models.SignatureEvent) bool, offset, limit int) []models.SignatureEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*models.SignatureEvent
	for _, e := range r.events {
		if keep(e) {
			all = append(all, e)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !less(all[i], all[j]) && !less(all[j], all[i]) {
			return all[i].ID < all[j].ID
		}
		return less(all[i], all[j])
	})
	var out []models.SignatureEvent
	for i := offset; i < len(all) && len(out) < limit; i++ {
		out = append(out, *copyOf(all[i]))
	}
	return out
}

func byCreated(a, b *models.SignatureEvent) bool { return a.CreatedAt.Before(b.CreatedAt) }
func byUpdated(a, b *models.SignatureEvent) bool { return a.UpdatedAt.Before(b.UpdatedAt) }

func (r *memoryRepo) List(_ context.Context, offset, limit int) ([]models.SignatureEvent, error) {
	return r.filter(func(*models.SignatureEvent) bool { return true }, byCreated, offset, limit), nil
}

func (r *memoryRepo) Count(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.events)), nil
}

func (r *memoryRepo) FindByStatus(_ context.Context, status models.SignatureStatus, offset, limit int) ([]models.SignatureEvent, error) {
	return r.filter(func(e *models.SignatureEvent) bool { return e.Status == status }, byCreated, offset, limit), nil
}

func (r *memoryRepo) FindByStatusForStatusCheck(_ context.Context, statuses []models.SignatureStatus, offset, limit int) ([]models.SignatureEvent, error) {
	return r.filter(func(e *models.SignatureEvent) bool {
		for _, s := range statuses {
			if e.Status == s && e.Metadata.HasEnvelopeID() {
				return true
			}
		}
		return false
	}, byUpdated, offset, limit), nil
}

func (r *memoryRepo) FindByStatusUpdatedBefore(_ context.Context, status models.SignatureStatus, cutoff time.Time, offset, limit int) ([]models.SignatureEvent, error) {
	return r.filter(func(e *models.SignatureEvent) bool {
		return e.Status == status && e.UpdatedAt.Before(cutoff)
	}, byUpdated, offset, limit), nil
}

func (r *memoryRepo) FindSentCreatedBefore(_ context.Context, cutoff time.Time, offset, limit int) ([]models.SignatureEvent, error) {
	return r.filter(func(e *models.SignatureEvent) bool {
		return e.Status == models.SignatureStatusSent && e.CreatedAt.Before(cutoff)
	}, byCreated, offset, limit), nil
}

func (r *memoryRepo) CountByStatus(context.Context) (map[models.SignatureStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[models.SignatureStatus]int64{}
	for _, e := range r.events {
		out[e.Status]++
	}
	return out, nil
}

func (r *memoryRepo) stored(t *testing.T, id string) *models.SignatureEvent {
	t.Helper()
	e, err := r.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("event %s not stored: %v", id, err)
	}
	return e
}

func (r *memoryRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// assertValidTransitions checks every persisted status change against the lifecycle table.
func (r *memoryRepo) assertValidTransitions(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tr := range r.transitions {
		assert.True(t, tr[0].CanTransitionTo(tr[1]), "illegal transition %s -> %s", tr[0], tr[1])
	}
}

// fakeGateway answers from configurable fields and counts calls.
type fakeGateway struct {
	mu          sync.Mutex
	provider    models.Provider
	envelopeID  string
	sendErr     error
	statuses    map[string]provider.Status
	statusErr   error
	signedDocs  []provider.SignedDocument
	downloadErr error

	sent      []provider.EnvelopeRequest
	checks    int
	checked   map[string]int // checks per envelope id
	downloads int

	onCheck func(envelopeID string) // runs before the status is returned
}

func newFakeGateway(p models.Provider) *fakeGateway {
	return &fakeGateway{
		provider:   p,
		envelopeID: "E-1",
		statuses:   map[string]provider.Status{},
		checked:    map[string]int{},
		signedDocs: []provider.SignedDocument{{FileName: "contract-signed.pdf", Content: []byte("%PDF signed")}},
	}
}

func (g *fakeGateway) Provider() models.Provider { return g.provider }

func (g *fakeGateway) SendEnvelope(_ context.Context, req provider.EnvelopeRequest) (*provider.ProviderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, req)
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	return &provider.ProviderResponse{EnvelopeID: g.envelopeID, Status: "sent", Raw: map[string]any{"envelopeId": g.envelopeID}}, nil
}

func (g *fakeGateway) CheckStatus(_ context.Context, envelopeID string) (*provider.StatusCheckResponse, error) {
	g.mu.Lock()
	g.checks++
	g.checked[envelopeID]++
	hook, statusErr := g.onCheck, g.statusErr
	status, ok := g.statuses[envelopeID]
	g.mu.Unlock()

	if hook != nil {
		hook(envelopeID)
	}
	if statusErr != nil {
		return nil, statusErr
	}
	if !ok {
		status = provider.StatusPending
	}
	return &provider.StatusCheckResponse{Status: status, RawStatus: string(status), Raw: map[string]any{"status": string(status)}}, nil
}

func (g *fakeGateway) DownloadSignedDocuments(context.Context, string) ([]provider.SignedDocument, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.downloads++
	if g.downloadErr != nil {
		return nil, g.downloadErr
	}
	return g.signedDocs, nil
}

func (g *fakeGateway) setStatus(envelopeID string, s provider.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[envelopeID] = s
}

func (g *fakeGateway) checkCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checks
}

func (g *fakeGateway) checksOf(envelopeID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checked[envelopeID]
}

type scheduled struct {
	task    string
	eventID string
	delay   time.Duration
}

// recordingDispatcher remembers scheduled tasks.
type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []scheduled
	err   error
}

func (d *recordingDispatcher) add(task, id string, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, scheduled{task, id, delay})
	return nil
}

func (d *recordingDispatcher) ScheduleSend(_ context.Context, id string, delay time.Duration) error {
	return d.add(TaskSend, id, delay)
}

func (d *recordingDispatcher) ScheduleCheckStatus(_ context.Context, id string, delay time.Duration) error {
	return d.add(TaskCheckStatus, id, delay)
}

func (d *recordingDispatcher) ScheduleUpload(_ context.Context, id string, delay time.Duration) error {
	return d.add(TaskUpload, id, delay)
}

func (d *recordingDispatcher) of(task string) []scheduled {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []scheduled
	for _, s := range d.tasks {
		if s.task == task {
			out = append(out, s)
		}
	}
	return out
}

type harness struct {
	repo       *memoryRepo
	store      *packager.MemoryStore
	gateway    *fakeGateway
	dispatcher *recordingDispatcher
	service    *Service
	handler    *TaskHandler
	now        time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:       newMemoryRepo(),
		store:      packager.NewMemoryStore("signatures"),
		gateway:    newFakeGateway(models.ProviderCertisign),
		dispatcher: &recordingDispatcher{},
		now:        testNow,
	}
	cfg := DefaultConfig()
	cfg.SweepBatchSize = 3
	cfg.SweepRatePerSecond = 0
	h.service = NewService(h.repo, packager.New(h.store), provider.NewRegistry(h.gateway), cfg,
		WithClock(func() time.Time { return h.now }))
	h.handler = NewTaskHandler(h.service, h.dispatcher)
	t.Cleanup(func() { h.repo.assertValidTransitions(t) })
	return h
}

// seed stores an event directly, archiving one document for it.
func (h *harness) seed(t *testing.T, id string, status models.SignatureStatus, envelopeID string, created time.Time) *models.SignatureEvent {
	t.Helper()
	e := &models.SignatureEvent{
		ID: id, CampaignID: "C1", CNPJ: "12345678000199",
		Provider: models.ProviderCertisign, Status: status,
		CreatedAt: created, UpdatedAt: created,
	}
	e.Metadata.Set(models.MetaSigner, map[string]any{"name": "Ana", "email": "ana@example.com"})
	loc, err := packager.New(h.store).PackageDocuments(context.Background(), scopeOf(e), packager.DocumentsArchive,
		[]packager.Document{{FileName: "contract.pdf", Content: []byte("%PDF-1.4")}})
	if err != nil {
		t.Fatal(err)
	}
	e.Metadata.SetDocumentsLocation(loc)
	if envelopeID != "" {
		if err := e.Metadata.SetEnvelopeID(envelopeID); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.repo.Create(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	return e
}

// copyOf clones events stored by the fakes, which only hold encodable metadata.
func copyOf(e *models.SignatureEvent) *models.SignatureEvent {
	c, err := cloneEvent(e)
	if err != nil {
		panic(err)
	}
	return c
}
