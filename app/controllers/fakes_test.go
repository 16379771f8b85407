package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SignFlow/app/models"
	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
	"github.com/ManuelReschke/SignFlow/internal/pkg/jobqueue"
	"github.com/ManuelReschke/SignFlow/internal/pkg/packager"
	"github.com/ManuelReschke/SignFlow/internal/pkg/provider"
	"github.com/ManuelReschke/SignFlow/internal/pkg/signature"
)

// eventStore is a minimal versioned in-memory event repository.
type eventStore struct {
	mu     sync.Mutex
	events map[string]models.SignatureEvent
	err    error
}

func newEventStore() *eventStore {
	return &eventStore{events: map[string]models.SignatureEvent{}}
}

func (s *eventStore) Create(_ context.Context, e *models.SignatureEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	metadata, err := e.Metadata.Clone()
	if err != nil {
		return err
	}
	stored := *e
	stored.Metadata = metadata
	s.events[e.ID] = stored
	return nil
}

func (s *eventStore) GetByID(_ context.Context, id string) (*models.SignatureEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, apperrors.NotFound("eventStore.GetByID", "signature event "+id+" not found")
	}
	metadata, err := e.Metadata.Clone()
	if err != nil {
		return nil, err
	}
	e.Metadata = metadata
	return &e, nil
}

func (s *eventStore) Update(_ context.Context, e *models.SignatureEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.events[e.ID]
	if !ok {
		return apperrors.NotFound("eventStore.Update", e.ID)
	}
	if stored.Version != e.Version {
		return apperrors.Conflict("eventStore.Update", e.ID)
	}
	metadata, err := e.Metadata.Clone()
	if err != nil {
		return err
	}
	e.Version++
	next := *e
	next.Metadata = metadata
	s.events[e.ID] = next
	return nil
}

func (s *eventStore) page(match func(models.SignatureEvent) bool, offset, limit int) []models.SignatureEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SignatureEvent
	for _, e := range s.events {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (s *eventStore) List(_ context.Context, offset, limit int) ([]models.SignatureEvent, error) {
	return s.page(func(models.SignatureEvent) bool { return true }, offset, limit), nil
}

func (s *eventStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.events)), nil
}

func (s *eventStore) FindByStatus(_ context.Context, status models.SignatureStatus, offset, limit int) ([]models.SignatureEvent, error) {
	return s.page(func(e models.SignatureEvent) bool { return e.Status == status }, offset, limit), nil
}

func (s *eventStore) FindByStatusForStatusCheck(_ context.Context, statuses []models.SignatureStatus, offset, limit int) ([]models.SignatureEvent, error) {
	return s.page(func(e models.SignatureEvent) bool {
		for _, st := range statuses {
			if e.Status == st && e.Metadata.HasEnvelopeID() {
				return true
			}
		}
		return false
	}, offset, limit), nil
}

func (s *eventStore) FindByStatusUpdatedBefore(_ context.Context, status models.SignatureStatus, cutoff time.Time, offset, limit int) ([]models.SignatureEvent, error) {
	return s.page(func(e models.SignatureEvent) bool { return e.Status == status && e.UpdatedAt.Before(cutoff) }, offset, limit), nil
}

func (s *eventStore) FindSentCreatedBefore(_ context.Context, cutoff time.Time, offset, limit int) ([]models.SignatureEvent, error) {
	return s.page(func(e models.SignatureEvent) bool {
		return e.Status == models.SignatureStatusSent && e.CreatedAt.Before(cutoff)
	}, offset, limit), nil
}

func (s *eventStore) CountByStatus(context.Context) (map[models.SignatureStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[models.SignatureStatus]int64{}
	for _, e := range s.events {
		out[e.Status]++
	}
	return out, nil
}

// stubGateway always opens envelope E-1 and reports a fixed status.
type stubGateway struct {
	sendErr error
	status  provider.Status
}

func (g *stubGateway) Provider() models.Provider { return models.ProviderCertisign }

func (g *stubGateway) SendEnvelope(context.Context, provider.EnvelopeRequest) (*provider.ProviderResponse, error) {
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	return &provider.ProviderResponse{EnvelopeID: "E-1", Status: "sent", Raw: map[string]any{"id": "E-1"}}, nil
}

func (g *stubGateway) CheckStatus(context.Context, string) (*provider.StatusCheckResponse, error) {
	return &provider.StatusCheckResponse{Status: g.status, RawStatus: string(g.status), Raw: map[string]any{}}, nil
}

func (g *stubGateway) DownloadSignedDocuments(context.Context, string) ([]provider.SignedDocument, error) {
	return []provider.SignedDocument{{FileName: "signed.pdf", Content: []byte("%PDF signed")}}, nil
}

type dispatched struct {
	task    string
	eventID string
}

type stubDispatcher struct {
	mu    sync.Mutex
	tasks []dispatched
	err   error
}

func (d *stubDispatcher) add(task, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, dispatched{task, id})
	return nil
}

func (d *stubDispatcher) ScheduleSend(_ context.Context, id string, _ time.Duration) error {
	return d.add(signature.TaskSend, id)
}

func (d *stubDispatcher) ScheduleCheckStatus(_ context.Context, id string, _ time.Duration) error {
	return d.add(signature.TaskCheckStatus, id)
}

func (d *stubDispatcher) ScheduleUpload(_ context.Context, id string, _ time.Duration) error {
	return d.add(signature.TaskUpload, id)
}

type stubQueueStats struct {
	sizeErr error
}

func (q *stubQueueStats) GetJobStats(context.Context) (map[jobqueue.JobStatus]int64, error) {
	return map[jobqueue.JobStatus]int64{jobqueue.JobStatusCompleted: 4}, nil
}
func (q *stubQueueStats) GetQueueSize(context.Context) (int64, error)      { return 1, nil }
func (q *stubQueueStats) GetProcessingSize(context.Context) (int64, error) { return 0, q.sizeErr }
func (q *stubQueueStats) GetDelayedSize(context.Context) (int64, error)    { return 2, nil }

// stubSweepLock runs the sweep unless held is set.
type stubSweepLock struct {
	held bool
	runs int
}

func (l *stubSweepLock) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.held {
		return jobqueue.ErrSweepLocked
	}
	l.runs++
	return fn(ctx)
}

type testEnv struct {
	app        *fiber.App
	store      *eventStore
	gateway    *stubGateway
	dispatcher *stubDispatcher
	queue      *stubQueueStats
	lock       *stubSweepLock
	service    *signature.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:      newEventStore(),
		gateway:    &stubGateway{status: provider.StatusPending},
		dispatcher: &stubDispatcher{},
		queue:      &stubQueueStats{},
		lock:       &stubSweepLock{},
	}
	env.service = signature.NewService(env.store, packager.New(packager.NewMemoryStore("signatures")),
		provider.NewRegistry(env.gateway), signature.DefaultConfig())

	events := NewSignatureEventController(env.service, env.dispatcher)
	tasks := NewTaskController(signature.NewTaskHandler(env.service, env.dispatcher),
		signature.NewReconciler(env.service, env.dispatcher), env.service, env.queue, env.lock)

	app := fiber.New()
	app.Post("/signature-events", events.HandleCreate)
	app.Get("/signature-events", func(c *fiber.Ctx) error {
		return events.HandleList(c, c.Query("status"), c.QueryInt("page"), c.QueryInt("per_page"))
	})
	app.Get("/signature-events/:id", func(c *fiber.Ctx) error {
		return events.HandleGet(c, c.Params("id"))
	})
	app.Post("/tasks/send", tasks.HandleSend)
	app.Post("/tasks/check-status", tasks.HandleCheckStatus)
	app.Post("/tasks/upload", tasks.HandleUpload)
	app.Post("/sweep", tasks.HandleSweep)
	app.Get("/stats", tasks.HandleStats)
	env.app = app
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func validCreateRequest() map[string]any {
	return map[string]any{
		"campaignId":  "C1",
		"cnpj":        "12345678000199",
		"provider":    "CERTISIGN",
		"signerName":  "Ana Souza",
		"signerEmail": "ana@example.com",
		"documents": []map[string]any{
			{"fileName": "contract.pdf", "base64Content": "JVBERi0xLjQ="},
		},
	}
}
