package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalogxlate/internal/catalog"
	"github.com/JonMunkholm/catalogxlate/internal/notify"
)

// memJobStore is an in-memory JobStore that enforces the same status
// guards as the Postgres store.
type memJobStore struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*TranslationJob
	order  []uuid.UUID
	errors map[uuid.UUID][]TranslationError

	// stolen jobs are claimed by "another worker" right before ClaimJob.
	stolen map[uuid.UUID]bool

	// completeErr, when set, is returned by CompleteJob without a write.
	completeErr error
}

func newMemJobStore() *memJobStore {
	return &memJobStore{
		jobs:   make(map[uuid.UUID]*TranslationJob),
		errors: make(map[uuid.UUID][]TranslationError),
		stolen: make(map[uuid.UUID]bool),
	}
}

func (m *memJobStore) CreateJob(_ context.Context, nj NewJob) (TranslationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	job := TranslationJob{
		ID:            uuid.New(),
		StoreHash:     nj.StoreHash,
		JobType:       nj.JobType,
		Status:        StatusPending,
		ChannelID:     nj.ChannelID,
		Locale:        nj.Locale,
		DefaultLocale: nj.DefaultLocale,
		FileURL:       nj.FileURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.jobs[job.ID] = &job
	m.order = append(m.order, job.ID)
	return job, nil
}

func (m *memJobStore) GetJob(_ context.Context, id uuid.UUID) (TranslationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return TranslationJob{}, ErrJobNotFound
	}
	return *job, nil
}

func (m *memJobStore) ListJobs(_ context.Context, f JobFilter) ([]TranslationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TranslationJob
	for i := len(m.order) - 1; i >= 0; i-- {
		job := m.jobs[m.order[i]]
		if f.StoreHash != "" && job.StoreHash != f.StoreHash {
			continue
		}
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		out = append(out, *job)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memJobStore) ListPendingJobs(_ context.Context, storeHash string) ([]TranslationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TranslationJob
	for _, id := range m.order {
		job := m.jobs[id]
		if job.Status == StatusPending && (storeHash == "" || job.StoreHash == storeHash) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *memJobStore) ClaimJob(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return false, ErrJobNotFound
	}
	if m.stolen[id] {
		job.Status = StatusProcessing
	}
	if job.Status != StatusPending {
		return false, nil
	}
	job.Status = StatusProcessing
	return true, nil
}

func (m *memJobStore) finish(id uuid.UUID, status JobStatus, fileURL, msg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	job.Status = status
	job.FileURL = firstSet(fileURL, job.FileURL)
	job.Error = msg
	job.UpdatedAt = time.Now()
	return nil
}

func firstSet(a, b *string) *string {
	if a != nil {
		return a
	}
	return b
}

func (m *memJobStore) CompleteJob(_ context.Context, id uuid.UUID, fileURL *string) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	return m.finish(id, StatusCompleted, fileURL, nil)
}

func (m *memJobStore) FailJob(_ context.Context, id uuid.UUID, message string) error {
	return m.finish(id, StatusFailed, nil, &message)
}

func (m *memJobStore) InsertErrors(_ context.Context, rows []TranslationError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.errors[r.JobID] = append(m.errors[r.JobID], r)
	}
	return nil
}

func (m *memJobStore) ListErrors(_ context.Context, jobID uuid.UUID) ([]TranslationError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.errors[jobID]), nil
}

type memCredentials map[string]string

func (c memCredentials) StoreToken(_ context.Context, storeHash string) (string, error) {
	token, ok := c[storeHash]
	if !ok {
		return "", fmt.Errorf("store %s: %w", storeHash, ErrNoCredentials)
	}
	return token, nil
}

type memBlobs struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{files: make(map[string][]byte)} }

func (b *memBlobs) Put(_ context.Context, path string, content []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[path] = slices.Clone(content)
	return "mem://" + path, nil
}

func (b *memBlobs) Get(_ context.Context, url string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[strings.TrimPrefix(url, "mem://")]
	if !ok {
		return nil, fmt.Errorf("%s: file not found", url)
	}
	return data, nil
}

// fakeGateway serves canned product data and records writes.
type fakeGateway struct {
	mu            sync.Mutex
	productIDs    []int64
	products      map[int64]catalog.ProductLocales
	failProducts  map[int64]error
	defaultLocale string
	localeErr     error
	updates       []catalog.ProductUpdate
	updateErr     map[int64]error
}

func (g *fakeGateway) ChannelProductIDs(context.Context, int64) ([]int64, error) {
	return g.productIDs, nil
}

func (g *fakeGateway) ProductLocales(_ context.Context, productID, _ int64, _, _ string) (catalog.ProductLocales, error) {
	if err := g.failProducts[productID]; err != nil {
		return catalog.ProductLocales{}, err
	}
	return g.products[productID], nil
}

func (g *fakeGateway) UpdateProduct(_ context.Context, upd catalog.ProductUpdate) error {
	if err := g.updateErr[upd.EntityID]; err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updates = append(g.updates, upd)
	return nil
}

func (g *fakeGateway) DefaultLocale(context.Context, int64) (string, error) {
	if g.localeErr != nil {
		return "", g.localeErr
	}
	return g.defaultLocale, nil
}

func (g *fakeGateway) updatedIDs() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]int64, len(g.updates))
	for i, u := range g.updates {
		ids[i] = u.EntityID
	}
	slices.Sort(ids)
	return ids
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Publish(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}
