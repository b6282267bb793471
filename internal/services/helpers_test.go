package services_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokoadmin/internal/csrf"
	"tokoadmin/internal/imagestore"
	"tokoadmin/internal/metrics"
	"tokoadmin/internal/models"
	"tokoadmin/internal/repositories"
	"tokoadmin/internal/services"
)

var (
	admin    = services.Actor{ID: "admin-1", Username: "admin", Role: models.RoleAdmin}
	editor   = services.Actor{ID: "editor-1", Username: "editor", Role: models.RoleProductAdmin}
	customer = services.Actor{ID: "user-1", Username: "customer", Role: models.RoleUser}
)

type storeCall struct {
	Folder        string
	Width, Height int
}

// fakeImageStore keeps artifacts in memory.
type fakeImageStore struct {
	mu        sync.Mutex
	artifacts map[string][]byte
	adds      []storeCall
	deletes   []storeCall
	next      int
	addErr    error
	failAddAt int // 1-based upload index that fails, 0 disables
	deleteErr error
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{artifacts: make(map[string][]byte)}
}

func (s *fakeImageStore) Add(_ context.Context, data io.Reader, folder string, width, height int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adds = append(s.adds, storeCall{folder, width, height})
	if s.addErr != nil && (s.failAddAt == 0 || s.failAddAt == len(s.adds)) {
		return "", s.addErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.next++
	ref := fmt.Sprintf("img-%d.jpg", s.next)
	s.artifacts[ref] = b
	return ref, nil
}

func (s *fakeImageStore) Delete(_ context.Context, reference, folder string, width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, storeCall{folder, width, height})
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.artifacts[reference]; !ok {
		return imagestore.ErrArtifactNotFound
	}
	delete(s.artifacts, reference)
	return nil
}

func (s *fakeImageStore) has(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.artifacts[ref]
	return ok
}

func (s *fakeImageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.artifacts)
}

// recordingPublisher captures published catalog events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []services.CatalogEvent
	err    error
}

func (p *recordingPublisher) Publish(exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	var event services.CatalogEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return err
	}
	if exchange != services.CatalogExchange || routingKey != event.Type {
		return fmt.Errorf("unexpected route %s/%s for %s", exchange, routingKey, event.Type)
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// MockProductRepository is a mock implementation of repositories.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductRepository) GetImageByID(ctx context.Context, id string) (*models.Image, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Image), args.Error(1)
}

func (m *MockProductRepository) Save(ctx context.Context, product *models.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *MockProductRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockProductRepository) DeleteImage(ctx context.Context, id string, beforeCommit func() error) error {
	return m.Called(ctx, id, beforeCommit).Error(0)
}

type harness struct {
	repo      repositories.ProductRepository
	store     *fakeImageStore
	tokens    *csrf.Manager
	publisher *recordingPublisher
	metrics   *metrics.Metrics
	svc       *services.ProductAdminService
}

func newHarness(t *testing.T, repo repositories.ProductRepository) *harness {
	t.Helper()
	if repo == nil {
		repo = repositories.NewMockProductRepository()
	}
	h := &harness{
		repo:      repo,
		store:     newFakeImageStore(),
		tokens:    csrf.NewManager("test-csrf-secret", time.Hour),
		publisher: &recordingPublisher{},
		metrics:   metrics.New(),
	}
	h.svc = services.NewProductAdminService(services.ProductAdminDeps{
		Repo:      h.repo,
		Images:    h.store,
		Policy:    services.RolePolicy{},
		Slugger:   services.TextSlugger{},
		Tokens:    h.tokens,
		Publisher: h.publisher,
		Metrics:   h.metrics,
		Log:       zap.NewNop().Sugar(),
	})
	return h
}

// seed stores a product with n stored images directly through the repository.
func (h *harness) seed(t *testing.T, owner, name string, cents int64, n int) *models.Product {
	t.Helper()
	product := &models.Product{OwnerID: owner, Name: name, Slug: "seeded", PriceCents: cents}
	for i := 0; i < n; i++ {
		ref, err := h.store.Add(context.Background(), bytes.NewReader([]byte("x")), services.ImageFolder, services.ImageWidth, services.ImageHeight)
		require.NoError(t, err)
		product.Images = append(product.Images, models.Image{Name: ref, Position: i})
	}
	h.store.adds = nil
	require.NoError(t, h.repo.Save(context.Background(), product))
	return product
}

func pngUpload(t *testing.T, name string) services.Upload {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return services.Upload{Filename: name, Data: buf.Bytes()}
}

func submission(name, price string, uploads ...services.Upload) services.ProductSubmission {
	return services.ProductSubmission{
		Submitted: true,
		Form:      services.ProductForm{Name: name, Price: price, Stock: "5"},
		Images:    uploads,
	}
}
