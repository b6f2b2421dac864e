package service

import (
	"catalog-validation/config"
	"catalog-validation/internal/contract"
	"catalog-validation/internal/engine"
	"catalog-validation/internal/model"
	"catalog-validation/internal/queue"
	"catalog-validation/internal/repository"
	"catalog-validation/internal/testutil"
	"catalog-validation/pkg/logger"
	"context"
	"sync"
	"testing"
	"time"
)

type fakeCatalog struct {
	mu        sync.Mutex
	resources map[string]*model.Resource
	datasets  map[string]*model.Dataset
	pages     []model.SearchResult
	searches  []model.SearchParams
	patches   []model.ResourcePatch
	token     string
	patchErr  error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		resources: map[string]*model.Resource{},
		datasets:  map[string]*model.Dataset{},
	}
}

func (c *fakeCatalog) addResource(r *model.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[r.ID] = r
}

func (c *fakeCatalog) ResourceShow(_ context.Context, id string) (*model.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.resources[id]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	copied := *r
	return &copied, nil
}

func (c *fakeCatalog) PackageShow(_ context.Context, id string) (*model.Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.datasets[id]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return d, nil
}

func (c *fakeCatalog) ResourcePatch(_ context.Context, patch model.ResourcePatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patches = append(c.patches, patch)
	return c.patchErr
}

func (c *fakeCatalog) PackageSearch(_ context.Context, params model.SearchParams) (*model.SearchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searches = append(c.searches, params)
	page := params.Start / searchPageSize
	if page >= len(c.pages) {
		count := 0
		if len(c.pages) > 0 {
			count = c.pages[0].Count
		}
		return &model.SearchResult{Count: count}, nil
	}
	result := c.pages[page]
	return &result, nil
}

func (c *fakeCatalog) SiteUserToken() string { return c.token }

func (c *fakeCatalog) lastPatch() (model.ResourcePatch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.patches) == 0 {
		return model.ResourcePatch{}, false
	}
	return c.patches[len(c.patches)-1], true
}

type fakeStorage struct {
	file *repository.StoredFile
	err  error
}

func (s *fakeStorage) Resolve(context.Context, *model.Resource) (*repository.StoredFile, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.file == nil {
		return nil, repository.ErrUnresolvableUpload
	}
	return s.file, nil
}

type fakeSchemas struct {
	schemas map[string]map[string]interface{}
	fetched []string
}

func (s *fakeSchemas) Fetch(_ context.Context, schemaURL string) (map[string]interface{}, error) {
	s.fetched = append(s.fetched, schemaURL)
	schema, ok := s.schemas[schemaURL]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return schema, nil
}

type engineCall struct {
	ctx     context.Context
	source  engine.Source
	format  string
	schema  map[string]interface{}
	options engine.Options
}

// fakeEngine answers calls in order from results, repeating the last one.
type fakeEngine struct {
	mu      sync.Mutex
	calls   []engineCall
	results []func(engineCall) (*model.Report, error)
}

func (e *fakeEngine) Validate(ctx context.Context, source engine.Source, format string, schema map[string]interface{}, opts engine.Options) (*model.Report, error) {
	e.mu.Lock()
	call := engineCall{ctx: ctx, source: source, format: format, schema: schema, options: opts}
	e.calls = append(e.calls, call)
	idx := len(e.calls) - 1
	if idx >= len(e.results) {
		idx = len(e.results) - 1
	}
	e.mu.Unlock()
	if idx < 0 {
		return validReport(source.Place()), nil
	}
	return e.results[idx](call)
}

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func returning(report *model.Report, err error) func(engineCall) (*model.Report, error) {
	return func(engineCall) (*model.Report, error) { return report, err }
}

func validReport(place string) *model.Report {
	return &model.Report{
		Valid: true,
		Stats: model.ReportStats{Tasks: 1},
		Tasks: []model.ReportTask{{Name: "data", Type: "table", Valid: true, Place: place}},
	}
}

func reportWithErrors(place string, errs ...model.ReportError) *model.Report {
	return &model.Report{
		Valid: false,
		Stats: model.ReportStats{Tasks: 1, Errors: len(errs)},
		Tasks: []model.ReportTask{{Name: "data", Type: "table", Place: place, Errors: errs}},
	}
}

type recordingPlugin struct {
	contract.BasePlugin
	mu         sync.Mutex
	veto       bool
	createMode string
	updateMode string
	reports    []model.ValidationDict
	err        error
}

func (p *recordingPlugin) CanValidate(context.Context, *model.Resource) bool { return !p.veto }

func (p *recordingPlugin) SetCreateMode(_ context.Context, _ *model.Resource, mode string) string {
	if p.createMode != "" {
		return p.createMode
	}
	return mode
}

func (p *recordingPlugin) SetUpdateMode(_ context.Context, _ *model.Resource, mode string) string {
	if p.updateMode != "" {
		return p.updateMode
	}
	return mode
}

func (p *recordingPlugin) ReceiveValidationReport(_ context.Context, validation model.ValidationDict) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, validation)
	return p.err
}

func testConfig() *config.Config {
	return &config.Config{
		Queue: config.Queue{Name: queue.DefaultQueue},
		Catalog: config.Catalog{
			SiteURL: "https://catalog.example.com",
		},
		Validation: config.Validation{
			Formats:           []string{"csv", "xlsx", "xls"},
			DefaultCreateMode: config.ModeAsync,
			DefaultUpdateMode: config.ModeAsync,
			PassAuthHeader:    true,
		},
		Reaper: config.Reaper{
			Enabled:        true,
			Schedule:       "*/5 * * * *",
			RunningTimeout: 2 * time.Hour,
			CreatedTimeout: 25 * time.Hour,
			BatchSize:      100,
		},
	}
}

// harness wires the services over a sqlite store and in-memory fakes.
type harness struct {
	cfg     *config.Config
	repo    *repository.Repository
	catalog *fakeCatalog
	storage *fakeStorage
	schemas *fakeSchemas
	engine  *fakeEngine
	plugin  *recordingPlugin
	queue   *queue.MemoryQueue
	service *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewSQLiteDB(t)

	h := &harness{
		cfg:     testConfig(),
		catalog: newFakeCatalog(),
		storage: &fakeStorage{},
		schemas: &fakeSchemas{schemas: map[string]map[string]interface{}{}},
		engine:  &fakeEngine{},
		plugin:  &recordingPlugin{},
		queue:   queue.NewMemoryQueue(),
	}
	h.repo = &repository.Repository{
		ValidationRepo: repository.NewValidationRepository(db),
		CatalogRepo:    h.catalog,
		StorageRepo:    h.storage,
		SchemaRepo:     h.schemas,
		UnitOfWork:     repository.NewUnitOfWork(db),
	}
	h.service = NewService(h.cfg, logger.NewNop(), h.repo, h.engine, h.queue, h.plugin)
	return h
}

func (h *harness) record(t *testing.T, resourceID string) *model.Validation {
	t.Helper()
	v, err := h.service.StatusHelper.GetJob(context.Background(), resourceID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return v
}

func (h *harness) queued(t *testing.T) int64 {
	t.Helper()
	n, err := h.queue.Len(context.Background(), queue.DefaultQueue)
	if err != nil {
		t.Fatalf("queue len: %v", err)
	}
	return n
}

func csvResource(id string) *model.Resource {
	return &model.Resource{
		ID:        id,
		PackageID: "pkg-1",
		URL:       "https://data.example.com/" + id + ".csv",
		Format:    "CSV",
	}
}
