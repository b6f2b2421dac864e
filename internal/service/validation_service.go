package service

import (
	"catalog-validation/config"
	"catalog-validation/internal/model"
	"catalog-validation/internal/repository"
	"catalog-validation/pkg/logger"
	"catalog-validation/pkg/utils"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const searchPageSize = 100

// RunParam is the input of the run action. A nil Async means asynchronous.
type RunParam struct {
	ResourceID string
	Async      *bool
}

func (p RunParam) IsAsync() bool {
	return p.Async == nil || *p.Async
}

// BatchParam selects the datasets of a batch run. DatasetIDs is an id, a
// list of ids or a JSON encoded list. Query is a package_search object or
// its JSON encoding with q, fq and fq_list.
type BatchParam struct {
	DatasetIDs interface{}
	Query      interface{}
}

type ValidationService interface {
	Run(ctx context.Context, param RunParam) error
	Show(ctx context.Context, resourceID string) (*model.ValidationDict, error)
	Delete(ctx context.Context, resourceID string) error
	// RunBatch queues every supported resource of the selected datasets and
	// returns a summary line.
	RunBatch(ctx context.Context, param BatchParam) (string, error)
	// CountDatasets returns how many datasets a batch run would visit.
	CountDatasets(ctx context.Context, param BatchParam) (int, error)
}

type validationService struct {
	cfg          *config.Config
	log          *logger.Logger
	catalogRepo  repository.CatalogRepository
	statusHelper StatusHelper
	executor     JobExecutor
	dispatcher   Dispatcher
}

func NewValidationService(
	cfg *config.Config,
	log *logger.Logger,
	catalogRepo repository.CatalogRepository,
	statusHelper StatusHelper,
	executor JobExecutor,
	dispatcher Dispatcher,
) ValidationService {
	return &validationService{
		cfg:          cfg,
		log:          log,
		catalogRepo:  catalogRepo,
		statusHelper: statusHelper,
		executor:     executor,
		dispatcher:   dispatcher,
	}
}

func (s *validationService) Run(ctx context.Context, param RunParam) error {
	if param.ResourceID == "" {
		return NewValidationError("resource_id", "Missing value")
	}

	resource, err := s.catalogRepo.ResourceShow(ctx, param.ResourceID)
	if errors.Is(err, repository.ErrRecordNotFound) {
		return fmt.Errorf("%w: resource %s", ErrNotFound, param.ResourceID)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch resource %s: %w", param.ResourceID, err)
	}
	return s.runResource(ctx, resource, param.IsAsync())
}

func (s *validationService) runResource(ctx context.Context, resource *model.Resource, async bool) error {
	formats := s.cfg.Validation.SupportedFormats()
	if !utils.ContainsString(formats, resource.LowerFormat()) {
		return NewValidationError("format", "Unsupported resource format.Must be one of "+strings.Join(formats, ","))
	}
	if resource.URL == "" && !resource.IsUpload() {
		return NewValidationError("url", "Resource must have a valid URL or an uploaded file")
	}

	if _, err := s.statusHelper.CreateJob(ctx, resource.ID); err != nil {
		if !errors.Is(err, ErrJobAlreadyEnqueued) {
			return err
		}
		if async {
			s.log.ErrorContext(ctx, "Validation job already enqueued for resource",
				logger.ResourceField(resource.ID),
			)
			return nil
		}
	}

	if async {
		return s.dispatcher.Enqueue(ctx, resource.PackageID, resource.ID)
	}
	return s.executor.Run(ctx, JobInput{Resource: resource})
}

func (s *validationService) Show(ctx context.Context, resourceID string) (*model.ValidationDict, error) {
	if resourceID == "" {
		return nil, NewValidationError("resource_id", "Missing value")
	}
	validation, err := s.statusHelper.GetJob(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if validation == nil {
		return nil, fmt.Errorf("%w: No validation report exists for this resource", ErrNotFound)
	}
	dict := validation.Dictize()
	return &dict, nil
}

func (s *validationService) Delete(ctx context.Context, resourceID string) error {
	if resourceID == "" {
		return NewValidationError("resource_id", "Missing value")
	}
	validation, err := s.statusHelper.GetJob(ctx, resourceID)
	if err != nil {
		return err
	}
	if validation == nil {
		return fmt.Errorf("%w: No validation report exists for this resource", ErrNotFound)
	}
	err = s.statusHelper.DeleteJob(ctx, validation)
	if errors.Is(err, ErrJobDoesNotExist) {
		return fmt.Errorf("%w: No validation report exists for this resource", ErrNotFound)
	}
	return err
}

func (s *validationService) CountDatasets(ctx context.Context, param BatchParam) (int, error) {
	query, err := batchQuery(param.Query)
	if err != nil {
		return 0, NewValidationError("query", err.Error())
	}
	params := searchParams(s.cfg, 1, batchDatasetIDs(param.DatasetIDs), query)
	params.Rows = 0
	result, err := s.catalogRepo.PackageSearch(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("failed to search datasets: %w", err)
	}
	return result.Count, nil
}

func (s *validationService) RunBatch(ctx context.Context, param BatchParam) (string, error) {
	datasetIDs := batchDatasetIDs(param.DatasetIDs)
	query, err := batchQuery(param.Query)
	if err != nil {
		return err.Error(), nil
	}

	sent := 0
	for page := 1; ; page++ {
		if !utils.ShouldContinue(ctx, s.log) {
			return "", ctx.Err()
		}

		result, err := s.catalogRepo.PackageSearch(ctx, searchParams(s.cfg, page, datasetIDs, query))
		if err != nil {
			return "", fmt.Errorf("failed to search datasets: %w", err)
		}
		if page == 1 && result.Count == 0 {
			return "No suitable datasets for validation", nil
		}
		if len(result.Results) == 0 {
			break
		}

		for _, dataset := range result.Results {
			for i := range dataset.Resources {
				resource := &dataset.Resources[i]
				if !utils.ContainsString(s.cfg.Validation.SupportedFormats(), resource.LowerFormat()) {
					continue
				}
				if resource.PackageID == "" {
					resource.PackageID = dataset.ID
				}

				err := s.runResource(ctx, resource, true)
				var verr *ValidationError
				if errors.As(err, &verr) {
					s.log.WarnContext(ctx, "Could not run validation for resource",
						logger.ResourceField(resource.ID),
						logger.StringField("dataset", dataset.Name),
						logger.ErrorField(err),
					)
					continue
				}
				if err != nil {
					return "", err
				}
				sent++
			}
		}

		if len(result.Results) < searchPageSize {
			break
		}
	}

	msg := fmt.Sprintf("Done. %d resources sent to the validation queue", sent)
	s.log.InfoContext(ctx, msg)
	return msg, nil
}

// batchDatasetIDs accepts a single id, a JSON encoded list or a list.
func batchDatasetIDs(value interface{}) []string {
	switch ids := value.(type) {
	case nil:
		return nil
	case string:
		if ids == "" {
			return nil
		}
		var decoded []string
		if err := json.Unmarshal([]byte(ids), &decoded); err == nil {
			return decoded
		}
		var single string
		if err := json.Unmarshal([]byte(ids), &single); err == nil {
			return []string{single}
		}
		return []string{ids}
	case []string:
		return ids
	case []interface{}:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, fmt.Sprint(id))
		}
		return out
	default:
		return []string{fmt.Sprint(ids)}
	}
}

type batchSearch struct {
	Q      string
	FQ     string
	FQList []string
}

func batchQuery(value interface{}) (*batchSearch, error) {
	raw := value
	if encoded, ok := value.(string); ok {
		if encoded == "" {
			return nil, nil
		}
		if err := json.Unmarshal([]byte(encoded), &raw); err != nil {
			return nil, fmt.Errorf("Error parsing search parameters: %s", encoded)
		}
	}
	params, ok := raw.(map[string]interface{})
	if !ok || len(params) == 0 {
		return nil, nil
	}

	out := &batchSearch{}
	if q, ok := params["q"].(string); ok {
		out.Q = q
	}
	if fq, ok := params["fq"].(string); ok {
		out.FQ = fq
	}
	if list, ok := params["fq_list"].([]interface{}); ok {
		for _, item := range list {
			out.FQList = append(out.FQList, fmt.Sprint(item))
		}
	}
	return out, nil
}

// searchParams builds the package_search page. Dataset ids win over a
// user query; with neither, only datasets with a default format match.
func searchParams(cfg *config.Config, page int, datasetIDs []string, query *batchSearch) model.SearchParams {
	params := model.SearchParams{
		FQList:         []string{},
		IncludePrivate: true,
		Rows:           searchPageSize,
		Start:          searchPageSize * (page - 1),
	}

	switch {
	case len(datasetIDs) > 0:
		clauses := make([]string, 0, len(datasetIDs))
		for _, id := range datasetIDs {
			clauses = append(clauses, fmt.Sprintf(`id:%s OR name:"%s"`, id, id))
		}
		params.Q = strings.Join(clauses, " OR ")
	case query != nil:
		if query.Q != "" {
			params.Q = query.Q
		}
		if query.FQ != "" {
			if params.FQ != "" {
				params.FQ += " " + query.FQ
			} else {
				params.FQ = query.FQ
			}
		}
		params.FQList = append(params.FQList, query.FQList...)
	default:
		params.FQList = append(params.FQList, defaultFormatFilter())
	}

	if params.Q == "" {
		params.Q = "*:*"
	}
	return params
}

func defaultFormatFilter() string {
	clauses := make([]string, 0, len(config.DefaultFormats)*2)
	for _, format := range config.DefaultFormats {
		clauses = append(clauses,
			fmt.Sprintf(`+res_format:"%s"`, format),
			fmt.Sprintf(`+res_format:"%s"`, strings.ToUpper(format)),
		)
	}
	return strings.Join(clauses, " OR ")
}
