package service

import (
	"catalog-validation/config"
	"catalog-validation/internal/model"
	"catalog-validation/internal/repository"
	"catalog-validation/pkg/logger"
	"catalog-validation/pkg/utils"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	errorsPerTypeLimit = 10
	reportFetchWorkers = 4
)

var ErrNoSuitableDatasets = errors.New("No suitable datasets, exiting...")

var (
	summaryColumns = []string{"dataset", "resource_id", "format", "url", "status", "validation_report_url"}
	fullColumns    = []string{"dataset", "resource_id", "format", "url", "status", "error_code", "error_message"}
)

// ReportSummary aggregates the validation status of the catalog's tabular
// resources.
type ReportSummary struct {
	Datasets         int
	TabularResources int
	ResourcesSuccess int
	ResourcesFailure int
	ResourcesError   int
	FormatsSuccess   map[string]int
	FormatsFailure   map[string]int
	ErrorCounts      map[string]int
	Full             bool
	Output           string
}

type ReportService interface {
	// Report writes one CSV row per failed or errored resource to w. With
	// full set, each row is an error of the stored report instead.
	Report(ctx context.Context, w io.Writer, full bool) (*ReportSummary, error)
}

type reportService struct {
	cfg          *config.Config
	log          *logger.Logger
	catalogRepo  repository.CatalogRepository
	statusHelper StatusHelper
}

func NewReportService(cfg *config.Config, log *logger.Logger, catalogRepo repository.CatalogRepository, statusHelper StatusHelper) ReportService {
	return &reportService{
		cfg:          cfg,
		log:          log,
		catalogRepo:  catalogRepo,
		statusHelper: statusHelper,
	}
}

type reportRow struct {
	dataset  model.Dataset
	resource model.Resource
}

func (s *reportService) Report(ctx context.Context, w io.Writer, full bool) (*ReportSummary, error) {
	summary := &ReportSummary{
		FormatsSuccess: map[string]int{},
		FormatsFailure: map[string]int{},
		ErrorCounts:    map[string]int{},
		Full:           full,
	}

	writer := csv.NewWriter(w)
	columns := summaryColumns
	if full {
		columns = fullColumns
	}
	if err := writer.Write(columns); err != nil {
		return nil, err
	}

	formats := s.cfg.Validation.SupportedFormats()
	for page := 1; ; page++ {
		result, err := s.catalogRepo.PackageSearch(ctx, searchParams(s.cfg, page, nil, nil))
		if err != nil {
			return nil, fmt.Errorf("failed to search datasets: %w", err)
		}
		if page == 1 && result.Count == 0 {
			return nil, ErrNoSuitableDatasets
		}
		summary.Datasets = result.Count
		if len(result.Results) == 0 {
			break
		}

		var failed []reportRow
		for _, dataset := range result.Results {
			for _, resource := range dataset.Resources {
				if !utils.ContainsString(formats, resource.LowerFormat()) {
					continue
				}
				summary.TabularResources++

				status := model.ValidationStatus(resource.ValidationStatus)
				switch status {
				case model.StatusSuccess:
					summary.ResourcesSuccess++
				case model.StatusFailure:
					summary.ResourcesFailure++
				case model.StatusError:
					summary.ResourcesError++
				}

				if status == model.StatusFailure || status == model.StatusError {
					summary.FormatsFailure[resource.Format]++
					failed = append(failed, reportRow{dataset: dataset, resource: resource})
				} else {
					summary.FormatsSuccess[resource.Format]++
				}
			}
		}

		if full {
			if err := s.writeFullRows(ctx, writer, failed, summary.ErrorCounts); err != nil {
				return nil, err
			}
		} else {
			for _, row := range failed {
				url := s.resourceURL(row)
				if err := writer.Write([]string{
					row.dataset.Name, row.resource.ID, row.resource.Format, url,
					row.resource.ValidationStatus, url + "/validation",
				}); err != nil {
					return nil, err
				}
			}
		}

		if len(result.Results) < searchPageSize {
			break
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return summary, nil
}

// writeFullRows fetches the stored reports of one page concurrently and
// writes them in page order.
func (s *reportService) writeFullRows(ctx context.Context, writer *csv.Writer, rows []reportRow, counts map[string]int) error {
	reports := make([]*model.Report, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reportFetchWorkers)
	for i, row := range rows {
		g.Go(func() error {
			validation, err := s.statusHelper.GetJob(gctx, row.resource.ID)
			if err != nil || validation == nil {
				return err
			}
			report, err := validation.DecodeReport()
			if err != nil {
				s.log.WarnContext(gctx, "Stored validation report is not readable",
					logger.ResourceField(row.resource.ID),
					logger.ErrorField(err),
				)
				return nil
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, row := range rows {
		report := reports[i]
		if report == nil || len(report.Tasks) == 0 {
			continue
		}
		url := s.resourceURL(row)
		seen := map[string]int{}
		for _, e := range report.Tasks[0].Errors {
			seen[e.Type]++
			counts[e.Type]++
			if seen[e.Type] > errorsPerTypeLimit {
				continue
			}
			if err := writer.Write([]string{
				row.dataset.Name, row.resource.ID, row.resource.Format, url,
				row.resource.ValidationStatus, e.Type, e.Message,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *reportService) resourceURL(row reportRow) string {
	return fmt.Sprintf("%s/dataset/%s/resource/%s",
		strings.TrimRight(s.cfg.Catalog.SiteURL, "/"), row.dataset.Name, row.resource.ID)
}

// String renders the summary printed at the end of a report run.
func (r *ReportSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nDone.\n")
	fmt.Fprintf(&b, "%d datasets with tabular resources\n", r.Datasets)
	fmt.Fprintf(&b, "%d tabular resources\n", r.TabularResources)
	fmt.Fprintf(&b, "%d resources - validation success\n", r.ResourcesSuccess)
	fmt.Fprintf(&b, "%d resources - validation failure\n", r.ResourcesFailure)
	fmt.Fprintf(&b, "%d resources - validation error\n", r.ResourcesError)
	fmt.Fprintf(&b, "\nFormats breakdown (validation passed):\n%s", breakdown(r.FormatsSuccess))
	fmt.Fprintf(&b, "\nFormats breakdown (validation failed or errored):\n%s", breakdown(r.FormatsFailure))
	if r.Full {
		fmt.Fprintf(&b, "\nErrors breakdown:\n%s", breakdown(r.ErrorCounts))
	}
	if r.Output != "" {
		fmt.Fprintf(&b, "\nCSV Report stored in %s\n", r.Output)
	}
	return b.String()
}

// breakdown lists counts from highest to lowest.
func breakdown(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] > keys[j]
	})

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "* %s: %d\n", k, counts[k])
	}
	return b.String()
}
