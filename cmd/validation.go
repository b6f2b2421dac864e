package cmd

import (
	"bufio"
	"catalog-validation/internal/repository"
	"catalog-validation/internal/service"
	"catalog-validation/pkg/database"
	"catalog-validation/pkg/logger"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultReportFile = "validation_errors_report.csv"

var (
	runResourceIDs []string
	runDatasetIDs  []string
	runSearch      string
	runAssumeYes   bool

	reportOutput string
	reportFull   bool
)

var validationCmd = &cobra.Command{
	Use:   "validation",
	Short: "Validation maintenance commands",
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the validation tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		appDep, err := NewAppDependency(cmd.Context())
		if err != nil {
			return err
		}
		defer appDep.Close()
		return initDB(cmd.OutOrStdout(), appDep.db)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Queue data validation for the site resources",
	Long: `Queue asynchronous data validation. Without options every resource of a
supported format is validated. Use -r for particular resources, -d for the
resources of particular datasets or -s for package_search parameters (q, fq
and fq_list) selecting the datasets.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(runResourceIDs) > 0 && (len(runDatasetIDs) > 0 || runSearch != "") {
			return errors.New("-r can not be combined with -d or -s")
		}
		appDep, services, err := newCommandServices(cmd.Context())
		if err != nil {
			return err
		}
		defer appDep.Close()
		return runValidation(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), appDep.log, services.ValidationService)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a CSV report of failing resources",
	Long: `Print an overview of the tabular resources by validation status and write a
CSV with every failing resource. With --full the CSV has one row per error
found, limited to ten of each error type per resource.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appDep, services, err := newCommandServices(cmd.Context())
		if err != nil {
			return err
		}
		defer appDep.Close()
		return writeReport(cmd.Context(), cmd.OutOrStdout(), services.ReportService)
	},
}

func init() {
	runCmd.Flags().StringSliceVarP(&runResourceIDs, "resource", "r", nil, "Resource id to validate, can be repeated")
	runCmd.Flags().StringSliceVarP(&runDatasetIDs, "dataset", "d", nil, "Dataset id or name whose resources are validated, can be repeated")
	runCmd.Flags().StringVarP(&runSearch, "search", "s", "", "JSON package_search parameters selecting the datasets")
	runCmd.Flags().BoolVarP(&runAssumeYes, "yes", "y", false, "Assume yes to prompts")

	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", defaultReportFile, "Location of the CSV report")
	reportCmd.Flags().BoolVar(&reportFull, "full", false, "Add one row per validation error")

	validationCmd.AddCommand(initDBCmd)
	validationCmd.AddCommand(runCmd)
	validationCmd.AddCommand(reportCmd)
}

func newCommandServices(ctx context.Context) (*AppDependency, *service.Service, error) {
	appDep, err := NewAppDependency(ctx)
	if err != nil {
		return nil, nil, err
	}
	services, err := appDep.NewServices(ctx)
	if err != nil {
		_ = appDep.Close()
		return nil, nil, err
	}
	return appDep, services, nil
}

func initDB(out io.Writer, db *database.DB) error {
	if repository.TablesExist(db.DB) {
		fmt.Fprintln(out, "Validation tables already exist")
		return nil
	}
	if err := repository.AutoMigrate(db.DB); err != nil {
		return err
	}
	fmt.Fprintln(out, "Validation tables created")
	return nil
}

func runValidation(ctx context.Context, in io.Reader, out io.Writer, log *logger.Logger, validations service.ValidationService) error {
	if len(runResourceIDs) > 0 {
		async := true
		for _, id := range runResourceIDs {
			if err := validations.Run(ctx, service.RunParam{ResourceID: id, Async: &async}); err != nil {
				return fmt.Errorf("resource %s: %w", id, err)
			}
			log.Debug("Resource sent to the validation queue", zap.String("resource_id", id))
		}
		return nil
	}

	param := service.BatchParam{Query: runSearch}
	if len(runDatasetIDs) > 0 {
		param.DatasetIDs = runDatasetIDs
	}

	count, err := validations.CountDatasets(ctx, param)
	if err != nil {
		return err
	}
	if count == 0 {
		return service.ErrNoSuitableDatasets
	}
	if !runAssumeYes && !confirm(in, out, fmt.Sprintf("\nYou are about to start validation for %d datasets.\n Do you want to continue?", count)) {
		return errors.New("Command aborted by user")
	}

	output, err := validations.RunBatch(ctx, param)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, output)
	return nil
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func writeReport(ctx context.Context, out io.Writer, reports service.ReportService) error {
	output := reportOutput
	if output == defaultReportFile && reportFull {
		output = "validation_errors_report_full.csv"
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	summary, err := reports.Report(ctx, f, reportFull)
	if err != nil {
		return err
	}
	summary.Output = output
	fmt.Fprint(out, summary.String())
	return nil
}
