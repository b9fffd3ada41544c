package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/patient-progress-api/internal/catalog"
	"github.com/noah-isme/patient-progress-api/internal/dto"
	"github.com/noah-isme/patient-progress-api/internal/repository"
	"github.com/noah-isme/patient-progress-api/internal/service"
	"github.com/noah-isme/patient-progress-api/pkg/config"
	"github.com/noah-isme/patient-progress-api/pkg/database"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	source      string
	csvPath     string
	catalogPath string
}

type app struct {
	patients    *service.PatientService
	comparisons *service.ComparisonService
	db          *sqlx.DB
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "progressctl",
		Short:         "Inspect patients and compare assessment periods",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.source, "source", "", "dataset source: csv|sheets|postgres (defaults to DATASET_SOURCE)")
	root.PersistentFlags().StringVar(&opts.csvPath, "csv", "", "sheet export to read with the csv source")
	root.PersistentFlags().StringVar(&opts.catalogPath, "catalog", "", "catalog file (defaults to CATALOG_PATH or the built-in catalog)")

	root.AddCommand(newPatientsCmd(opts))
	root.AddCommand(newPeriodsCmd(opts))
	root.AddCommand(newCompareCmd(opts))
	root.AddCommand(newClassifyCmd(opts))
	root.AddCommand(newCatalogCmd(opts))
	return root
}

func loadCatalog(opts *options) (*catalog.Catalog, error) {
	path := opts.catalogPath
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		path = cfg.Catalog.Path
	}
	return catalog.Load(path)
}

func loadApp(ctx context.Context, opts *options) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.source != "" {
		cfg.Dataset.Source = opts.source
	}
	if opts.csvPath != "" {
		cfg.Dataset.CSVPath = opts.csvPath
		if opts.source == "" {
			cfg.Dataset.Source = config.SourceCSV
		}
	}
	if opts.catalogPath != "" {
		cfg.Catalog.Path = opts.catalogPath
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	out := &app{}
	if cfg.Dataset.Source == config.SourcePostgres {
		out.db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
	}

	logr := zap.NewNop()
	source, err := repository.OpenSource(ctx, cfg, out.db, catalog.NewHolder(cat), logr)
	if err != nil {
		out.Close()
		return nil, err
	}
	datasets := service.NewDatasetService(source, nil, nil, logr, cfg.Dataset.ID, cfg.Dataset.CacheTTL)
	out.patients = service.NewPatientService(datasets, nil, logr)
	out.comparisons = service.NewComparisonService(datasets, cat, nil, nil, logr)
	return out, nil
}

func newPatientsCmd(opts *options) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "List patients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			patients, _, _, err := a.patients.List(cmd.Context(), dto.PatientQuery{Search: search, Limit: 200})
			if err != nil {
				return err
			}
			if len(patients) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no patients")
				return nil
			}
			return renderPatients(cmd.OutOrStdout(), patients)
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by id or name")
	return cmd
}

func newPeriodsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "periods <patient-id>",
		Short: "List the assessment periods of a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			periods, err := a.patients.Periods(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(fmt.Sprintf("%s (%s)", periods.PatientName, periods.PatientID)))
			for _, p := range periods.Periods {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "  "+p)
			}
			return nil
		},
	}
}

func newCompareCmd(opts *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compare <patient-id> <baseline> <follow-up>",
		Short: "Compare two assessment periods of a patient",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutput(output)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			report, err := a.comparisons.Compare(cmd.Context(), dto.CompareRequest{PatientID: args[0], Baseline: args[1], FollowUp: args[2]})
			if err != nil {
				return err
			}
			return renderReport(cmd.OutOrStdout(), report, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", string(outputTable), "output format: table|json|csv")
	return cmd
}

func newClassifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <delta>",
		Short: "Classify a single integer delta",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("delta must be an integer: %w", err)
			}
			cat, err := loadCatalog(opts)
			if err != nil {
				return err
			}
			resp := service.NewComparisonService(nil, cat, nil, nil, nil).Classify(delta)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", deltaStyle(delta).Render(strconv.Itoa(delta)), resp.Classification)
			return nil
		},
	}
}

func newCatalogCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "catalog", Short: "Catalog commands"}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a catalog file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok: version %s, %d items, %d buckets\n", cat.Version, len(cat.Items), len(cat.Buckets))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the active catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := loadCatalog(opts)
			if err != nil {
				return err
			}
			return renderCatalog(cmd.OutOrStdout(), cat)
		},
	})
	return cmd
}
