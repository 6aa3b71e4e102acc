package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"cropcast/internal/config"
	"cropcast/internal/loader"
	"cropcast/internal/models"
	"cropcast/internal/services"
	"cropcast/pkg/logging"
	"cropcast/pkg/metrics"
)

// options holds the flags shared by every subcommand
type options struct {
	cfgFile  string
	workbook string
	output   string
	debug    bool

	params selection
}

// selection holds the analytics flags; unset flags fall back to the
// service defaults
type selection struct {
	crop    string
	yearMin int
	yearMax int
	metric  string
	delta   float64
	window  int
	horizon int
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "cropcast",
		Short:         "CropCast: yield analytics over GYGA survey workbooks",
		Long:          `CropCast reads a GYGA yield-gap workbook and reports yield trends, correlations, climate-zone pivots, temperature impact, trend forecasts and risk advice for a crop and year range.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is cropcast.yaml in . or ./config)")
	root.PersistentFlags().StringVarP(&opts.workbook, "workbook", "w", "", "survey workbook (default is data.workbook_path)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "yaml", "output format: yaml or json")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(newParametersCmd(opts))
	root.AddCommand(newAnalyzeCmd(opts))
	root.AddCommand(newExportCmd(opts))
	return root
}

// addSelectionFlags registers the parameter flags on cmd
func addSelectionFlags(cmd *cobra.Command, s *selection) {
	f := cmd.Flags()
	f.StringVar(&s.crop, "crop", "", "crop to analyse (default: first crop)")
	f.IntVar(&s.yearMin, "year-min", 0, "first harvest year (default: earliest)")
	f.IntVar(&s.yearMax, "year-max", 0, "last harvest year (default: latest)")
	f.StringVar(&s.metric, "metric", "", "yield metric: YP, YA or YW")
	f.Float64Var(&s.delta, "delta", 0, "simulated temperature increase in °C")
	f.IntVar(&s.window, "window", 0, "moving-average window in years")
	f.IntVar(&s.horizon, "horizon", 0, "number of years to forecast")
}

// resolve overlays the flags the user set on the defaults
func (s selection) resolve(cmd *cobra.Command, defaults models.Parameters) models.Parameters {
	p := defaults
	f := cmd.Flags()
	if f.Changed("crop") {
		p.Crop = s.crop
	}
	if f.Changed("year-min") {
		p.YearMin = s.yearMin
	}
	if f.Changed("year-max") {
		p.YearMax = s.yearMax
	}
	if f.Changed("metric") {
		p.YieldMetric = s.metric
	}
	if f.Changed("delta") {
		p.TemperatureDelta = s.delta
	}
	if f.Changed("window") {
		p.MAWindow = s.window
	}
	if f.Changed("horizon") {
		p.Horizon = s.horizon
	}
	return p
}

// openService loads the workbook and prepares an analytics service over it
func openService(ctx context.Context, opts *options, stderr io.Writer) (*services.AnalyticsService, error) {
	cfg, err := config.Load(opts.cfgFile)
	if err != nil {
		return nil, err
	}
	workbook := opts.workbook
	if workbook == "" {
		workbook = cfg.Data.WorkbookPath
	}

	level := logging.WarnLevel
	if opts.debug {
		level = logging.DebugLevel
	}
	logger := logging.NewStructuredLogger("cropcast-cli", "1.0.0", level)
	logger.SetOutput(stderr)

	source := &services.WorkbookSource{Loader: loader.New(cfg.Data.Sheets(), logger), Path: workbook}
	m := metrics.NewCollector("cropcast_cli", prometheus.NewRegistry())
	return services.NewAnalyticsService(ctx, source, cfg.Analytics, logger, m)
}

// render writes v as YAML or JSON
func render(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
}
