package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cropcast/internal/analytics"
	"cropcast/internal/loader"
	"cropcast/internal/views"
)

func newParametersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "parameters",
		Short: "Show the crops, years and metrics available in the workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, views.NewBounds(svc.Bounds(), svc.Defaults()))
		},
	}
}

// componentViews maps --component values to report slices
var componentViews = map[string]func(*analytics.Report) interface{}{
	analytics.ComponentFilter:            func(r *analytics.Report) interface{} { return views.NewDataset(r.Filtered) },
	analytics.ComponentYieldTrends:       func(r *analytics.Report) interface{} { return views.NewSeriesList(r.YieldTrends) },
	analytics.ComponentCorrelation:       func(r *analytics.Report) interface{} { return views.NewMatrix(r.Correlation) },
	analytics.ComponentPivot:             func(r *analytics.Report) interface{} { return views.NewMatrix(r.Pivot) },
	analytics.ComponentImpact:            func(r *analytics.Report) interface{} { return views.NewSeries(r.Impact) },
	analytics.ComponentZoneTrends:        func(r *analytics.Report) interface{} { return views.NewSeriesList(r.ZoneTrends) },
	analytics.ComponentForecast:          func(r *analytics.Report) interface{} { return views.NewForecast(r.Forecast) },
	analytics.ComponentMovingAverage:     func(r *analytics.Report) interface{} { return views.NewSeries(r.MovingAverage) },
	analytics.ComponentRecommendation:    func(r *analytics.Report) interface{} { return views.NewRecommendation(r.Recommendation) },
	analytics.ComponentWaterProductivity: func(r *analytics.Report) interface{} { return views.NewWaterProductivity(r.WaterProductivity) },
}

func newAnalyzeCmd(opts *options) *cobra.Command {
	var component string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the analytics for one selection",
		Example: `  cropcast analyze --crop "Rainfed wheat" --year-min 2005 --year-max 2015 --delta 3
  cropcast analyze --component forecast --horizon 3 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var extract func(*analytics.Report) interface{}
			if component != "" {
				var ok bool
				if extract, ok = componentViews[component]; !ok {
					return fmt.Errorf("unknown component %q", component)
				}
			}

			svc, err := openService(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			report, err := svc.Analyze(cmd.Context(), opts.params.resolve(cmd, svc.Defaults()))
			if err != nil {
				return err
			}

			if extract == nil {
				return render(cmd.OutOrStdout(), opts.output, views.NewReport(report))
			}
			if issue, found := report.Issue(component); found {
				return fmt.Errorf("%s: %w", component, issue.Err)
			}
			return render(cmd.OutOrStdout(), opts.output, extract(report))
		},
	}
	addSelectionFlags(cmd, &opts.params)
	cmd.Flags().StringVar(&component, "component", "", "print only one component (e.g. forecast, pivot, correlation)")
	return cmd
}

func newExportCmd(opts *options) *cobra.Command {
	var out, sheet string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered rows of a selection to a new workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			svc, err := openService(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			report, err := svc.Analyze(cmd.Context(), opts.params.resolve(cmd, svc.Defaults()))
			if err != nil {
				return err
			}
			if err := loader.SaveDataset(out, sheet, report.Filtered); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d rows to %s\n", report.Filtered.Len(), out)
			return nil
		},
	}
	addSelectionFlags(cmd, &opts.params)
	cmd.Flags().StringVar(&out, "out", "", "destination .xlsx file")
	cmd.Flags().StringVar(&sheet, "sheet", "Filtered", "sheet name in the destination workbook")
	return cmd
}
