// Package report formats the plain-text summary of a prediction run.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"satbathy/pkg/pipeline"
)

// Report collects what the summary needs besides the run result.
type Report struct {
	Version     string
	RasterPath  string
	SamplesPath string

	// MedianFilter is the window size applied before export, 0 when off
	MedianFilter int

	Result *pipeline.Result

	// Exports lists the files written for the run
	Exports []Export
}

// Export is one output file.
type Export struct {
	Kind string
	Path string
}

// Write renders the report to w.
func (r *Report) Write(w io.Writer) error {
	res := r.Result
	if res == nil {
		return fmt.Errorf("report has no result")
	}
	p := res.Processing

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	section := func(title string) {
		fmt.Fprintf(tw, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
	}

	fmt.Fprintf(tw, "Satellite Derived Bathymetry %s\n", r.Version)
	fmt.Fprintf(tw, "Run:\t%s\n", res.RunID)
	fmt.Fprintf(tw, "Processed:\t%s\n", lastMark(res.Timeline).Format(time.RFC3339))

	section("Input")
	fmt.Fprintf(tw, "Raster:\t%s\n", orDash(r.RasterPath))
	fmt.Fprintf(tw, "Samples:\t%s\n", orDash(r.SamplesPath))
	fmt.Fprintf(tw, "Depth attribute:\t%s\n", p.DepthLabel)
	if p.LimitEnabled {
		fmt.Fprintf(tw, "Depth limit:\t%g to %g\n", p.LimitUpper, p.LimitLower)
	} else {
		fmt.Fprintf(tw, "Depth limit:\tdisabled\n")
	}
	fmt.Fprintf(tw, "Auto negative sign:\t%s\n", autoNegative(p.AutoNegativeSign, res.Negated))
	fmt.Fprintf(tw, "Exclude out of bounds:\t%t\n", p.ExcludeOutOfBounds)
	fmt.Fprintf(tw, "Samples reprojected:\t%t\n", res.Reprojected)

	section("Samples")
	total, train, test := res.TotalSamples, len(res.Train), len(res.Test)
	fmt.Fprintf(tw, "Total samples:\t%d\n", total)
	fmt.Fprintf(tw, "Used samples:\t%d\t(%s of total)\n", res.UsedSamples(), percent(res.UsedSamples(), total))
	fmt.Fprintf(tw, "Train data:\t%d\t(%s of used)\n", train, percent(train, res.UsedSamples()))
	fmt.Fprintf(tw, "Test data:\t%d\t(%s of used)\n", test, percent(test, res.UsedSamples()))

	section("Method")
	fmt.Fprintf(tw, "Method:\t%s\n", p.Method)
	for _, param := range res.MethodParams {
		fmt.Fprintf(tw, "  %s:\t%s\n", param.Name, param.Value)
	}
	fmt.Fprintf(tw, "Train fraction:\t%g\n", p.TrainFraction)
	fmt.Fprintf(tw, "Random seed:\t%d\n", p.Parallelism.RandomSeed)
	fmt.Fprintf(tw, "Backend:\t%s\n", p.Parallelism.Backend)
	fmt.Fprintf(tw, "Workers:\t%d\t(%d effective)\n", p.Parallelism.Workers, p.Parallelism.EffectiveWorkers())

	section("Validation")
	fmt.Fprintf(tw, "RMSE:\t%.4f\n", res.Metrics.RMSE)
	fmt.Fprintf(tw, "MAE:\t%.4f\n", res.Metrics.MAE)
	fmt.Fprintf(tw, "R²:\t%.4f\n", res.Metrics.R2)

	section("Runtime")
	for _, d := range res.Timeline.StageDurations() {
		fmt.Fprintf(tw, "%s\t%s\n", strings.TrimSuffix(d.Label, "..."), d.Duration.Round(time.Microsecond))
	}
	fmt.Fprintf(tw, "Total\t%s\n", res.Timeline.Total().Round(time.Microsecond))

	section("Output")
	pw, ph := res.Raster().PixelSize()
	fmt.Fprintf(tw, "CRS:\t%s\n", orDash(res.CRS))
	fmt.Fprintf(tw, "Dimensions:\t%d x %d\n", res.Width, res.Height)
	fmt.Fprintf(tw, "Pixel size:\t%g x %g\n", pw, ph)
	if r.MedianFilter > 0 {
		fmt.Fprintf(tw, "Median filter:\t%d x %d\n", r.MedianFilter, r.MedianFilter)
	}
	for _, e := range r.Exports {
		fmt.Fprintf(tw, "%s saved to:\t%s\n", e.Kind, e.Path)
	}

	return tw.Flush()
}

// String renders the report, returning the error text when rendering fails.
func (r *Report) String() string {
	var b strings.Builder
	if err := r.Write(&b); err != nil {
		return err.Error()
	}
	return b.String()
}

// Save writes the report to path.
func (r *Report) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating report: %w", err)
	}
	defer f.Close()
	if err := r.Write(f); err != nil {
		return fmt.Errorf("error writing report: %w", err)
	}
	return f.Close()
}

func lastMark(t pipeline.Timeline) time.Time {
	if len(t.Marks) == 0 {
		return time.Time{}
	}
	return t.Marks[len(t.Marks)-1].Time
}

func autoNegative(enabled, negated bool) string {
	switch {
	case !enabled:
		return "disabled"
	case negated:
		return "enabled, depths negated"
	default:
		return "enabled, depths kept"
	}
}

func percent(part, whole int) string {
	if whole == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", 100*float64(part)/float64(whole))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
