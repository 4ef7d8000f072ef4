package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"satbathy/internal/models"
	"satbathy/pkg/config"
	"satbathy/pkg/pipeline"
	"satbathy/pkg/postprocess"
	"satbathy/pkg/rasterio"
	"satbathy/pkg/report"
	"satbathy/pkg/samples"
	"satbathy/pkg/visualization"
	"satbathy/pkg/workers"
)

type predictOptions struct {
	rasterFile  string
	samplesFile string
	configFile  string
	outputDir   string
}

func PredictCommand() *cobra.Command {
	var opts predictOptions
	var method string
	var depthLabel string
	var trainFraction float64
	var workerCount int
	var seed int64
	var limit bool
	var limitUpper float64
	var limitLower float64
	var median int
	var rasterFormat string
	var tableFormat string
	var samplesCRS string
	var previewRegion []int

	var cmd = &cobra.Command{
		Use:   "predict -r raster.yaml -s samples.csv [-c config.yaml] [-o outputDir]",
		Short: "Fits a depth model on the samples and predicts depth for every raster pixel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.configFile)
			if err != nil {
				return err
			}

			// flags given on the command line override the file
			flags := cmd.Flags()
			if flags.Changed("method") {
				cfg.Processing.Method = method
			}
			if flags.Changed("depth") {
				cfg.Processing.DepthLabel = depthLabel
			}
			if flags.Changed("train-fraction") {
				cfg.Processing.TrainFraction = trainFraction
			}
			if flags.Changed("workers") {
				cfg.Parallelism.Workers = workerCount
			}
			if flags.Changed("seed") {
				cfg.Parallelism.RandomSeed = seed
			}
			if flags.Changed("limit") {
				cfg.Limit.Enabled = limit
			}
			if flags.Changed("limit-upper") {
				cfg.Limit.Upper = limitUpper
			}
			if flags.Changed("limit-lower") {
				cfg.Limit.Lower = limitLower
			}
			if flags.Changed("median") {
				cfg.Output.MedianFilter.Enabled = median > 0
				if median > 0 {
					cfg.Output.MedianFilter.Size = median
				}
			}
			if flags.Changed("raster-format") {
				cfg.Output.RasterFormat = rasterFormat
			}
			if flags.Changed("table-format") {
				cfg.Output.TableFormat = tableFormat
			}
			if flags.Changed("samples-crs") {
				cfg.Samples.CRS = samplesCRS
			}
			if flags.Changed("preview-region") {
				cfg.Output.PreviewRegion = previewRegion
			}

			return predict(cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.rasterFile, "raster", "r", "", "raster header file")
	cmd.Flags().StringVarP(&opts.samplesFile, "samples", "s", "", "depth samples (.csv or .geojson)")
	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "satbathy.yaml", "configuration file, defaults are used when missing")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "output", "directory to write results to")

	cmd.Flags().StringVarP(&method, "method", "m", "rf", "regression method: knn, mlr, rf or svm")
	cmd.Flags().StringVarP(&depthLabel, "depth", "d", "depth", "sample attribute holding the measured depth")
	cmd.Flags().Float64VarP(&trainFraction, "train-fraction", "t", 0.75, "share of samples used for fitting")
	cmd.Flags().IntVarP(&workerCount, "workers", "w", -2, "worker count, negative counts back from the CPU count")
	cmd.Flags().Int64VarP(&seed, "seed", "x", 0, "random seed of the train/test split")
	cmd.Flags().BoolVarP(&limit, "limit", "", false, "restrict samples and predictions to the depth window")
	cmd.Flags().Float64VarP(&limitUpper, "limit-upper", "", 0, "upper bound of the depth window")
	cmd.Flags().Float64VarP(&limitLower, "limit-lower", "", -30, "lower bound of the depth window")
	cmd.Flags().IntVarP(&median, "median", "", 0, "median filter window size (default 3), 0 disables the filter")
	cmd.Flags().StringVarP(&rasterFormat, "raster-format", "", config.RasterFormatNative, "prediction raster format: native or ascii")
	cmd.Flags().StringVarP(&tableFormat, "table-format", "", config.TableFormatCSV, "train/test table format: csv or geojson")
	cmd.Flags().StringVarP(&samplesCRS, "samples-crs", "", samples.DefaultCRS, "CRS of CSV sample coordinates")
	cmd.Flags().IntSliceVarP(&previewRegion, "preview-region", "", nil, "crop the preview to col,row,width,height pixels")

	_ = cmd.MarkFlagRequired("raster")
	_ = cmd.MarkFlagRequired("samples")

	return cmd
}

func predict(cmd *cobra.Command, cfg *config.Config, opts predictOptions) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	proc, err := cfg.ToProcessing()
	if err != nil {
		return err
	}
	method, err := cfg.MethodConfig()
	if err != nil {
		return err
	}

	img, err := rasterio.Load(opts.rasterFile)
	if err != nil {
		return err
	}
	table, err := samples.Load(opts.samplesFile, samples.Options{
		XColumn: cfg.Samples.XColumn,
		YColumn: cfg.Samples.YColumn,
		CRS:     cfg.Samples.CRS,
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("raster", opts.rasterFile).
		Int("width", img.Width).
		Int("height", img.Height).
		Int("bands", img.Bands).
		Str("samples", opts.samplesFile).
		Int("points", table.Len()).
		Str("method", proc.Method.String()).
		Msg("inputs loaded")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	events := pipeline.NewPipeline(nil).Start(ctx, pipeline.Inputs{
		Raster:     img,
		Samples:    table,
		Processing: proc,
		Method:     method,
	})

	out := cmd.OutOrStdout()
	var result *pipeline.Result
	for e := range events {
		fmt.Fprintf(out, "%s  %s\n", e.Time.Format(time.TimeOnly), e.Label)
		switch e.Stage {
		case pipeline.StageDone:
			result = e.Result
		case pipeline.StageFailed:
			return e.Failure
		}
	}
	if result == nil {
		return fmt.Errorf("pipeline stopped without a result")
	}

	exports, err := writeOutputs(ctx, cfg, opts, result)
	if err != nil {
		return err
	}

	if cfg.Output.Report {
		rep := &report.Report{
			Version:     version,
			RasterPath:  opts.rasterFile,
			SamplesPath: opts.samplesFile,
			Result:      result,
			Exports:     exports,
		}
		if cfg.Output.MedianFilter.Enabled {
			rep.MedianFilter = cfg.Output.MedianFilter.Size
		}
		path := filepath.Join(opts.outputDir, baseName(opts, proc.Method)+"_report.txt")
		if err := rep.Save(path); err != nil {
			return err
		}
		fmt.Fprintln(out)
		if err := rep.Write(out); err != nil {
			return err
		}
	}

	log.Info().Str("dir", opts.outputDir).Int("files", len(exports)).Msg("results written")
	return nil
}

// writeOutputs exports the prediction raster, the train/test tables and the
// figures, returning what was written for the report.
func writeOutputs(ctx context.Context, cfg *config.Config, opts predictOptions, res *pipeline.Result) ([]report.Export, error) {
	base := filepath.Join(opts.outputDir, baseName(opts, res.Processing.Method))
	var exports []report.Export

	if cfg.Output.MedianFilter.Enabled {
		ctx, release := workers.Scope(ctx, res.Processing.Parallelism)
		filtered, err := postprocess.MedianFilter(ctx, res.Prediction, res.Width, res.Height, cfg.Output.MedianFilter.Size)
		release()
		if err != nil {
			return nil, err
		}
		res.Prediction = filtered
	}

	raster := res.Raster()
	switch cfg.Output.RasterFormat {
	case config.RasterFormatASCII:
		path := base + ".asc"
		if err := rasterio.WriteASCIIGrid(raster, path); err != nil {
			return nil, err
		}
		exports = append(exports, report.Export{Kind: "Raster", Path: path})
	default:
		path := base + ".yaml"
		if err := rasterio.WriteNative(raster, path); err != nil {
			return nil, err
		}
		exports = append(exports, report.Export{Kind: "Raster", Path: path})
	}

	bands := res.Dataset.BandNames
	depth := res.Processing.DepthLabel
	tables := []struct {
		kind  string
		table samples.ExportTable
	}{
		{"Train data", samples.TrainTable(bands, depth, res.Train)},
		{"Test data", samples.TestTable(bands, depth, res.Test)},
	}
	for _, t := range tables {
		stem := base + "_" + strings.ToLower(strings.Fields(t.kind)[0])
		var path string
		var err error
		switch cfg.Output.TableFormat {
		case config.TableFormatGeoJSON:
			path = stem + ".geojson"
			err = samples.WriteGeoJSON(path, t.table, res.CRS)
		default:
			path = stem + ".csv"
			err = samples.WriteCSV(path, t.table)
		}
		if err != nil {
			return nil, err
		}
		exports = append(exports, report.Export{Kind: t.kind, Path: path})
	}

	if cfg.Output.Preview {
		viewer, err := visualization.NewViewer(res.Prediction, res.Width, res.Height)
		if err != nil {
			return nil, err
		}
		if r := cfg.Output.PreviewRegion; len(r) == 4 {
			if viewer, err = viewer.Crop(r[0], r[1], r[2], r[3]); err != nil {
				return nil, fmt.Errorf("error cropping preview: %w", err)
			}
		}
		path := base + "_preview.png"
		if err := visualization.SavePreview(viewer.Preview(), path); err != nil {
			return nil, fmt.Errorf("error saving preview: %w", err)
		}
		exports = append(exports, report.Export{Kind: "Preview", Path: path})
	}

	if cfg.Output.Plot {
		path := base + "_scatter.png"
		err := visualization.SaveScatter(res.Test, visualization.ScatterOptions{
			Method: res.Processing.Method.String(),
			RMSE:   res.Metrics.RMSE,
			MAE:    res.Metrics.MAE,
			R2:     res.Metrics.R2,
		}, path)
		if err != nil {
			log.Warn().Err(err).Msg("scatter plot skipped")
		} else {
			exports = append(exports, report.Export{Kind: "Scatter plot", Path: path})
		}
	}

	for _, e := range exports {
		log.Debug().Str("kind", e.Kind).Str("path", e.Path).Msg("exported")
	}
	return exports, nil
}

// baseName derives output names from the raster file and the method.
func baseName(opts predictOptions, m models.Method) string {
	stem := strings.TrimSuffix(filepath.Base(opts.rasterFile), filepath.Ext(opts.rasterFile))
	return stem + "_" + m.Key()
}
