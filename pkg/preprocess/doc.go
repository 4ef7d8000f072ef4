// Package preprocess prepares sample points for model fitting.
//
// The steps run in a fixed order: Reproject moves the samples into the
// raster's CRS, FilterBounds drops samples outside the raster extent,
// SampleRaster reads the band values under every sample, Normalize fixes the
// sign convention and depth window of the target column, and Split partitions
// the result into train and test rows. Every step returns a new value and
// leaves its input untouched.
package preprocess
