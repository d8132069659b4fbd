// Package formatting converts finished products out of the internal ESPA
// raw binary format.
package formatting

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/djzelenak/espa-worker/command"
)

// Formats the converters understand
const (
	FormatENVI    = "envi"
	FormatGTiff   = "gtiff"
	FormatHDFEOS2 = "hdf-eos2"
	FormatNetCDF  = "netcdf"
)

type converter struct {
	program    string
	outputFlag string
	outputName func(base string) string
	xmlSuffix  string
	leftovers  string
}

var fromENVI = map[string]converter{
	FormatGTiff: {
		program:    "convert_espa_to_gtif",
		outputFlag: "--gtif",
		outputName: func(base string) string { return base },
		xmlSuffix:  "_gtif.xml",
		leftovers:  "*.tfw",
	},
	FormatHDFEOS2: {
		program:    "convert_espa_to_hdf",
		outputFlag: "--hdf",
		outputName: func(base string) string { return base + ".hdf" },
		xmlSuffix:  "_hdf.xml",
		// Present when every band in the HDF has the same resolution
		leftovers: "*.hdf.hdr",
	},
	FormatNetCDF: {
		program:    "convert_espa_to_netcdf",
		outputFlag: "--netcdf",
		outputName: func(base string) string { return base + ".nc" },
		xmlSuffix:  "_nc.xml",
	},
}

// Reformat converts the products described by xmlName, a file in workDir,
// from inputFormat to outputFormat. The source bands are deleted by the
// converter and the converter's metadata file takes the place of xmlName.
func Reformat(ctx context.Context, runner command.Runner, logger *zap.Logger, xmlName, workDir, inputFormat, outputFormat string) error {
	if inputFormat == outputFormat {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conv, ok := fromENVI[outputFormat]
	if inputFormat != FormatENVI || !ok {
		return errors.Errorf("Unsupported reformat combination (%s, %s)", inputFormat, outputFormat)
	}

	base := strings.TrimSuffix(xmlName, ".xml")
	output, err := runner.Run(ctx, workDir, conv.program, "--del_src_files",
		"--xml", xmlName, conv.outputFlag, conv.outputName(base))
	if len(output) > 0 {
		logger.Info(output)
	}
	if err != nil {
		return err
	}

	if err := os.Rename(filepath.Join(workDir, base+conv.xmlSuffix), filepath.Join(workDir, xmlName)); err != nil {
		return errors.WithStack(err)
	}

	if conv.leftovers == "" {
		return nil
	}
	leftovers, err := filepath.Glob(filepath.Join(workDir, conv.leftovers))
	if err != nil {
		return errors.WithStack(err)
	}
	var errs error
	for _, leftover := range leftovers {
		logger.Info("Removing " + filepath.Base(leftover))
		errs = multierr.Append(errs, errors.WithStack(os.Remove(leftover)))
	}
	return errs
}
