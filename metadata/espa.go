package metadata

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
	"github.com/pkg/errors"

	"github.com/djzelenak/espa-worker/command"
)

// Band is the part of an ESPA metadata band element the processors decide on
type Band struct {
	Product  string
	Name     string
	FileName string
}

// LoadBands reads every band described by an ESPA metadata file
func LoadBands(xmlPath string) ([]Band, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(xmlPath); err != nil {
		return nil, errors.Wrapf(err, "reading %s", xmlPath)
	}
	var bands []Band
	for _, element := range doc.FindElements("//bands/band") {
		bands = append(bands, bandOf(element))
	}
	return bands, nil
}

func bandOf(element *etree.Element) Band {
	band := Band{
		Product: element.SelectAttrValue("product", ""),
		Name:    element.SelectAttrValue("name", ""),
	}
	if file := element.SelectElement("file_name"); file != nil {
		band.FileName = strings.TrimSpace(file.Text())
	}
	return band
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}

// RemoveBands drops every band for which remove returns true. The band's
// .img and .hdr files are deleted and the metadata file is rewritten.
func RemoveBands(xmlPath string, remove func(Band) bool) ([]Band, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(xmlPath); err != nil {
		return nil, errors.Wrapf(err, "reading %s", xmlPath)
	}
	dir := filepath.Dir(xmlPath)

	var removed []Band
	for _, element := range doc.FindElements("//bands/band") {
		band := bandOf(element)
		if !remove(band) {
			continue
		}
		if band.FileName != "" {
			img := band.FileName
			if !filepath.IsAbs(img) {
				img = filepath.Join(dir, img)
			}
			if err := removeIfExists(img); err != nil {
				return removed, err
			}
			if err := removeIfExists(strings.Replace(img, ".img", ".hdr", 1)); err != nil {
				return removed, err
			}
		}
		element.Parent().RemoveChild(element)
		removed = append(removed, band)
	}

	if len(removed) > 0 {
		if err := doc.WriteToFile(xmlPath); err != nil {
			return removed, errors.Wrapf(err, "writing %s", xmlPath)
		}
	}
	return removed, nil
}

// Validate checks the metadata file against the ESPA schema with xmllint.
// Nothing is checked when the schema is not installed.
func Validate(ctx context.Context, runner command.Runner, schema, xmlPath string) error {
	if _, err := os.Stat(schema); err != nil {
		return nil
	}
	_, err := runner.Run(ctx, "", "xmllint", "--noout", "--schema", schema, xmlPath)
	return err
}
