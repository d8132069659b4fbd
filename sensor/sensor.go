// Package sensor extracts the information embedded in ESPA product IDs.
package sensor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrProductNotImplemented is returned for product IDs no processor supports.
var ErrProductNotImplemented = errors.New("product not implemented")

// Sensor codes, as the product IDs start
const (
	LT04SensorCode = "LT04"
	LT05SensorCode = "LT05"
	LE07SensorCode = "LE07"
	LT08SensorCode = "LT08"
	LC08SensorCode = "LC08"
	LO08SensorCode = "LO08"

	TerraSensorCode = "MOD"
	AquaSensorCode  = "MYD"
	VIIRSSensorCode = "VNP"

	// Sentinel-2B did not exist prior to the new ESA formatting
	Sentinel2L1OldID = "S2A"
	Sentinel2L1NewID = "L1C"
	Sentinel2AESPA   = "S2A"
	Sentinel2BESPA   = "S2B"
)

const (
	landsatCollectionIDLength = 40
	modisCollectionIDLength   = 41
	viirsCollectionIDLength   = 41
)

// PixelSize is a default pixel size in both supported units.
type PixelSize struct {
	Meters float64
	DD     float64
}

// For returns the size in the given units ("meters" or "dd").
func (p PixelSize) For(units string) (float64, bool) {
	switch units {
	case "meters":
		return p.Meters, true
	case "dd":
		return p.DD, true
	}
	return 0, false
}

var defaultPixelSizes = map[string]PixelSize{
	"09A1": {500, 0.00449155},
	"09GA": {500, 0.00449155},
	"09GQ": {250, 0.002245775},
	"09Q1": {250, 0.002245775},
	"11A1": {1000, 0.0089831},
	"13Q1": {250, 0.002245775},
	"13A3": {1000, 0.0089831},
	"13A2": {1000, 0.0089831},
	"13A1": {500, 0.00449155},
	"LC08": {30, 0.0002695},
	"LO08": {30, 0.0002695},
	"LT08": {30, 0.0002695},
	"LE07": {30, 0.0002695},
	"LT05": {30, 0.0002695},
	"LT04": {30, 0.0002695},
	"S2A":  {10, 0.0008983},
	"S2B":  {10, 0.0008983},
}

// Info is what a product ID tells us about the acquisition.
type Info struct {
	ProductPrefix    string
	DateAcquired     time.Time
	SensorName       string
	DefaultPixelSize PixelSize
	Horizontal       string
	Vertical         string
	Path             string
	Row              string
	Tile             string
}

type parser struct {
	pattern *regexp.Regexp
	parse   func(string) (Info, error)
}

// Patterns are matched against the lower-cased ID and anchored at the start.
func newParser(pattern string, parse func(string) (Info, error)) parser {
	return parser{pattern: regexp.MustCompile(`^(?:` + pattern + `)`), parse: parse}
}

var (
	landsatParsers = []parser{
		newParser(`^lt04_[a-z0-9]{4}_\d{6}_\d{8}_\d{8}_\d{2}_[a-z0-9]{2}$`, landsatInfo),
		newParser(`^lt05_[a-z0-9]{4}_\d{6}_\d{8}_\d{8}_\d{2}_[a-z0-9]{2}$`, landsatInfo),
		newParser(`^le07_[a-z0-9]{4}_\d{6}_\d{8}_\d{8}_\d{2}_[a-z0-9]{2}$`, landsatInfo),
		newParser(`^lc08_[a-z0-9]{4}_\d{6}_\d{8}_\d{8}_\d{2}_[a-z0-9]{2}$`, landsatInfo),
		newParser(`^lo08_[a-z0-9]{4}_\d{6}_\d{8}_\d{8}_\d{2}_[a-z0-9]{2}$`, landsatInfo),
	}

	modisParsers = []parser{
		newParser(`^(mod|myd)(09a1|09ga|09gq|09q1|11a1|13a1|13a2|13a3|13q1)\.a\d{7}\.h\d{2}v\d{2}\.00[56]\.\d{13}$`, modisInfo),
	}

	viirsParsers = []parser{
		newParser(`^vnp09ga\.a\d{7}\.h\d{2}v\d{2}\.00[1]\.\d{13}$`, viirsInfo),
	}

	sentinelParsers = []parser{
		newParser(`s2a_\w{3}_[a-z0-9]{3}_[a-z0-9]{6}_\d{8}_\d{8}`, sentinel2Info),
		newParser(`s2b_\w{3}_[a-z0-9]{3}_[a-z0-9]{6}_\d{8}_\d{8}`, sentinel2Info),
		// M2M input IDs, new and old ESA formatting, e.g.
		// S2A_OPER_MSI_L1C_TL_SGS__20151224T003938_20151224T053341_A002630_T55MDN_N02_01_01
		newParser(`^l1c_{1}\w{1}\d{2}\w{3}_{1}\w{1}\d{6}_{1}\d{8}\w{1}\d{6}|s2[a,b]{1}_{1}\w{4}_{1}\w{3}_{1}\w{1}\d{1}\w{1}_{1}\w{2}_{1}\w{3}_{2}\d{8}\w{1}\d{6}_{1}\d{8}\w{1}\d{6}_{1}\w{1}\d{6}_{1}\w{1}\d{2}\w{3}_{1}\w{1}\d{2}_{1}\d{2}_{1}\d{2}$`, sentinel2OriginalInfo),
	}
)

var memory = struct {
	sync.Mutex
	infos map[string]Info
}{infos: make(map[string]Info)}

// Lookup returns the sensor information for a product ID. The ID may be a
// filename that starts with the product ID; only the ID part is used and
// results are remembered per ID.
func Lookup(productID string) (Info, error) {
	id := strings.TrimSpace(productID)

	switch {
	case IsLandsat(id):
		id = truncate(id, landsatCollectionIDLength)
	case IsModis(id):
		id = truncate(id, modisCollectionIDLength)
	case IsVIIRS(id):
		id = truncate(id, viirsCollectionIDLength)
	case IsSentinel2(id):
	default:
		return Info{}, errors.Wrapf(ErrProductNotImplemented, "[%s] is not a supported product", id)
	}

	memory.Lock()
	defer memory.Unlock()

	if info, ok := memory.infos[id]; ok {
		return info, nil
	}
	info, err := parse(id)
	if err != nil {
		return Info{}, err
	}
	memory.infos[id] = info
	return info, nil
}

func truncate(id string, length int) string {
	if len(id) > length {
		return id[:length]
	}
	return id
}

func parse(productID string) (Info, error) {
	var parsers []parser
	switch {
	case IsLandsat(productID):
		parsers = landsatParsers
	case IsModis(productID):
		parsers = modisParsers
	case IsVIIRS(productID):
		parsers = viirsParsers
	case IsSentinel2(productID):
		parsers = sentinelParsers
	}

	testID := strings.ToLower(productID)
	for _, p := range parsers {
		if p.pattern.MatchString(testID) {
			return p.parse(productID)
		}
	}
	return Info{}, errors.Wrapf(ErrProductNotImplemented, "[%s] is not a supported Product ID format", productID)
}

// LT05_L1TP_038038_19950624_20160302_01_T1
func landsatInfo(productID string) (Info, error) {
	parts := strings.Split(productID, "_")
	if len(parts) != 7 {
		return Info{}, errors.Wrapf(ErrProductNotImplemented, "[%s] is not a Landsat collection ID", productID)
	}
	sensorCode, pathRow, dateAcq, collection, tier := parts[0], parts[2], parts[3], parts[5], parts[6]

	acquired, err := time.Parse("20060102", dateAcq)
	if err != nil {
		return Info{}, errors.Wrapf(err, "acquisition date of %s", productID)
	}

	size, ok := defaultPixelSizes[strings.ToUpper(sensorCode)]
	if !ok {
		return Info{}, errors.Wrapf(ErrProductNotImplemented, "no default pixel size for %s", sensorCode)
	}

	info := Info{
		ProductPrefix:    sensorCode + pathRow + dateAcq + collection + tier,
		DateAcquired:     acquired,
		DefaultPixelSize: size,
		Path:             pathRow[0:3],
		Row:              pathRow[3:],
	}

	switch {
	case IsLandsat4(productID):
		info.SensorName = "L4"
	case IsLandsat5(productID):
		info.SensorName = "L5"
	case IsLandsat7(productID):
		info.SensorName = "L7"
	case IsLandsat8(productID):
		info.SensorName = "L8"
	}
	return info, nil
}

// MOD09GQ.A2000072.h02v09.005.2008237032813
func tileInfo(productID string) (Info, error) {
	parts := strings.Split(productID, ".")
	if len(parts) != 5 {
		return Info{}, errors.Wrapf(ErrProductNotImplemented, "[%s] is not a tiled product ID", productID)
	}
	shortName := parts[0]

	acquired, err := time.Parse("2006002", parts[1][1:])
	if err != nil {
		return Info{}, errors.Wrapf(err, "acquisition date of %s", productID)
	}

	horizontal := parts[2][1:3]
	vertical := parts[2][4:6]

	collection, err := strconv.Atoi(parts[3])
	if err != nil {
		return Info{}, errors.Wrapf(err, "collection of %s", productID)
	}

	size, ok := defaultPixelSizes[strings.ToUpper(shortName[3:])]
	if !ok {
		return Info{}, errors.Wrapf(ErrProductNotImplemented, "no default pixel size for %s", shortName)
	}

	return Info{
		ProductPrefix: fmt.Sprintf("%sh%sv%s%04d%03d%03d",
			shortName, horizontal, vertical, acquired.Year(), acquired.YearDay(), collection),
		DateAcquired:     acquired,
		DefaultPixelSize: size,
		Horizontal:       horizontal,
		Vertical:         vertical,
	}, nil
}

func modisInfo(productID string) (Info, error) {
	info, err := tileInfo(productID)
	if err != nil {
		return info, err
	}
	switch {
	case IsTerra(productID):
		info.SensorName = "Terra"
	case IsAqua(productID):
		info.SensorName = "Aqua"
	}
	return info, nil
}

// VNP09GA.A2019059.H30V06.001.2019061021144
func viirsInfo(productID string) (Info, error) {
	info, err := tileInfo(productID)
	if err != nil {
		return info, err
	}
	info.SensorName = "VIIRS"
	return info, nil
}

// S2A_MSI_L1C_T16TDS_20190723_20190723, the ESPA formatted name
func sentinel2Info(productID string) (Info, error) {
	parts := strings.Split(productID, "_")
	if len(parts) != 6 {
		return Info{}, errors.Wrapf(ErrProductNotImplemented, "[%s] is not an ESPA Sentinel-2 ID", productID)
	}
	sensorCode, sensor, procLevel, tile, dateAcq := parts[0], parts[1], parts[2], parts[3], parts[4]

	acquired, err := time.Parse("20060102", dateAcq)
	if err != nil {
		return Info{}, errors.Wrapf(err, "acquisition date of %s", productID)
	}

	size, ok := defaultPixelSizes[strings.ToUpper(sensorCode)]
	if !ok {
		return Info{}, errors.Wrapf(ErrProductNotImplemented, "no default pixel size for %s", sensorCode)
	}

	info := Info{
		ProductPrefix:    sensorCode + sensor + procLevel + tile + dateAcq,
		DateAcquired:     acquired,
		DefaultPixelSize: size,
		Tile:             tile,
	}
	switch {
	case strings.HasPrefix(strings.ToUpper(productID), Sentinel2BESPA):
		info.SensorName = "SENTINEL-2B"
	case IsSentinel2L1Old(productID):
		info.SensorName = "SENTINEL-2A"
	case IsSentinel2L1New(productID):
		info.SensorName = "SENTINEL-2B"
	}
	return info, nil
}

// sentinel2OriginalInfo validates IDs as they arrive from M2M, before the
// ESPA formatted ID exists. The values are fillers and only the pixel size
// is meaningful.
func sentinel2OriginalInfo(productID string) (Info, error) {
	acquired, _ := time.Parse("20060102", "19000101")
	return Info{
		ProductPrefix:    "S2AMSIL1CTTTXXX19000101",
		DateAcquired:     acquired,
		SensorName:       "S2A",
		DefaultPixelSize: defaultPixelSizes["S2A"],
		Tile:             "TTTXXX",
	}, nil
}

func hasPrefix(id, prefix string) bool {
	return strings.HasPrefix(strings.ToUpper(id), prefix)
}

func IsLandsat4(id string) bool { return hasPrefix(id, LT04SensorCode) }
func IsLandsat5(id string) bool { return hasPrefix(id, LT05SensorCode) }
func IsLandsat7(id string) bool { return hasPrefix(id, LE07SensorCode) }
func IsLT08(id string) bool     { return hasPrefix(id, LT08SensorCode) }
func IsLC08(id string) bool     { return hasPrefix(id, LC08SensorCode) }
func IsLO08(id string) bool     { return hasPrefix(id, LO08SensorCode) }

func IsLandsat8(id string) bool { return IsLC08(id) || IsLO08(id) || IsLT08(id) }

func IsLandsat(id string) bool {
	return IsLandsat8(id) || IsLandsat7(id) || IsLandsat5(id) || IsLandsat4(id)
}

func IsTerra(id string) bool { return hasPrefix(id, TerraSensorCode) }
func IsAqua(id string) bool  { return hasPrefix(id, AquaSensorCode) }
func IsModis(id string) bool { return IsTerra(id) || IsAqua(id) }
func IsVIIRS(id string) bool { return hasPrefix(id, VIIRSSensorCode) }

func IsSentinel2L1Old(id string) bool { return hasPrefix(id, Sentinel2L1OldID) }
func IsSentinel2L1New(id string) bool { return hasPrefix(id, Sentinel2L1NewID) }

// IsSentinel2 matches both the ESPA and the ESA naming.
func IsSentinel2(id string) bool {
	return IsSentinel2L1Old(id) || IsSentinel2L1New(id) ||
		hasPrefix(id, Sentinel2AESPA) || hasPrefix(id, Sentinel2BESPA)
}
