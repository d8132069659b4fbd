package processor

import (
	"github.com/pkg/errors"

	"github.com/djzelenak/espa-worker/model"
	"github.com/djzelenak/espa-worker/sensor"
)

// ErrNotImplemented is returned for products no processor handles
var ErrNotImplemented = errors.New("processor not implemented")

// GetInstance picks the processor for a request
func GetInstance(env Env, req *model.ProductRequest) (Processor, error) {
	if req.IsPlot() || req.ProductID == model.PlotProductID {
		return NewPlot(env, req)
	}

	id := req.ProductID
	if id == "" {
		id = req.Scene
	}

	switch {
	case sensor.IsLandsat4(id), sensor.IsLandsat5(id):
		return NewLandsat(env, req, InstrumentTM)
	case sensor.IsLandsat7(id):
		return NewLandsat(env, req, InstrumentETM)
	case sensor.IsLO08(id):
		return NewLandsat(env, req, InstrumentOLI)
	case sensor.IsLC08(id):
		return NewLandsat(env, req, InstrumentOLITIRS)
	case sensor.IsTerra(id):
		return NewModis(env, req, SatelliteTerra)
	case sensor.IsAqua(id):
		return NewModis(env, req, SatelliteAqua)
	case sensor.IsVIIRS(id):
		return NewVIIRS(env, req)
	case sensor.IsSentinel2(id):
		return NewSentinel(env, req)
	}
	return nil, errors.Wrapf(ErrNotImplemented, "A processor for [%s] has not been implemented", id)
}
