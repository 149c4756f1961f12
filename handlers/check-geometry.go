package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/twpayne/go-geos"
)

type Error struct {
	Ref          feature.ID `json:"ref"`
	ErrorMessage string     `json:"errorMessage"`
}

type validation struct {
	err      *Error
	repaired []byte
}

// CheckGeometry validates every geometry of src in parallel and returns one
// Error per feature that is missing, undecodable or invalid. With repair set,
// it also returns the features with invalid polygons made valid; features
// that cannot be repaired are left out.
func CheckGeometry(src feature.Source, repair bool, workers int, log logrus.FieldLogger) ([]Error, []feature.Feature) {
	var features []feature.Feature
	for f := range src.Features(feature.Request{}) {
		features = append(features, f)
	}

	processor := utils.NewParallelProcessor(workers, log)
	contexts := make([]*geos.Context, processor.NumWorkers)
	for i := range contexts {
		contexts[i] = geos.NewContext()
	}

	results := utils.ProcessBatch(processor, features, func(workerID int, f feature.Feature) validation {
		return validate(contexts[workerID], f, repair)
	}, "Validating geometries")

	var (
		errs     []Error
		repaired []feature.Feature
	)
	for i, res := range results {
		if res.err != nil {
			errs = append(errs, *res.err)
		}
		if repair && res.repaired != nil {
			repaired = append(repaired, features[i].WithGeometry(res.repaired))
		}
	}
	log.WithFields(logrus.Fields{"features": len(features), "invalid": len(errs)}).Info("geometry check complete")
	return errs, repaired
}

func validate(ctx *geos.Context, f feature.Feature, repair bool) (res validation) {
	fail := func(msg string) validation {
		return validation{err: &Error{Ref: f.ID, ErrorMessage: msg}}
	}
	if !f.HasGeometry() {
		return fail("no geometry")
	}
	g, err := ctx.NewGeomFromWKB(f.Geometry)
	if err != nil {
		return fail(err.Error())
	}
	defer func() {
		if r := recover(); r != nil {
			res = fail(cast.ToString(r))
		}
	}()

	if g.IsValid() {
		return validation{repaired: f.Geometry}
	}
	res = fail(g.IsValidReason())
	if !repair {
		return res
	}

	fixed := g.MakeValidWithParams(geos.MakeValidStructure, geos.MakeValidDiscardCollapsed)
	if feature.IsPolygonal(f) {
		var ok bool
		if fixed, ok = utils.ToPolygonal(ctx, fixed, utils.IsMulti(g)); !ok {
			return res
		}
	}
	res.repaired = fixed.ToWKB()
	return res
}

type checkResponse struct {
	Errors []Error         `json:"errors"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (s *Server) checkGeometry(w http.ResponseWriter, r *http.Request) {
	log := s.logger(r)
	form, err := utils.ReadMultiPartForm(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	src, err := utils.ReadGeoJSON(layerName(form.InputName, "input"), form.Input, form.Properties.PrimaryKeys...)
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	repair := cast.ToBool(form.Properties.Params["repair"])

	errs, repaired := CheckGeometry(src, repair, s.workers, log)
	resp := checkResponse{Errors: errs}
	if resp.Errors == nil {
		resp.Errors = []Error{}
	}
	if repair {
		out := feature.NewMemorySink()
		out.Open(src.Fields(), src.CRS())
		for _, f := range repaired {
			out.AddFeature(f)
		}
		if resp.Result, err = encodeGeoJSON(out); err != nil {
			sendError(w, http.StatusInternalServerError, err)
			return
		}
	}
	sendJSON(w, http.StatusOK, resp)
}
