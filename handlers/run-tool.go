package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/bsaid97/go-geoprocessing/config"
	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/tools"
	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// RunResponse is the JSON answer to a tool request.
type RunResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Report tools.Report    `json:"report"`
}

func (s *Server) runTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("tool")
	log := s.logger(r).WithField("tool", name)

	form, err := utils.ReadMultiPartForm(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	layers, err := readLayers(form)
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	params, err := config.DecodeParams(form.Properties.Params)
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}

	sink := feature.NewMemorySink()
	tool, err := config.Build(name, layers, params, sink, tools.WithLogger(log), tools.WithWorkers(s.workers))
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}

	runErr := tool.Run(r.Context())
	report := tool.Report()
	log.WithFields(logrus.Fields{
		"outputs":         len(sink.Features()),
		"feature_errors":  len(report.FeatureErrors),
		"geometry_errors": len(report.GeometryErrors),
	}).Info("tool finished")
	if runErr != nil {
		log.WithError(runErr).Warn("run aborted")
		sendJSON(w, http.StatusUnprocessableEntity, RunResponse{Report: report})
		return
	}

	result, err := encodeGeoJSON(sink)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err)
		return
	}
	if form.Properties.Format != "zip" {
		sendJSON(w, http.StatusOK, RunResponse{Result: result, Report: report})
		return
	}

	reportYAML, err := yaml.Marshal(report)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err)
		return
	}
	zipData, err := utils.GenerateShapefileZip(name, result, sink.Features(), sink.Fields(), sink.CRS(),
		utils.ZipEntry{Name: name + "_report.yaml", Data: reportYAML})
	if err != nil {
		sendError(w, http.StatusInternalServerError, err)
		return
	}
	sendZip(w, name, zipData)
}

func readLayers(form utils.MultipartResult) (config.Layers, error) {
	var (
		l   config.Layers
		err error
	)
	l.Input, err = utils.ReadGeoJSON(layerName(form.InputName, "input"), form.Input, form.Properties.PrimaryKeys...)
	if err != nil {
		return l, fmt.Errorf("input: %w", err)
	}
	if form.Overlay != nil {
		l.Overlay, err = utils.ReadGeoJSON(layerName(form.OverlayName, "overlay"), form.Overlay, form.Properties.PrimaryKeys...)
		if err != nil {
			return l, fmt.Errorf("overlay: %w", err)
		}
	}
	return l, nil
}

func layerName(filename, fallback string) string {
	if filename == "" {
		return fallback
	}
	return filename
}

// encodeGeoJSON replays the collected features through a GeoJSON sink.
func encodeGeoJSON(src *feature.MemorySink) ([]byte, error) {
	var buf bytes.Buffer
	out := utils.NewGeoJSONSink(&buf)
	if err := out.Open(src.Fields(), src.CRS()); err != nil {
		return nil, err
	}
	var errs []error
	for _, f := range src.Features() {
		if err := out.AddFeature(f); err != nil {
			errs = append(errs, err)
		}
	}
	if err := out.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), errors.Join(errs...)
}
