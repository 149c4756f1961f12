package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// maxFormMemory is the part of a multipart body kept in memory; larger
// uploads spill to temporary files.
const maxFormMemory = 64 << 20

// ErrMissingInput is returned when a request carries no input layer.
var ErrMissingInput = errors.New("missing input layer")

// MultipartResult holds the layers and parameters of a tool request.
type MultipartResult struct {
	Input       []byte
	InputName   string
	Overlay     []byte
	OverlayName string
	Properties  Properties
}

// Properties are the non-file form values.
type Properties struct {
	Params      map[string]any
	Format      string
	PrimaryKeys []string
}

// ReadMultiPartForm reads the "input" and optional "overlay" GeoJSON uploads.
// The "params" value is a JSON object of tool parameters, "format" picks the
// response encoding and "primary_keys" is a comma separated field list.
func ReadMultiPartForm(r *http.Request) (MultipartResult, error) {
	var result MultipartResult
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return result, fmt.Errorf("parsing multipart form: %w", err)
	}

	var err error
	result.Input, result.InputName, err = readFormFile(r.MultipartForm, "input")
	if err != nil {
		return result, err
	}
	if result.Input == nil {
		return result, ErrMissingInput
	}
	result.Overlay, result.OverlayName, err = readFormFile(r.MultipartForm, "overlay")
	if err != nil {
		return result, err
	}

	result.Properties.Params = map[string]any{}
	if raw := r.MultipartForm.Value["params"]; len(raw) > 0 && strings.TrimSpace(raw[0]) != "" {
		if err := json.Unmarshal([]byte(raw[0]), &result.Properties.Params); err != nil {
			return result, fmt.Errorf("parsing params: %w", err)
		}
	}
	if v := r.MultipartForm.Value["format"]; len(v) > 0 {
		result.Properties.Format = strings.ToLower(v[0])
	}
	if v := r.MultipartForm.Value["primary_keys"]; len(v) > 0 && v[0] != "" {
		for _, k := range strings.Split(v[0], ",") {
			result.Properties.PrimaryKeys = append(result.Properties.PrimaryKeys, strings.TrimSpace(k))
		}
	}
	return result, nil
}

func readFormFile(form *multipart.Form, key string) ([]byte, string, error) {
	headers := form.File[key]
	if len(headers) == 0 {
		return nil, "", nil
	}
	file, err := headers[0].Open()
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", key, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", key, err)
	}
	return data, headers[0].Filename, nil
}
