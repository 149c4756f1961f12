package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bsaid97/go-geoprocessing/config"
	"github.com/bsaid97/go-geoprocessing/tools"
	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

const parcels = `{"type":"FeatureCollection","features":[
	{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]},"properties":{"fid":1,"zone":"res"}},
	{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[10,0],[20,0],[20,10],[10,10],[10,0]]]},"properties":{"fid":2,"zone":"res"}},
	{"type":"Feature","geometry":null,"properties":{"fid":3,"zone":"com"}}
]}`

func writeInput(t *testing.T) (dir, input string) {
	t.Helper()
	dir = t.TempDir()
	input = filepath.Join(dir, "parcels.geojson")
	require.NoError(t, os.WriteFile(input, []byte(parcels), 0o644))
	return dir, input
}

func TestExecute(t *testing.T) {
	dir, input := writeInput(t)
	log, _ := test.NewNullLogger()
	c := config.Config{
		Tool:        "dissolve",
		Input:       input,
		Output:      filepath.Join(dir, "out.shp"),
		Report:      filepath.Join(dir, "report.yaml"),
		PrimaryKeys: []string{"fid"},
		Params:      config.Params{GroupBy: "field", GroupField: "zone"},
	}

	var progress bytes.Buffer
	require.NoError(t, execute(context.Background(), c, log, &bytes.Buffer{}, &progress))
	assert.Contains(t, progress.String(), "phase 1/1")

	out, err := utils.OpenLayer(c.Output)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())

	data, err := os.ReadFile(c.Report)
	require.NoError(t, err)
	var report tools.Report
	require.NoError(t, yaml.Unmarshal(data, &report))
	assert.Equal(t, "dissolve", report.Tool)
	assert.False(t, report.Aborted)
	// The feature without geometry is reported, not fatal.
	assert.Len(t, report.FeatureErrors, 1)
}

func TestExecute_Cancelled(t *testing.T) {
	dir, input := writeInput(t)
	log, _ := test.NewNullLogger()
	c := config.Config{
		Tool:   "buffer",
		Input:  input,
		Output: filepath.Join(dir, "out.geojson"),
		Params: config.Params{Distance: 1},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var report bytes.Buffer
	err := execute(ctx, c, log, &report, &bytes.Buffer{})
	require.ErrorIs(t, err, errAborted)
	assert.Contains(t, report.String(), "aborted: true")

	_, err = os.Stat(c.Output)
	assert.True(t, os.IsNotExist(err))
}

func TestExecute_ConfigErrors(t *testing.T) {
	dir, input := writeInput(t)
	log, _ := test.NewNullLogger()
	tests := []struct {
		name string
		c    config.Config
	}{
		{"no input", config.Config{Tool: "buffer", Output: filepath.Join(dir, "o.geojson")}},
		{"missing input", config.Config{Tool: "buffer", Input: filepath.Join(dir, "nope.geojson"), Output: filepath.Join(dir, "o.geojson")}},
		{"bad output", config.Config{Tool: "buffer", Input: input, Output: filepath.Join(dir, "o.kml")}},
		{"unknown tool", config.Config{Tool: "smooth", Input: input, Output: filepath.Join(dir, "o.geojson")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := execute(context.Background(), tt.c, log, &bytes.Buffer{}, &bytes.Buffer{})
			require.Error(t, err)
			assert.NotErrorIs(t, err, errAborted)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	Root.SetOut(&out)
	Root.SetArgs([]string{"version"})
	require.NoError(t, Root.Execute())
	assert.Equal(t, "geoprocess dev\n", out.String())
}
