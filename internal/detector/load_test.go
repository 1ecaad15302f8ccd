package detector

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/driftdetect/backend/pkg/logger"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger.SetLogger(zap.New(core))
	t.Cleanup(func() { logger.SetLogger(nil) })
	return logs
}

func TestLoadFromFile(t *testing.T) {
	d, err := LoadFromFile(filepath.Join("testdata", "exposure.json"))
	require.NoError(t, err)

	assert.Equal(t, "Internet exposed EC2 instances", d.Name())
	assert.Contains(t, d.ValidationQuery(), "MATCH (n:EC2Instance)")
	assert.Equal(t, KindExposure, d.Kind())
	assert.Equal(t, [][]string{{"i-0abc", "sg-1|sg-2"}, {"i-0def", "sg-3"}}, d.Expectations())
}

func TestLoadFromFileFailures(t *testing.T) {
	tests := []struct {
		name string
		file string
		is   error
	}{
		{name: "unknown detector type", file: "unknown_kind.json", is: ErrUnknownKind},
		{name: "missing detector type", file: "missing_type.json"},
		{name: "non-string expectation", file: "bad_expectations.json"},
		{name: "malformed json", file: "malformed.json"},
		{name: "missing file", file: "does_not_exist.json", is: os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := observeLogs(t)
			path := filepath.Join("testdata", tt.file)

			d, err := LoadFromFile(path)
			assert.Nil(t, d)
			require.Error(t, err)

			var defErr *DefinitionError
			require.True(t, errors.As(err, &defErr))
			assert.Equal(t, path, defErr.Path)
			assert.NotEmpty(t, defErr.Messages)
			assert.Contains(t, err.Error(), path)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}

			errorLogs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
			require.Len(t, errorLogs, 1)
			assert.Equal(t, path, errorLogs[0].ContextMap()["path"])
		})
	}
}

func TestParseRequiresNonEmptyName(t *testing.T) {
	observeLogs(t)

	_, err := Parse("inline", []byte(`{"name": "", "validation_query": "RETURN 1", "detector_type": 1, "expectations": []}`))
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Equal(t, "inline", defErr.Path)
}

func TestParseAcceptsIntegralFloatKind(t *testing.T) {
	observeLogs(t)

	d, err := Parse("inline", []byte(`{"name": "float kind", "validation_query": "RETURN 1", "detector_type": 1.0, "expectations": []}`))
	require.NoError(t, err)
	assert.Equal(t, KindExposure, d.Kind())
}

func TestParseRejectsFractionalKind(t *testing.T) {
	observeLogs(t)

	_, err := Parse("inline", []byte(`{"name": "x", "validation_query": "RETURN 1", "detector_type": 1.5, "expectations": []}`))
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Contains(t, err.Error(), "/detector_type: ")
	assert.NotContains(t, err.Error(), "Go struct field")
}

func TestParseReportsFieldLocations(t *testing.T) {
	observeLogs(t)

	data, err := os.ReadFile(filepath.Join("testdata", "bad_expectations.json"))
	require.NoError(t, err)

	_, err = Parse("bad_expectations.json", data)
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	require.NotEmpty(t, defErr.Messages)
	assert.Contains(t, err.Error(), "/expectations/0/1: ")
	assert.Contains(t, err.Error(), "should be string")
	assert.NotContains(t, err.Error(), "does not match the schema")
}

func TestParseReportsMissingField(t *testing.T) {
	observeLogs(t)

	_, err := Parse("inline", []byte(`{"name": "x", "validation_query": "RETURN 1", "expectations": []}`))
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Contains(t, err.Error(), "detector_type")
}

func TestLoadDir(t *testing.T) {
	defs, err := LoadDir(filepath.Join("testdata", "dir"))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "Internet exposed EC2 instances", defs[0].Name())
	assert.Equal(t, "people", defs[1].Name())
}

func TestLoadDirStopsAtFirstInvalid(t *testing.T) {
	observeLogs(t)

	defs, err := LoadDir(filepath.Join("testdata", "baddir"))
	assert.Nil(t, defs)
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Equal(t, filepath.Join("testdata", "baddir", "b.json"), defErr.Path)
}

func TestLoadFileOrDir(t *testing.T) {
	defs, err := Load(filepath.Join("testdata", "exposure.json"))
	require.NoError(t, err)
	assert.Len(t, defs, 1)

	defs, err = Load(filepath.Join("testdata", "dir"))
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	_, err = Load(filepath.Join("testdata", "nowhere"))
	require.Error(t, err)
}
