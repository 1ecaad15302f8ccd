package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftdetect/backend/internal/detector"
	"github.com/driftdetect/backend/internal/runner"
	"github.com/driftdetect/backend/pkg/logger"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { logger.SetLogger(nil) })

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	t.Setenv("DRIFTDETECT_LOGGING_OUTPUTPATH", "stderr")

	out, err := execute(t, "validate", "../detector/testdata/dir")
	require.NoError(t, err)

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Internet exposed EC2 instances")
	assert.Contains(t, out, "people")
	assert.Contains(t, out, "exposure")
}

func TestValidateCommand_LogsStayOffStdout(t *testing.T) {
	t.Setenv("DRIFTDETECT_LOGGING_OUTPUTPATH", "stdout")

	r, w, err := os.Pipe()
	require.NoError(t, err)
	stdout := os.Stdout
	os.Stdout = w
	t.Cleanup(func() { os.Stdout = stdout })

	out, err := execute(t, "validate", "../detector/testdata/dir")
	require.NoError(t, err)

	os.Stdout = stdout
	require.NoError(t, w.Close())
	leaked, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.NotContains(t, string(leaked), "Detector definitions loaded")
	assert.Contains(t, out, "people")
}

func TestValidateCommand_SingleFile(t *testing.T) {
	t.Setenv("DRIFTDETECT_LOGGING_OUTPUTPATH", "stderr")

	out, err := execute(t, "validate", "../detector/testdata/exposure.json")
	require.NoError(t, err)
	assert.Contains(t, out, "exposure")
}

func TestValidateCommand_InvalidDefinition(t *testing.T) {
	t.Setenv("DRIFTDETECT_LOGGING_OUTPUTPATH", "stderr")

	_, err := execute(t, "validate", "../detector/testdata/baddir")
	require.Error(t, err)

	var defErr *detector.DefinitionError
	assert.True(t, errors.As(err, &defErr))
	assert.Equal(t, 1, ExitCode(err))
}

func TestValidateCommand_MissingConfigFile(t *testing.T) {
	_, err := execute(t, "--config", "does-not-exist.yaml", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestSelectDetectors(t *testing.T) {
	a := detector.New("a", "RETURN 1", nil, detector.KindExposure)
	b := detector.New("b", "RETURN 2", nil, detector.KindExposure)
	catalog, err := detector.NewCatalog([]*detector.Definition{a, b})
	require.NoError(t, err)

	all, err := selectDetectors(catalog, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := selectDetectors(catalog, []string{"b"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "b", some[0].Name())

	_, err = selectDetectors(catalog, []string{"c"})
	assert.ErrorContains(t, err, `unknown detector "c"`)
}

func TestSummarize(t *testing.T) {
	clean := runner.Report{Drift: 0}
	drifted := runner.Report{Drift: 3}
	failed := runner.Report{Err: errors.New("boom")}

	assert.NoError(t, summarize([]runner.Report{clean, drifted}, false))

	err := summarize([]runner.Report{clean, drifted}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDriftFound)
	assert.Equal(t, 2, ExitCode(err))

	err = summarize([]runner.Report{drifted, failed}, true)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDriftFound)
	assert.Equal(t, 1, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("x")))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("wrapped: %w", ErrDriftFound)))
}
