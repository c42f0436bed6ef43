package observability

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hallgrim/uplift/internal/config"
)

func TestInitializeSetsGlobalLogger(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &zaptest.Buffer{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "uplift-test",
	}, buf)

	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Info("hello from the test")
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, "hello from the test")
	assert.Contains(t, out, "uplift-test")
}

func TestInitializeRunsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &zaptest.Buffer{}
	second := &zaptest.Buffer{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, first)
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, second)

	GetLogger().Info("routed to the first writer")
	require.NoError(t, GetLogger().Sync())

	assert.Contains(t, first.String(), "routed to the first writer")
	assert.Empty(t, second.String())
}

func TestInitializeRespectsLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &zaptest.Buffer{}
	Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, buf)

	GetLogger().Info("suppressed")
	GetLogger().Warn("emitted")
	require.NoError(t, GetLogger().Sync())

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "emitted")
}

func TestInitializeFallsBackOnBadLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &zaptest.Buffer{}
	Initialize(config.LoggerConfig{Level: "shouting", Format: "json"}, buf)

	GetLogger().Debug("below the info fallback")
	GetLogger().Info("at the info fallback")
	require.NoError(t, GetLogger().Sync())

	out := buf.String()
	assert.NotContains(t, out, "below the info fallback")
	assert.Contains(t, out, "at the info fallback")
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger, "a fallback logger must always be available")
}

func TestConsoleEncoderColorizesLevels(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &zaptest.Buffer{}
	Initialize(config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "uplift"}, buf)

	GetLogger().Warn("tinted")
	require.NoError(t, GetLogger().Sync())

	line := buf.String()
	assert.Contains(t, line, colorYellow+"WARN"+colorReset)
	assert.True(t, strings.Contains(line, "uplift."), "console format renders the logger name with a trailing dot")
}

func TestSyncWithoutLoggerIsSafe(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	Sync()
}
