package tlspump

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultLoggerNamesItself(t *testing.T) {
	log := NewDefaultLogger("tlspump-test")
	require.Equal(t, "tlspump-test", log.Name())
	require.Equal(t, hclog.Info, log.GetLevel())
}

func TestNewLoggerFromEnvHonorsLevel(t *testing.T) {
	t.Setenv("TLSPUMP_LOG_LEVEL", "warn")
	log := NewLoggerFromEnv("tlspump-test")
	require.Equal(t, hclog.Warn, log.GetLevel())
}

func TestNewLoggerFromEnvDefaultsToInfo(t *testing.T) {
	t.Setenv("TLSPUMP_LOG_LEVEL", "")
	log := NewLoggerFromEnv("tlspump-test")
	require.Equal(t, hclog.Info, log.GetLevel())
}
