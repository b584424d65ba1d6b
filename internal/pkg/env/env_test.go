package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	prev := Env
	Env = values
	t.Cleanup(func() { Env = prev })
}

func TestGetEnvBool(t *testing.T) {
	withEnv(t, map[string]string{
		"A": "true",
		"B": "YES",
		"C": "0",
		"D": "nonsense",
	})

	assert.True(t, GetEnvBool("A", false))
	assert.True(t, GetEnvBool("B", false))
	assert.False(t, GetEnvBool("C", true))
	assert.False(t, GetEnvBool("D", true))
	assert.True(t, GetEnvBool("PAYFOX_UNSET_BOOL", true))
}

func TestGetEnvInt(t *testing.T) {
	withEnv(t, map[string]string{"WORKERS": "7", "BROKEN": "x"})

	assert.Equal(t, 7, GetEnvInt("WORKERS", 3))
	assert.Equal(t, 3, GetEnvInt("BROKEN", 3))
	assert.Equal(t, 5, GetEnvInt("PAYFOX_UNSET_INT", 5))
}

func TestGetEnvDuration(t *testing.T) {
	withEnv(t, map[string]string{
		"SECS":    "15",
		"GO":      "250ms",
		"INVALID": "soon",
		"NEG":     "-5s",
	})

	assert.Equal(t, 15*time.Second, GetEnvDuration("SECS", time.Second))
	assert.Equal(t, 250*time.Millisecond, GetEnvDuration("GO", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("INVALID", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("NEG", time.Second))
}
