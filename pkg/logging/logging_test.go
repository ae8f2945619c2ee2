package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorded struct {
	level int
	line  string
}

func recordingFuncs(out *[]recorded) LogFuncs {
	return LogFuncs{
		LogLevelf: func(level int, format string, args ...interface{}) {
			*out = append(*out, recorded{level: level, line: fmt.Sprintf(format, args...)})
		},
	}
}

func TestLogger_PrefixAndLevels(t *testing.T) {
	var out []recorded
	log := NewLogger("tcp: ", recordingFuncs(&out))

	log.Debugf("d %d", 1)
	log.Infof("i")
	log.Warnf("w")
	log.Errorf("e %s", "x")

	assert.Equal(t, []recorded{
		{LogLevelDebug, "tcp: d 1"},
		{LogLevelInfo, "tcp: i"},
		{LogLevelWarn, "tcp: w"},
		{LogLevelError, "tcp: e x"},
	}, out)
}

func TestLogger_PerLevelFuncs(t *testing.T) {
	var warned []string
	log := NewLogger("", LogFuncs{
		Warnf: func(format string, args ...interface{}) {
			warned = append(warned, fmt.Sprintf(format, args...))
		},
	})

	log.Infof("dropped")
	log.Warnf("kept %d", 2)

	assert.Equal(t, []string{"kept 2"}, warned)
}

func TestWithPrefix_Nests(t *testing.T) {
	var out []recorded
	base := NewLogger("[agent] ", recordingFuncs(&out))
	log := WithPrefix(base, "file: ")

	log.Infof("opened %s", "a.log")

	assert.Equal(t, "[agent] file: opened a.log", out[0].line)
	assert.NotPanics(t, func() { WithPrefix(nil, "x").Infof("nothing") })
	assert.NotPanics(t, func() { NewNopLogger().Errorf("nothing") })
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]int{
		"debug":   LogLevelDebug,
		"TRACE":   LogLevelDebug,
		"info":    LogLevelInfo,
		"":        LogLevelInfo,
		"Warning": LogLevelWarn,
		"error":   LogLevelError,
		"fatal":   LogLevelError,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLogLevel(name), name)
	}
}
