package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLevels(t *testing.T) {
	cases := []struct {
		name      string
		build     func(bool) (*zap.Logger, error)
		debug     bool
		wantDebug bool
		wantInfo  bool
	}{
		{name: "dev", build: New, debug: true, wantDebug: true, wantInfo: true},
		{name: "prod", build: New, wantInfo: true},
		{name: "quiet", build: Quiet},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log, err := tc.build(tc.debug)
			require.NoError(t, err)
			assert.Equal(t, tc.wantDebug, log.Core().Enabled(zapcore.DebugLevel))
			assert.Equal(t, tc.wantInfo, log.Core().Enabled(zapcore.InfoLevel))
			assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
		})
	}
}
