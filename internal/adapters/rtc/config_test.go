package rtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateICEServers(t *testing.T) {
	assert.NoError(t, ValidateICEServers([]string{"stun:stun.l.google.com:19302", "turns:turn.example.org:5349"}))
	assert.NoError(t, ValidateICEServers(nil))
	assert.ErrorIs(t, ValidateICEServers([]string{"http://example.org"}), ErrBadICEServer)
}

func TestConfiguration(t *testing.T) {
	cfg := Configuration([]string{"stun:stun.l.google.com:19302"})
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers[0].URLs)

	assert.Empty(t, Configuration(nil).ICEServers)
}
