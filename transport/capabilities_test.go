package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
)

func TestCapabilities_CheckSize(t *testing.T) {
	tests := []struct {
		name    string
		caps    Capabilities
		size    int
		wantErr bool
	}{
		{name: "unlimited", caps: Capabilities{}, size: 10 << 20},
		{name: "below limit", caps: KafkaCapabilities, size: 1024},
		{name: "at limit", caps: KafkaCapabilities, size: 1048576},
		{name: "over limit", caps: KafkaCapabilities, size: 1048577, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.caps.CheckSize(tt.size)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errspkg.ErrMessageTooLarge))
				assert.Contains(t, err.Error(), "kafka")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPredefinedCapabilitiesRejectUnsupportedOperations(t *testing.T) {
	for _, caps := range []Capabilities{KafkaCapabilities, MemoryCapabilities} {
		t.Run(caps.Name, func(t *testing.T) {
			assert.True(t, caps.SupportsPartitioning)
			assert.True(t, caps.SupportsAtLeastOnce())
			assert.False(t, caps.SupportsDefer)
			assert.False(t, caps.SupportsRequeue)
			assert.False(t, caps.SupportsDeletion)
		})
	}
}
