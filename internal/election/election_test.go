package election

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMasterState_String(t *testing.T) {
	assert.Equal(t, "master", StateIsMaster.String())
	assert.Equal(t, "follower", StateIsFollower.String())
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "unknown", MasterState(99).String())
}

func TestNewKafkaCoordinator_NonEligibleReplicaNeverDialsBrokers(t *testing.T) {
	// masterEligible=false must short-circuit before touching brokers, so
	// this must succeed even with an unreachable broker address.
	c, err := NewKafkaCoordinator([]string{"unreachable:9999"}, "topic", "group", "http://self", false)
	require.NoError(t, err)

	state, url := c.MasterInfo()
	assert.Equal(t, StateIsFollower, state)
	assert.Equal(t, "", url)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Start(ctx), context.Canceled)
	assert.NoError(t, c.Close())
}
