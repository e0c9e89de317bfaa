package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/redocdc/redocdc/internal/redo"
	"github.com/redocdc/redocdc/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNode(t *testing.T) {
	store := openStorage(t)

	node, err := NewNode(&NodeConfig{NodeID: "test-node", BindAddr: "127.0.0.1:7000", DataDir: t.TempDir()}, store)
	require.NoError(t, err)
	assert.Equal(t, "test-node", node.config.NodeID)
	assert.Equal(t, 10*time.Second, node.config.ApplyTimeout)

	_, err = NewNode(&NodeConfig{}, store)
	assert.Error(t, err)
}

func TestNodeBeforeStart(t *testing.T) {
	node, err := NewNode(&NodeConfig{NodeID: "test-node", BindAddr: "127.0.0.1:7001", DataDir: t.TempDir()}, openStorage(t))
	require.NoError(t, err)

	assert.Equal(t, "not initialized", node.Stats()["state"])
	assert.False(t, node.IsLeader())
	assert.Empty(t, node.Leader())
	assert.ErrorIs(t, node.SaveCheckpoint(&storage.Checkpoint{SCN: 1}), ErrNotLeader)
	assert.Error(t, node.AddPeer("x", "127.0.0.1:1"))
	assert.Error(t, node.RemovePeer("x"))
	assert.Error(t, node.TransferLeadership())
	assert.NoError(t, node.Stop())
}

func TestSingleNodeReplicatesCheckpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a raft node")
	}

	store := openStorage(t)
	node, err := NewNode(&NodeConfig{
		NodeID:        "node1",
		BindAddr:      "127.0.0.1:17011",
		DataDir:       t.TempDir(),
		Bootstrap:     true,
		JoinRetryWait: 200 * time.Millisecond,
	}, store)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, node.Start(ctx))
	defer node.Stop()

	leader, err := node.WaitForLeader(ctx)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:17011", leader)

	require.Eventually(t, node.IsLeader, 5*time.Second, 50*time.Millisecond)
	require.NoError(t, node.SaveCheckpoint(&storage.Checkpoint{SCN: 42, Sequence: 3}))
	require.NoError(t, node.SetMetadata("source_path", "redo.bin"))

	cp, err := store.LatestCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, redo.SCN(42), cp.SCN)

	path, err := store.GetMetadata("source_path")
	require.NoError(t, err)
	assert.Equal(t, "redo.bin", path)
	assert.Equal(t, "2", node.Stats()["fsm_applied"])
}
