package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/redocdc/redocdc/internal/logger"
	"github.com/redocdc/redocdc/internal/storage"
	"github.com/sirupsen/logrus"
)

var ErrNotLeader = errors.New("consensus: not the leader")

type NodeConfig struct {
	NodeID        string
	BindAddr      string
	DataDir       string
	Bootstrap     bool
	PeerAddrs     map[string]string
	JoinRetries   int
	JoinRetryWait time.Duration
	ApplyTimeout  time.Duration
}

type Node struct {
	config  *NodeConfig
	raft    *raft.Raft
	fsm     *FSM
	storage *storage.Storage
	store   *raftboltdb.BoltStore
	logw    *io.PipeWriter
	log     *logrus.Entry
}

func NewNode(cfg *NodeConfig, store *storage.Storage) (*Node, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("node id is required")
	}
	if cfg.ApplyTimeout == 0 {
		cfg.ApplyTimeout = 10 * time.Second
	}
	return &Node{
		config:  cfg,
		storage: store,
		fsm:     NewFSM(store),
		log:     logger.WithComponent("raft").WithField("node", cfg.NodeID),
	}, nil
}

func (n *Node) Start(ctx context.Context) error {
	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(n.config.NodeID)

	n.logw = logger.Logger.WriterLevel(logrus.DebugLevel)
	raftConfig.LogOutput = n.logw

	raftDir := filepath.Join(n.config.DataDir, "raft")
	if err := os.MkdirAll(raftDir, 0755); err != nil {
		return fmt.Errorf("failed to create raft directory: %w", err)
	}

	boltStore, err := raftboltdb.NewBoltStore(filepath.Join(raftDir, "raft.db"))
	if err != nil {
		return fmt.Errorf("failed to create log store: %w", err)
	}
	n.store = boltStore

	snapshotStore, err := raft.NewFileSnapshotStore(raftDir, 2, n.logw)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	addr, err := net.ResolveTCPAddr("tcp", n.config.BindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve address: %w", err)
	}

	transport, err := raft.NewTCPTransport(n.config.BindAddr, addr, 3, 10*time.Second, n.logw)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	ra, err := raft.NewRaft(raftConfig, n.fsm, boltStore, boltStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}

	n.raft = ra

	if n.config.Bootstrap {
		hasState, err := raft.HasExistingState(boltStore, boltStore, snapshotStore)
		if err != nil {
			return fmt.Errorf("failed to check existing state: %w", err)
		}

		if !hasState {
			servers := []raft.Server{
				{
					ID:      raftConfig.LocalID,
					Address: transport.LocalAddr(),
				},
			}

			for peerID, peerAddr := range n.config.PeerAddrs {
				servers = append(servers, raft.Server{
					ID:      raft.ServerID(peerID),
					Address: raft.ServerAddress(peerAddr),
				})
			}

			future := ra.BootstrapCluster(raft.Configuration{Servers: servers})
			if err := future.Error(); err != nil {
				return fmt.Errorf("failed to bootstrap cluster: %w", err)
			}
			n.log.WithField("servers", len(servers)).Info("Bootstrapped cluster")
		}
	} else if len(n.config.PeerAddrs) > 0 {
		if err := n.waitForMembership(ctx); err != nil {
			return fmt.Errorf("failed to wait for leader: %w", err)
		}
	}

	return nil
}

func (n *Node) retry() (int, time.Duration) {
	retries := n.config.JoinRetries
	if retries == 0 {
		retries = 30
	}
	retryWait := n.config.JoinRetryWait
	if retryWait == 0 {
		retryWait = 1 * time.Second
	}
	return retries, retryWait
}

// waitForMembership blocks until a leader exists and the cluster
// configuration lists this node.
func (n *Node) waitForMembership(ctx context.Context) error {
	retries, retryWait := n.retry()

	for i := 0; i < retries; i++ {
		if n.raft.Leader() != "" {
			future := n.raft.GetConfiguration()
			if err := future.Error(); err == nil {
				for _, server := range future.Configuration().Servers {
					if server.ID == raft.ServerID(n.config.NodeID) {
						return nil
					}
				}
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryWait):
		}
	}

	return fmt.Errorf("timeout waiting for leader after %d retries", retries)
}

// WaitForLeader blocks until the cluster has elected a leader and returns
// its address.
func (n *Node) WaitForLeader(ctx context.Context) (string, error) {
	if n.raft == nil {
		return "", fmt.Errorf("raft not initialized")
	}
	retries, retryWait := n.retry()

	for i := 0; i < retries; i++ {
		if leader := n.Leader(); leader != "" {
			return leader, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(retryWait):
		}
	}
	return "", fmt.Errorf("no leader elected after %d retries", retries)
}

func (n *Node) Stop() error {
	if n.raft != nil {
		future := n.raft.Shutdown()
		if err := future.Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %w", err)
		}
	}
	if n.store != nil {
		if err := n.store.Close(); err != nil {
			return fmt.Errorf("failed to close log store: %w", err)
		}
	}
	if n.logw != nil {
		n.logw.Close()
	}
	return nil
}

func (n *Node) ApplyLog(entry *LogEntry) error {
	if !n.IsLeader() {
		return ErrNotLeader
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	future := n.raft.Apply(data, n.config.ApplyTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to apply log: %w", err)
	}
	if resp, ok := future.Response().(error); ok && resp != nil {
		return fmt.Errorf("failed to apply log: %w", resp)
	}

	return nil
}

// SaveCheckpoint replicates a checkpoint to every node. Each FSM, the
// leader's included, persists it to its own storage.
func (n *Node) SaveCheckpoint(cp *storage.Checkpoint) error {
	return n.ApplyLog(&LogEntry{
		Type:       LogEntryCheckpoint,
		Checkpoint: cp,
		Timestamp:  time.Now(),
	})
}

func (n *Node) SetMetadata(key, value string) error {
	return n.ApplyLog(&LogEntry{
		Type:      LogEntryMetadata,
		Key:       key,
		Value:     value,
		Timestamp: time.Now(),
	})
}

func (n *Node) IsLeader() bool {
	return n.raft != nil && n.raft.State() == raft.Leader
}

func (n *Node) Leader() string {
	if n.raft == nil {
		return ""
	}
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

func (n *Node) AddPeer(id, addr string) error {
	if n.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	future := n.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(addr), 0, 0)
	return future.Error()
}

func (n *Node) RemovePeer(id string) error {
	if n.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	future := n.raft.RemoveServer(raft.ServerID(id), 0, 0)
	return future.Error()
}

func (n *Node) Stats() map[string]string {
	if n.raft == nil {
		return map[string]string{"state": "not initialized"}
	}
	stats := n.raft.Stats()
	stats["fsm_applied"] = fmt.Sprint(n.fsm.Applied())
	return stats
}

func (n *Node) TransferLeadership() error {
	if n.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	if n.raft.State() != raft.Leader {
		return ErrNotLeader
	}

	future := n.raft.LeadershipTransfer()
	if err := future.Error(); err != nil {
		return fmt.Errorf("leadership transfer failed: %w", err)
	}

	return nil
}
