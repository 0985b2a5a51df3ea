package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-sensornet/pkg/clock"
	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
	"github.com/dd0wney/cluso-sensornet/pkg/protocol"
	"github.com/dd0wney/cluso-sensornet/pkg/transport"
)

// stubNode answers requests with canned replies and records what it parsed
type stubNode struct {
	mu       sync.Mutex
	requests []protocol.Request
}

func (s *stubNode) handle(_ context.Context, raw []byte) []byte {
	req, err := protocol.ParseRequest(raw)
	if err != nil {
		return protocol.InvalidRequest(err)
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	switch req.Kind {
	case protocol.KindPing:
		return []byte(protocol.ReplyPong)
	case protocol.KindElection:
		return []byte(protocol.ReplyAlive)
	case protocol.KindCoordinator:
		return nil
	case protocol.KindHeartbeat:
		return protocol.Marshal(protocol.HeartbeatResponse{Status: protocol.StatusAlive, Timestamp: 7})
	case protocol.KindGetData:
		return protocol.Marshal(protocol.DataResponse{
			SensorID:    2,
			Data:        map[string]any{"temperature": 22.5},
			Timestamp:   9,
			Coordinator: &cluster.CoordinatorRef{ID: 3, Addr: "n3:5000", ElectionAddr: "n3:6000"},
		})
	case protocol.KindReplicate:
		return protocol.Marshal(protocol.StatusResponse{Status: protocol.StatusAck, Version: 4})
	case protocol.KindSnapshot:
		return protocol.Marshal(protocol.SnapshotResponse{SnapshotID: "s-1", SensorID: 2, Version: 4})
	case protocol.KindStartElection:
		return protocol.Marshal(protocol.StatusResponse{Status: protocol.StatusElectionStarted})
	case protocol.KindAlert:
		return protocol.Marshal(protocol.StatusResponse{Status: protocol.StatusAlertReceived})
	case protocol.KindTimestamp:
		return protocol.Marshal(protocol.StatusResponse{Status: protocol.StatusTimestampUpdated, Timestamp: req.Timestamp + 1})
	}
	return protocol.InvalidRequest(nil)
}

func (s *stubNode) last() protocol.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func setup(t *testing.T) (*transport.MemoryNetwork, *stubNode) {
	t.Helper()
	network := transport.NewMemoryNetwork()
	node := &stubNode{}
	closer, err := network.Transport().Listen("n2:5000", node.handle)
	require.NoError(t, err)
	t.Cleanup(func() { closer.Close() })
	return network, node
}

func TestTypedCalls(t *testing.T) {
	network, node := setup(t)
	c := New(network.Transport())
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx, "n2:5000"))
	require.NoError(t, c.Election(ctx, "n2:5000", 1))
	assert.Equal(t, uint64(1), node.last().NodeID)
	require.NoError(t, c.Coordinator(ctx, "n2:5000", 3, 6003))
	assert.Equal(t, 6003, node.last().Port)

	hb, err := c.Heartbeat(ctx, "n2:5000")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), hb.Timestamp)

	data, err := c.GetData(ctx, "n2:5000")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), data.SensorID)
	require.NotNil(t, data.Coordinator)
	assert.Equal(t, uint64(3), data.Coordinator.ID)

	rep, err := c.Replicate(ctx, "n2:5000", "c2VhbGVk")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusAck, rep.Status)
	assert.Equal(t, "c2VhbGVk", node.last().Payload)

	snap, err := c.Snapshot(ctx, "n2:5000")
	require.NoError(t, err)
	assert.Equal(t, "s-1", snap.SnapshotID)

	st, err := c.StartElection(ctx, "n2:5000")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusElectionStarted, st.Status)

	st, err = c.Alert(ctx, "n2:5000", "pressure anomaly")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusAlertReceived, st.Status)
	assert.Equal(t, "pressure anomaly", node.last().Payload)

	st, err = c.Timestamp(ctx, "n2:5000", 41)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), st.Timestamp)
}

func TestClockStamping(t *testing.T) {
	network, node := setup(t)
	lc := clock.New()
	c := New(network.Transport(), WithClock(lc))

	require.NoError(t, c.Ping(context.Background(), "n2:5000"))
	require.NoError(t, c.Ping(context.Background(), "n2:5000"))

	req := node.last()
	assert.True(t, req.HasClock)
	assert.Equal(t, uint64(2), req.Clock)
	assert.Equal(t, uint64(2), lc.Time(), "one tick per outbound request")
}

func TestUnreachable(t *testing.T) {
	network, _ := setup(t)
	c := New(network.Transport(), WithTimeout(50*time.Millisecond))

	err := c.Ping(context.Background(), "n9:5000")
	assert.True(t, errors.Is(err, transport.ErrUnreachable))

	network.SetLatency("n2:5000", 200*time.Millisecond)
	err = c.Ping(context.Background(), "n2:5000")
	assert.ErrorIs(t, err, transport.ErrUnreachable, "a slow peer counts as unreachable")
}

func TestRemoteError(t *testing.T) {
	network := transport.NewMemoryNetwork()
	closer, err := network.Transport().Listen("bad:1", func(context.Context, []byte) []byte {
		return protocol.InvalidRequest(protocol.ErrUnknownRequest)
	})
	require.NoError(t, err)
	defer closer.Close()

	c := New(network.Transport())
	_, err = c.GetData(context.Background(), "bad:1")
	assert.ErrorIs(t, err, protocol.ErrRemote)

	err = c.Ping(context.Background(), "bad:1")
	assert.ErrorIs(t, err, protocol.ErrProtocol, "JSON where PONG was expected")
}

func TestQueryAll(t *testing.T) {
	network, _ := setup(t)
	c := New(network.Transport(), WithTimeout(50*time.Millisecond))

	peers := []cluster.PeerDescriptor{
		{ID: 3, Addr: "n3:5000", ElectionAddr: "n3:6000"},
		{ID: 2, Addr: "n2:5000", ElectionAddr: "n2:6000"},
	}
	results := c.QueryAll(context.Background(), peers)
	require.Len(t, results, 2)

	assert.Equal(t, uint64(2), results[0].Peer.ID)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 22.5, results[0].Data.Data["temperature"])

	assert.Equal(t, uint64(3), results[1].Peer.ID)
	assert.ErrorIs(t, results[1].Err, transport.ErrUnreachable)
}

func TestPort(t *testing.T) {
	assert.Equal(t, 6001, Port("localhost:6001"))
	assert.Equal(t, 5000, Port(":5000"))
	assert.Equal(t, 0, Port("localhost"))
	assert.Equal(t, 0, Port("host:http"))
}
