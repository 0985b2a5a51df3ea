package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-sensornet/pkg/client"
	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
	"github.com/dd0wney/cluso-sensornet/pkg/protocol"
	"github.com/dd0wney/cluso-sensornet/pkg/replication"
)

// peerLink carries the coordination core's outbound messages over the
// client. ELECTION and COORDINATOR go to the election endpoint, everything
// else to the data endpoint.
type peerLink struct {
	client *client.Client
	selfID uint64
}

var (
	_ cluster.ElectionTransport = (*peerLink)(nil)
	_ cluster.Prober            = (*peerLink)(nil)
	_ replication.Sender        = (*peerLink)(nil)
)

func (l *peerLink) SendElection(ctx context.Context, peer cluster.PeerDescriptor) error {
	return l.client.Election(ctx, peer.ElectionAddr, l.selfID)
}

func (l *peerLink) SendCoordinator(ctx context.Context, peer cluster.PeerDescriptor, self cluster.PeerDescriptor) error {
	return l.client.Coordinator(ctx, peer.ElectionAddr, self.ID, client.Port(self.ElectionAddr))
}

func (l *peerLink) Probe(ctx context.Context, peer cluster.PeerDescriptor) error {
	return l.client.Ping(ctx, peer.Addr)
}

func (l *peerLink) SendAlert(ctx context.Context, peer cluster.PeerDescriptor, message string) error {
	resp, err := l.client.Alert(ctx, peer.Addr, message)
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusAlertReceived {
		return fmt.Errorf("%w: alert answered with %q", protocol.ErrProtocol, resp.Status)
	}
	return nil
}

// SendReplicate maps the peer's status reply to an Ack. A reply that is
// not a recognizable status counts as ERROR; only transport failures are
// returned as errors.
func (l *peerLink) SendReplicate(ctx context.Context, peer cluster.PeerDescriptor, encoded string) (replication.Reply, error) {
	resp, err := l.client.Replicate(ctx, peer.Addr, encoded)
	if err != nil {
		if isProtocolError(err) {
			return replication.Reply{Ack: replication.AckError}, nil
		}
		return replication.Reply{}, err
	}

	switch ack := replication.Ack(resp.Status); ack {
	case replication.AckAccepted, replication.AckStale, replication.AckError:
		return replication.Reply{Ack: ack, Version: resp.Version}, nil
	default:
		return replication.Reply{Ack: replication.AckError, Version: resp.Version}, nil
	}
}

// isProtocolError reports a peer that answered, but not with what we asked for
func isProtocolError(err error) bool {
	return errors.Is(err, protocol.ErrProtocol) || errors.Is(err, protocol.ErrRemote)
}
