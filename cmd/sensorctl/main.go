package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/client"
	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/transport"
)

const usage = `Usage: sensorctl [flags] <command> [args]

Commands:
  get <id>              Read one sensor's data, clock and coordinator view
  all                   Read every sensor in the roster
  elect <id>            Force an election starting at sensor <id>
  snapshot <id>         Request a diagnostic snapshot
  alert <id> <message>  Append a message to a sensor's alert log
  ping <id>             Check a sensor is answering
  timestamp <id> <t>    Merge Lamport time <t> into a sensor's clock

Flags:
`

type ctl struct {
	client *client.Client
	roster []cluster.PeerDescriptor
	json   bool
}

func main() {
	peers := flag.String("peers", os.Getenv("SENSOR_PEERS"), "Roster as id=data/election,... (default: local three-sensor layout)")
	carrier := flag.String("transport", "tcp", "Transport: tcp, nng or zmq")
	timeout := flag.Duration("timeout", 2*time.Second, "Per-request timeout")
	asJSON := flag.Bool("json", false, "Print raw JSON responses")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	roster := cluster.DefaultRoster()
	if *peers != "" {
		parsed, err := cluster.ParseRoster(*peers)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Invalid roster: %v\n", err)
			os.Exit(2)
		}
		roster = parsed
	}

	t, err := transport.New(transport.Kind(*carrier), logging.NewNopLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(2)
	}

	c := &ctl{
		client: client.New(t, client.WithTimeout(*timeout)),
		roster: roster,
		json:   *asJSON,
	}
	if err := c.run(context.Background(), flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func (c *ctl) run(ctx context.Context, args []string) error {
	command, rest := strings.ToLower(args[0]), args[1:]

	switch command {
	case "all":
		return c.all(ctx)
	case "get", "elect", "snapshot", "ping":
		if len(rest) != 1 {
			return fmt.Errorf("usage: sensorctl %s <id>", command)
		}
	case "alert":
		if len(rest) < 2 {
			return fmt.Errorf("usage: sensorctl alert <id> <message>")
		}
	case "timestamp":
		if len(rest) != 2 {
			return fmt.Errorf("usage: sensorctl timestamp <id> <t>")
		}
	default:
		return fmt.Errorf("unknown command %q (see -h)", command)
	}

	peer, err := c.peer(rest[0])
	if err != nil {
		return err
	}

	switch command {
	case "get":
		data, err := c.client.GetData(ctx, peer.Addr)
		if err != nil {
			return err
		}
		return c.print(data, func() {
			printData(peer, data)
		})

	case "elect":
		resp, err := c.client.StartElection(ctx, peer.Addr)
		if err != nil {
			return err
		}
		return c.print(resp, func() {
			fmt.Printf("🗳️  Election started at sensor %d (T=%d)\n", peer.ID, resp.Timestamp)
		})

	case "snapshot":
		snap, err := c.client.Snapshot(ctx, peer.Addr)
		if err != nil {
			return err
		}
		return c.print(snap, func() {
			fmt.Printf("📸 Snapshot %s from sensor %d\n", snap.SnapshotID, snap.SensorID)
			fmt.Printf("   Version: %d  Clock: %d  Updated: %s\n",
				snap.Version, snap.Timestamp, time.UnixMilli(snap.LastUpdated).Format(time.RFC3339))
			printReading(snap.Data)
		})

	case "alert":
		message := strings.Join(rest[1:], " ")
		resp, err := c.client.Alert(ctx, peer.Addr, message)
		if err != nil {
			return err
		}
		return c.print(resp, func() {
			fmt.Printf("🚨 Alert delivered to sensor %d (T=%d)\n", peer.ID, resp.Timestamp)
		})

	case "ping":
		start := time.Now()
		if err := c.client.Ping(ctx, peer.Addr); err != nil {
			return err
		}
		fmt.Printf("✅ PONG from sensor %d in %s\n", peer.ID, time.Since(start).Round(time.Microsecond))
		return nil

	case "timestamp":
		ts, err := strconv.ParseUint(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q", rest[1])
		}
		resp, err := c.client.Timestamp(ctx, peer.Addr, ts)
		if err != nil {
			return err
		}
		return c.print(resp, func() {
			fmt.Printf("⏱️  Sensor %d clock is now %d\n", peer.ID, resp.Timestamp)
		})
	}
	return nil
}

func (c *ctl) all(ctx context.Context) error {
	results := c.client.QueryAll(ctx, c.roster)
	if c.json {
		out := make(map[uint64]any, len(results))
		for _, r := range results {
			if r.Err != nil {
				out[r.Peer.ID] = map[string]string{"error": r.Err.Error()}
				continue
			}
			out[r.Peer.ID] = r.Data
		}
		return printJSON(out)
	}

	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("⚠️  Sensor %d (%s): %v\n\n", r.Peer.ID, r.Peer.Addr, r.Err)
			continue
		}
		printData(r.Peer, r.Data)
		fmt.Println()
	}
	return nil
}

func (c *ctl) peer(arg string) (cluster.PeerDescriptor, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return cluster.PeerDescriptor{}, fmt.Errorf("invalid sensor id %q", arg)
	}
	for _, p := range c.roster {
		if p.ID == id {
			return p, nil
		}
	}
	return cluster.PeerDescriptor{}, fmt.Errorf("sensor %d: %w", id, cluster.ErrNodeNotFound)
}

func (c *ctl) print(v any, human func()) error {
	if c.json {
		return printJSON(v)
	}
	human()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
