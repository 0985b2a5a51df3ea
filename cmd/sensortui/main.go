package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dd0wney/cluso-sensornet/pkg/client"
	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/transport"
)

func main() {
	peers := flag.String("peers", os.Getenv("SENSOR_PEERS"), "Roster as id=data/election,... (default: local three-sensor layout)")
	carrier := flag.String("transport", "tcp", "Transport: tcp, nng or zmq")
	interval := flag.Duration("interval", time.Second, "Polling interval")
	timeout := flag.Duration("timeout", 2*time.Second, "Per-request timeout")
	flag.Parse()

	roster := cluster.DefaultRoster()
	if *peers != "" {
		parsed, err := cluster.ParseRoster(*peers)
		if err != nil {
			log.Fatalf("Invalid roster: %v", err)
		}
		roster = parsed
	}

	t, err := transport.New(transport.Kind(*carrier), logging.NewNopLogger())
	if err != nil {
		log.Fatalf("Failed to create transport: %v", err)
	}

	m := initialModel(client.New(t, client.WithTimeout(*timeout)), roster, *interval)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
