package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/dd0wney/cluso-sensornet/pkg/client"
)

func rows(results []client.QueryResult) []table.Row {
	out := make([]table.Row, 0, len(results))
	for _, r := range results {
		id := strconv.FormatUint(r.Peer.ID, 10)
		if r.Err != nil {
			out = append(out, table.Row{id, r.Peer.Addr, "offline", "-", "-", "-", "-", "-", "-"})
			continue
		}

		state := "follower"
		if r.Data.IsCoordinator {
			state = "coordinator"
		}
		coord := "-"
		if r.Data.Coordinator != nil {
			coord = strconv.FormatUint(r.Data.Coordinator.ID, 10)
		}
		out = append(out, table.Row{
			id,
			r.Peer.Addr,
			state,
			coord,
			strconv.FormatUint(r.Data.Timestamp, 10),
			strconv.FormatUint(r.Data.Version, 10),
			reading(r.Data.Data, "temperature"),
			reading(r.Data.Data, "humidity"),
			reading(r.Data.Data, "pressure"),
		})
	}
	return out
}

func reading(data map[string]any, key string) string {
	if v, ok := data[key].(float64); ok {
		return fmt.Sprintf("%.2f", v)
	}
	return "-"
}

// summary reports how many sensors answered and whether they agree on a coordinator
func summary(results []client.QueryResult, at time.Time) string {
	if at.IsZero() {
		return "Polling sensors..."
	}

	online := 0
	views := make(map[uint64]int)
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		online++
		if r.Data.Coordinator != nil {
			views[r.Data.Coordinator.ID]++
		}
	}

	agreement := "no coordinator"
	switch len(views) {
	case 0:
	case 1:
		for id, n := range views {
			agreement = fmt.Sprintf("coordinator %d (agreed by %d)", id, n)
		}
	default:
		agreement = fmt.Sprintf("split view across %d coordinators", len(views))
	}

	return fmt.Sprintf("Online: %d/%d   %s   Last poll: %s",
		online, len(results), agreement, at.Format("15:04:05"))
}
