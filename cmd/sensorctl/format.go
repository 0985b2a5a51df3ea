package main

import (
	"fmt"
	"sort"

	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
	"github.com/dd0wney/cluso-sensornet/pkg/protocol"
)

func printData(peer cluster.PeerDescriptor, data protocol.DataResponse) {
	role := "follower"
	if data.IsCoordinator {
		role = "coordinator 👑"
	}
	fmt.Printf("📡 Sensor %d (%s) %s\n", data.SensorID, peer.Addr, role)
	fmt.Printf("   Clock: %d  Version: %d\n", data.Timestamp, data.Version)
	if data.Coordinator != nil {
		fmt.Printf("   Coordinator: %d (%s)\n", data.Coordinator.ID, data.Coordinator.Addr)
	} else {
		fmt.Printf("   Coordinator: none\n")
	}
	printReading(data.Data)
}

func printReading(data map[string]any) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("   %-12s %v\n", k+":", formatValue(data[k]))
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) && x > 1e9 {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%.2f", x)
	default:
		return fmt.Sprint(v)
	}
}
