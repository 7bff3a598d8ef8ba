package core

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/encodeous/dronet/state"
)

func Inspect(s *state.State) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Endpoint %s (%s)\n", s.Id, s.Role))

	sb.WriteString("\nNeighbours:\n")
	if len(s.Neighbours) == 0 {
		sb.WriteString(" (none)\n")
	}
	for _, n := range s.SortedNeighbours() {
		sb.WriteString(fmt.Sprintf(" - %s (%s)\n", n, s.Graph.Role(n)))
	}

	sb.WriteString("\nTopology:\n")
	sb.WriteString(s.Graph.String())

	sb.WriteString("\nRoutes:\n")
	routes := Get[*Router](s).CachedRoutes()
	for _, dst := range slices.Sorted(maps.Keys(routes)) {
		sb.WriteString(fmt.Sprintf(" - %s via %s\n", dst, routes[dst]))
	}

	sb.WriteString("\nPending Requests:\n")
	rel := Get[*Reliability](s)
	rt := make([]string, 0)
	for _, p := range rel.Pending {
		rt = append(rt, fmt.Sprintf(" - %s to %s %s unacked=%d retries=%d expires %.2fs",
			p.Session, p.Dest, p.State, len(p.Unacked), p.Retries, time.Until(p.Deadline).Seconds()))
	}
	slices.Sort(rt)
	sb.WriteString(strings.Join(rt, "\n") + "\n")

	sb.WriteString(fmt.Sprintf("\nReassembly Buffers: %d\n", Get[*Assembler](s).Pending()))
	sb.WriteString(fmt.Sprintf("Active Floods: %d\n", Get[*Discovery](s).ActiveFloods()))
	return sb.String()
}
