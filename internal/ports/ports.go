// Package ports selects the backend/frontend listen ports. The installer
// prefers a fixed list of pairs so non-technical users rarely have to
// reason about port conflicts.
package ports

import (
	"fmt"
	"net"
)

// Pair is a backend/frontend port combination that is configured together.
type Pair struct {
	Backend  int `yaml:"backend" json:"backend"`
	Frontend int `yaml:"frontend" json:"frontend"`
}

// DefaultPairs are probed in order; the first fully free pair wins.
var DefaultPairs = []Pair{
	{Backend: 8005, Frontend: 5173},
	{Backend: 8505, Frontend: 5573},
	{Backend: 8605, Frontend: 5673},
}

// Available reports whether the port can be bound on loopback right now.
func Available(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}

// SelectPair picks the first preferred pair whose two ports both bind.
// When none looks free the first preference is returned anyway; the
// services will report the conflict when they start.
func SelectPair(preferred []Pair) Pair {
	if len(preferred) == 0 {
		preferred = DefaultPairs
	}
	for _, p := range preferred {
		if Available(p.Backend) && Available(p.Frontend) {
			return p
		}
	}
	return preferred[0]
}
