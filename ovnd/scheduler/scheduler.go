// Package scheduler selects hosting chassis for highly-available gateway
// router ports. Candidate filtering is shared; the selection policy is a
// pluggable strategy.
package scheduler

import (
	"fmt"
	"math/rand"
	"sort"
)

// Strategy names accepted by New.
const (
	StrategyLeastLoaded = "leastloaded"
	StrategyChance      = "chance"
)

// Strategy picks a chassis for a gateway port from a candidate set. load
// maps chassis name to the number of gateway ports it already hosts.
type Strategy interface {
	Select(portName string, candidates []string, load map[string]int) (string, error)
}

// New returns the named strategy. An empty name selects least-loaded.
func New(name string) (Strategy, error) {
	switch name {
	case "", StrategyLeastLoaded:
		return LeastLoaded{}, nil
	case StrategyChance:
		return Chance{}, nil
	default:
		return nil, fmt.Errorf("unknown gateway scheduler strategy %q", name)
	}
}

// Candidates filters chassis eligible to host a gateway port. For flat/VLAN
// external networks only chassis bridging the required physical network
// qualify; tunnel-only networks admit every gateway-capable chassis. The
// result is sorted so selection is deterministic.
func Candidates(physnet string, gatewayChassis []string, chassisPhysnets map[string][]string) []string {
	var candidates []string
	for _, chassis := range gatewayChassis {
		if physnet == "" {
			candidates = append(candidates, chassis)
			continue
		}
		for _, p := range chassisPhysnets[chassis] {
			if p == physnet {
				candidates = append(candidates, chassis)
				break
			}
		}
	}
	sort.Strings(candidates)
	return candidates
}

// LeastLoaded levels gateway ports across candidates, picking the chassis
// hosting the fewest. Ties break on chassis name order, keeping repeated
// scheduling runs deterministic.
type LeastLoaded struct{}

func (LeastLoaded) Select(portName string, candidates []string, load map[string]int) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("no gateway chassis candidates for %s", portName)
	}
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	selected := sorted[0]
	for _, chassis := range sorted[1:] {
		if load[chassis] < load[selected] {
			selected = chassis
		}
	}
	return selected, nil
}

// Chance picks uniformly at random across candidates.
type Chance struct {
	// Rand overrides the randomness source, for tests.
	Rand *rand.Rand
}

func (c Chance) Select(portName string, candidates []string, load map[string]int) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("no gateway chassis candidates for %s", portName)
	}
	if c.Rand != nil {
		return candidates[c.Rand.Intn(len(candidates))], nil
	}
	return candidates[rand.Intn(len(candidates))], nil
}
