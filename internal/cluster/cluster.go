// Package cluster groups nearby memories into screen-space clusters at low
// zoom levels so the map stays readable.
package cluster

import (
	"sort"

	"pixelmap/internal/memory"
)

const (
	// ZoomThreshold is the zoom level above which no clustering happens.
	ZoomThreshold = 6.0
	// RadiusPx is the screen-space grouping radius.
	RadiusPx = 90.0
)

// Kind discriminates the two display item variants.
type Kind int

const (
	KindSingle Kind = iota
	KindCluster
)

// DisplayItem is a tagged union: either one memory rendered on its own, or
// a cluster badge standing in for several. Consumers switch on Kind; the
// inactive variant's fields are zero.
type DisplayItem struct {
	Kind Kind

	// KindSingle
	Memory memory.Memory

	// KindCluster
	Representative memory.Memory
	Members        []memory.Memory
	Lat            float64
	Lng            float64
}

// Single wraps one memory as an unclustered display item.
func Single(m memory.Memory) DisplayItem {
	return DisplayItem{Kind: KindSingle, Memory: m}
}

// Cluster builds a cluster item. The representative is the seed memory
// whose sprite fronts the badge; position is the member centroid.
func Cluster(representative memory.Memory, members []memory.Memory) DisplayItem {
	var lat, lng float64
	for _, m := range members {
		lat += m.Lat
		lng += m.Lng
	}
	n := float64(len(members))
	return DisplayItem{
		Kind:           KindCluster,
		Representative: representative,
		Members:        members,
		Lat:            lat / n,
		Lng:            lng / n,
	}
}

// Count reports how many memories the item stands for.
func (d DisplayItem) Count() int {
	if d.Kind == KindCluster {
		return len(d.Members)
	}
	return 1
}

// Projector maps geographic coordinates to screen pixels at the current
// view. The map widget supplies it.
type Projector func(lat, lng float64) (x, y float64)

// ComputeDisplayItems groups memories within RadiusPx of a seed into
// clusters. Above ZoomThreshold everything renders individually.
//
// Seeds are taken in descending ID order and grouping is greedy: each
// unvisited memory within radius of the current seed joins that seed's
// cluster and is never reconsidered. Membership is seed-relative, not
// transitive, so a chain of pins can split across clusters. A seed with no
// neighbors stays a single.
func ComputeDisplayItems(memories []memory.Memory, project Projector, zoom float64) []DisplayItem {
	if zoom > ZoomThreshold {
		items := make([]DisplayItem, 0, len(memories))
		for _, m := range memories {
			items = append(items, Single(m))
		}
		return items
	}

	ordered := make([]memory.Memory, len(memories))
	copy(ordered, memories)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID > ordered[j].ID })

	visited := make(map[int64]bool, len(ordered))
	var items []DisplayItem

	for _, seed := range ordered {
		if visited[seed.ID] {
			continue
		}
		visited[seed.ID] = true
		sx, sy := project(seed.Lat, seed.Lng)

		members := []memory.Memory{seed}
		for _, other := range ordered {
			if visited[other.ID] {
				continue
			}
			ox, oy := project(other.Lat, other.Lng)
			dx, dy := ox-sx, oy-sy
			if dx*dx+dy*dy < RadiusPx*RadiusPx {
				visited[other.ID] = true
				members = append(members, other)
			}
		}

		if len(members) == 1 {
			items = append(items, Single(seed))
		} else {
			items = append(items, Cluster(seed, members))
		}
	}
	return items
}
