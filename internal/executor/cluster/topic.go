package cluster

import (
	"math"
	"sort"
	"time"

	"golang-trend-publisher/internal/entity"
)

// TopicCluster is a group of items about one topic, produced either by embedding clustering or
// by instrument matching (Symbol set, Centroid nil).
type TopicCluster struct {
	ID       string
	Category string
	Symbol   string
	Members  []entity.ScrapedItem
	Centroid []float32
	Vectors  [][]float32
	Score    float64
}

// Size returns the number of member items.
func (c TopicCluster) Size() int {
	return len(c.Members)
}

// DistinctSources counts the distinct source ids among members.
func (c TopicCluster) DistinctSources() int {
	seen := make(map[string]struct{}, len(c.Members))
	for _, m := range c.Members {
		seen[m.SourceID] = struct{}{}
	}
	return len(seen)
}

// Earliest returns the earliest observation time among members.
func (c TopicCluster) Earliest() time.Time {
	var earliest time.Time
	for i, m := range c.Members {
		t := m.ObservedAt()
		if i == 0 || t.Before(earliest) {
			earliest = t
		}
	}
	return earliest
}

// Representative returns the member closest to the centroid, or the earliest member when the
// cluster has no vectors.
func (c TopicCluster) Representative() entity.ScrapedItem {
	if len(c.Members) == 0 {
		return entity.ScrapedItem{}
	}
	if len(c.Centroid) == 0 || len(c.Vectors) != len(c.Members) {
		best := 0
		for i, m := range c.Members {
			if m.ObservedAt().Before(c.Members[best].ObservedAt()) {
				best = i
			}
		}
		return c.Members[best]
	}
	best, bestSim := 0, math.Inf(-1)
	for i, v := range c.Vectors {
		if s := Cosine(v, c.Centroid); s > bestSim {
			best, bestSim = i, s
		}
	}
	return c.Members[best]
}

// Score sums an exponential recency decay over member times: each member contributes
// 0.5^(age/halfLife), so larger and fresher clusters score higher.
func Score(times []time.Time, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		halfLife = 12 * time.Hour
	}
	var score float64
	for _, t := range times {
		age := now.Sub(t)
		if age < 0 {
			age = 0
		}
		score += math.Pow(0.5, age.Hours()/halfLife.Hours())
	}
	return score
}

// ScoreMembers scores a cluster from its members' observation times.
func ScoreMembers(members []entity.ScrapedItem, now time.Time, halfLife time.Duration) float64 {
	times := make([]time.Time, len(members))
	for i, m := range members {
		times[i] = m.ObservedAt()
	}
	return Score(times, now, halfLife)
}

// SortByScore orders clusters by score descending, then by id.
func SortByScore(clusters []TopicCluster) {
	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Score != clusters[j].Score {
			return clusters[i].Score > clusters[j].Score
		}
		return clusters[i].ID < clusters[j].ID
	})
}
