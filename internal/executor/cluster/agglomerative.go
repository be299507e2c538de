// Package cluster groups embedded items into topics and scores them.
package cluster

// Partition groups vectors by average-linkage agglomerative clustering on cosine similarity.
//
// Every vector starts as a singleton. The most similar pair of clusters is merged while that
// similarity is at least threshold; ties go to the pair with the lowest indices. Because the
// merge sequence never depends on threshold, a higher threshold stops at a prefix of the same
// sequence and yields a refinement of the partition produced by a lower one.
//
// The result lists each cluster's member indices in ascending order, with clusters ordered by
// their first member.
func Partition(vectors [][]float32, threshold float64) [][]int {
	n := len(vectors)
	if n == 0 {
		return nil
	}

	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := Cosine(vectors[i], vectors[j])
			sim[i][j] = s
			sim[j][i] = s
		}
	}

	members := make([][]int, n)
	active := make([]bool, n)
	for i := range members {
		members[i] = []int{i}
		active[i] = true
	}

	for {
		bi, bj := -1, -1
		best := 0.0
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if bi < 0 || sim[i][j] > best {
					bi, bj, best = i, j, sim[i][j]
				}
			}
		}
		if bi < 0 || best < threshold {
			break
		}

		// Lance-Williams update for average linkage.
		si, sj := float64(len(members[bi])), float64(len(members[bj]))
		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			s := (si*sim[bi][k] + sj*sim[bj][k]) / (si + sj)
			sim[bi][k] = s
			sim[k][bi] = s
		}
		members[bi] = mergeSorted(members[bi], members[bj])
		members[bj] = nil
		active[bj] = false
	}

	out := make([][]int, 0, n)
	for i := 0; i < n; i++ {
		if active[i] {
			out = append(out, members[i])
		}
	}
	return out
}

func mergeSorted(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
