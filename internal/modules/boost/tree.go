// Package boost implements gradient-boosted regression trees shared by
// the demand forecaster (least-squares boosting) and the delivery-risk
// classifier (logistic boosting).
package boost

import "sort"

// node is one split or leaf of a regression tree.
type node struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *node
	right     *node
}

func (n *node) predict(row []float64) float64 {
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// leafValueFunc computes a leaf's output from the sample indices that
// reached it. Least-squares boosting uses the target mean; logistic
// boosting uses a Newton step over gradients and hessians.
type leafValueFunc func(indices []int) float64

type treeBuilder struct {
	x          [][]float64
	targets    []float64
	maxDepth   int
	minLeaf    int
	leafValue  leafValueFunc
	importance []float64 // Squared-error reduction accumulated per feature
}

func (b *treeBuilder) build(indices []int, depth int) *node {
	if depth >= b.maxDepth || len(indices) < 2*b.minLeaf {
		return &node{leaf: true, value: b.leafValue(indices)}
	}

	feature, threshold, gain, ok := b.bestSplit(indices)
	if !ok {
		return &node{leaf: true, value: b.leafValue(indices)}
	}
	b.importance[feature] += gain

	var left, right []int
	for _, i := range indices {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &node{
		feature:   feature,
		threshold: threshold,
		left:      b.build(left, depth+1),
		right:     b.build(right, depth+1),
	}
}

// bestSplit scans every feature for the threshold that maximizes the
// reduction in target sum of squared errors. Running prefix sums make
// each feature scan linear after the sort.
func (b *treeBuilder) bestSplit(indices []int) (feature int, threshold, gain float64, ok bool) {
	n := len(indices)

	var totalSum, totalSq float64
	for _, i := range indices {
		t := b.targets[i]
		totalSum += t
		totalSq += t * t
	}
	parentSSE := totalSq - totalSum*totalSum/float64(n)

	bestGain := 0.0
	sorted := make([]int, n)

	for f := range b.x[indices[0]] {
		copy(sorted, indices)
		sort.Slice(sorted, func(i, j int) bool {
			return b.x[sorted[i]][f] < b.x[sorted[j]][f]
		})

		var leftSum, leftSq float64
		for pos := 0; pos < n-1; pos++ {
			t := b.targets[sorted[pos]]
			leftSum += t
			leftSq += t * t

			// Splits only between distinct feature values.
			cur := b.x[sorted[pos]][f]
			next := b.x[sorted[pos+1]][f]
			if cur == next {
				continue
			}

			nLeft := pos + 1
			nRight := n - nLeft
			if nLeft < b.minLeaf || nRight < b.minLeaf {
				continue
			}

			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			leftSSE := leftSq - leftSum*leftSum/float64(nLeft)
			rightSSE := rightSq - rightSum*rightSum/float64(nRight)

			g := parentSSE - leftSSE - rightSSE
			if g > bestGain {
				bestGain = g
				feature = f
				threshold = (cur + next) / 2
				ok = true
			}
		}
	}

	return feature, threshold, bestGain, ok
}
