package vegas

import "math"

// adaptiveGrid holds the per-axis bin boundaries in normalized [0,1]
// coordinates. edges[d] has bins+1 increasing entries with
// edges[d][0] == 0 and edges[d][bins] == 1.
type adaptiveGrid struct {
	bins  int
	edges [][]float64
}

// newGrid returns a uniform grid over the unit cube.
func newGrid(dim, bins int) *adaptiveGrid {
	edges := make([][]float64, dim)
	for d := range edges {
		edges[d] = make([]float64, bins+1)
		for i := 1; i <= bins; i++ {
			edges[d][i] = float64(i) / float64(bins)
		}
	}
	return &adaptiveGrid{bins: bins, edges: edges}
}

// refine moves every axis's boundaries toward the bins that accumulated
// the most squared weight, damped by alpha. An axis whose histogram is
// all zero keeps its current boundaries.
func (g *adaptiveGrid) refine(dist [][]float64, alpha float64) {
	for d := range g.edges {
		g.refineAxis(d, dist[d], alpha)
	}
}

func (g *adaptiveGrid) refineAxis(axis int, dist []float64, alpha float64) {
	bins := g.bins
	if bins < 2 {
		return
	}

	// Smooth the histogram: two-point average at the ends, three-point
	// in the interior.
	smoothed := make([]float64, bins)
	prev := dist[0]
	cur := dist[1]
	smoothed[0] = (prev + cur) / 2
	total := smoothed[0]
	for i := 1; i < bins-1; i++ {
		sum := prev + cur
		prev = cur
		cur = dist[i+1]
		smoothed[i] = (sum + cur) / 3
		total += smoothed[i]
	}
	smoothed[bins-1] = (prev + cur) / 2
	total += smoothed[bins-1]

	if !(total > 0) {
		return
	}

	// Damped importance of each bin. r is the ratio of the axis total
	// to the bin's mass; heavier bins come out with weights closer to
	// one and attract more of the new boundaries.
	weights := make([]float64, bins)
	var totalWeight float64
	for i, s := range smoothed {
		if s > 0 {
			r := total / s
			weights[i] = math.Pow((r-1)/(r*math.Log(r)), alpha)
		}
		totalWeight += weights[i]
	}
	if !(totalWeight > 0) || math.IsInf(totalWeight, 0) || math.IsNaN(totalWeight) {
		return
	}

	// Walk the old bins and drop a new boundary every time another
	// equal share of the damped weight has accumulated.
	perBin := totalWeight / float64(bins)
	edges := g.edges[axis]
	newEdges := make([]float64, bins+1)
	carry := 0.0
	next := 1
	var xold, xnew float64
	for k := 0; k < bins; k++ {
		carry += weights[k]
		xold = xnew
		xnew = edges[k+1]
		for ; carry > perBin && next < bins; next++ {
			carry -= perBin
			newEdges[next] = xnew - (xnew-xold)*carry/weights[k]
		}
	}
	for i := 1; i < bins; i++ {
		edges[i] = newEdges[i]
	}
	edges[bins] = 1
}
