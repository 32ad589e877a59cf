package forecast

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Params configures the gradient-boosted tree ensemble
type Params struct {
	LearningRate        float64
	NumLeaves           int // maximum leaves per tree, grown best-first
	MaxDepth            int // <= 0 means unlimited
	MinDataInLeaf       int
	FeatureFraction     float64 // share of features considered per tree
	BaggingFraction     float64 // share of rows used per bagging period
	BaggingFreq         int     // resample rows every BaggingFreq rounds, 0 disables
	LambdaL1            float64
	LambdaL2            float64
	NumRounds           int
	EarlyStoppingRounds int // stop after this many rounds without validation improvement
	Seed                uint64
}

// DefaultParams returns the regression settings used for sensor models
func DefaultParams() Params {
	return Params{
		LearningRate:        0.05,
		NumLeaves:           31,
		MaxDepth:            6,
		MinDataInLeaf:       3,
		FeatureFraction:     0.8,
		BaggingFraction:     0.8,
		BaggingFreq:         5,
		LambdaL1:            0.1,
		LambdaL2:            0.1,
		NumRounds:           100,
		EarlyStoppingRounds: 15,
		Seed:                42,
	}
}

// Dataset is a dense feature matrix with regression targets
type Dataset struct {
	X [][]float64
	Y []float64
}

// Len returns the number of rows
func (d Dataset) Len() int { return len(d.Y) }

func (d Dataset) validate(width int) error {
	if len(d.X) != len(d.Y) {
		return fmt.Errorf("feature rows (%d) and targets (%d) differ", len(d.X), len(d.Y))
	}
	for i, row := range d.X {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
	}
	return nil
}

type node struct {
	Feature     int
	Threshold   float64
	Left, Right int // -1 for leaves
	Value       float64
}

func (n *node) isLeaf() bool { return n.Left < 0 }

type tree struct {
	nodes []node
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for !t.nodes[i].isLeaf() {
		n := &t.nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.nodes[i].Value
}

// Ensemble is a fitted additive model of regression trees. It is read-only
// after Fit and safe for concurrent use.
type Ensemble struct {
	Base          float64 // initial score, the mean training target
	NumFeatures   int
	BestIteration int // trees kept after early stopping
	TrainRMSE     float64
	ValidRMSE     float64 // NaN when fitted without a validation set

	trees []*tree
}

// Predict scores one feature row
func (e *Ensemble) Predict(x []float64) float64 {
	p := e.Base
	for _, t := range e.trees {
		p += t.predict(x)
	}
	return p
}

// NumTrees returns the number of trees in the ensemble
func (e *Ensemble) NumTrees() int {
	return len(e.trees)
}

// Fit trains an L2 gradient-boosted ensemble. When valid is non-empty it is
// scored after every round and the ensemble is truncated to the round with the
// lowest validation RMSE.
func Fit(train, valid Dataset, p Params) (*Ensemble, error) {
	if train.Len() == 0 {
		return nil, errors.New("empty training set")
	}
	width := len(train.X[0])
	if width == 0 {
		return nil, errors.New("training rows have no features")
	}
	if err := train.validate(width); err != nil {
		return nil, fmt.Errorf("invalid training set: %w", err)
	}
	if err := valid.validate(width); err != nil {
		return nil, fmt.Errorf("invalid validation set: %w", err)
	}

	rounds := p.NumRounds
	if rounds <= 0 {
		rounds = 1
	}

	var base float64
	for _, y := range train.Y {
		base += y
	}
	base /= float64(train.Len())

	e := &Ensemble{Base: base, NumFeatures: width, ValidRMSE: math.NaN()}

	n := train.Len()
	pred := filled(n, base)
	vpred := filled(valid.Len(), base)
	grad := make([]float64, n)

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	bag := allRows(n)

	best := math.Inf(1)
	bestIter := 0

	for it := 0; it < rounds; it++ {
		if p.BaggingFreq > 0 && p.BaggingFraction > 0 && p.BaggingFraction < 1 && it%p.BaggingFreq == 0 {
			bag = sampleRows(rng, n, p.BaggingFraction)
		}
		for i := range grad {
			grad[i] = pred[i] - train.Y[i]
		}

		t := growTree(train.X, grad, bag, sampleFeatures(rng, width, p.FeatureFraction), p)
		e.trees = append(e.trees, t)

		for i, x := range train.X {
			pred[i] += t.predict(x)
		}
		if valid.Len() == 0 {
			continue
		}
		for i, x := range valid.X {
			vpred[i] += t.predict(x)
		}

		score := rmse(vpred, valid.Y)
		if score < best {
			best = score
			bestIter = it + 1
		} else if p.EarlyStoppingRounds > 0 && it+1-bestIter >= p.EarlyStoppingRounds {
			break
		}
	}

	if valid.Len() > 0 {
		e.trees = e.trees[:bestIter]
		e.ValidRMSE = best
	}
	e.BestIteration = len(e.trees)

	final := filled(n, base)
	for i, x := range train.X {
		final[i] = e.Predict(x)
	}
	e.TrainRMSE = rmse(final, train.Y)

	return e, nil
}

// candidate is the best split found for a leaf
type candidate struct {
	feature   int
	threshold float64
	gain      float64
}

type leaf struct {
	node  int
	rows  []int
	depth int
	best  *candidate
}

func growTree(x [][]float64, grad []float64, rows []int, features []int, p Params) *tree {
	t := &tree{nodes: []node{{Left: -1, Right: -1, Value: leafValue(grad, rows, p)}}}

	root := &leaf{node: 0, rows: rows}
	root.best = findSplit(x, grad, root, features, p)
	leaves := []*leaf{root}

	maxLeaves := max(p.NumLeaves, 2)
	for count := 1; count < maxLeaves; count++ {
		pick := -1
		for i, l := range leaves {
			if l.best == nil {
				continue
			}
			if pick < 0 || l.best.gain > leaves[pick].best.gain {
				pick = i
			}
		}
		if pick < 0 {
			break
		}

		parent := leaves[pick]
		var left, right []int
		for _, r := range parent.rows {
			if x[r][parent.best.feature] <= parent.best.threshold {
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		}

		li, ri := len(t.nodes), len(t.nodes)+1
		t.nodes = append(t.nodes,
			node{Left: -1, Right: -1, Value: leafValue(grad, left, p)},
			node{Left: -1, Right: -1, Value: leafValue(grad, right, p)},
		)
		pn := &t.nodes[parent.node]
		pn.Feature = parent.best.feature
		pn.Threshold = parent.best.threshold
		pn.Left, pn.Right = li, ri
		pn.Value = 0

		l := &leaf{node: li, rows: left, depth: parent.depth + 1}
		r := &leaf{node: ri, rows: right, depth: parent.depth + 1}
		l.best = findSplit(x, grad, l, features, p)
		r.best = findSplit(x, grad, r, features, p)

		leaves[pick] = l
		leaves = append(leaves, r)
	}

	return t
}

func findSplit(x [][]float64, grad []float64, l *leaf, features []int, p Params) *candidate {
	minData := max(p.MinDataInLeaf, 1)
	if p.MaxDepth > 0 && l.depth >= p.MaxDepth {
		return nil
	}
	if len(l.rows) < 2*minData {
		return nil
	}

	var sumG float64
	for _, r := range l.rows {
		sumG += grad[r]
	}
	sumH := float64(len(l.rows))
	parent := splitScore(sumG, sumH, p)

	var best *candidate
	sorted := make([]int, len(l.rows))
	for _, f := range features {
		copy(sorted, l.rows)
		sort.SliceStable(sorted, func(i, j int) bool { return x[sorted[i]][f] < x[sorted[j]][f] })

		var gl, hl float64
		for k := 0; k < len(sorted)-1; k++ {
			gl += grad[sorted[k]]
			hl++

			if int(hl) < minData || len(sorted)-int(hl) < minData {
				continue
			}
			v, next := x[sorted[k]][f], x[sorted[k+1]][f]
			if v == next {
				continue
			}

			gain := splitScore(gl, hl, p) + splitScore(sumG-gl, sumH-hl, p) - parent
			if gain <= 1e-12 || (best != nil && gain <= best.gain) {
				continue
			}
			threshold := v + (next-v)/2
			if !(threshold < next) {
				threshold = v
			}
			best = &candidate{feature: f, threshold: threshold, gain: gain}
		}
	}

	return best
}

func thresholdL1(g, l1 float64) float64 {
	if g > l1 {
		return g - l1
	}
	if g < -l1 {
		return g + l1
	}
	return 0
}

func splitScore(g, h float64, p Params) float64 {
	t := thresholdL1(g, p.LambdaL1)
	return t * t / (h + p.LambdaL2)
}

func leafValue(grad []float64, rows []int, p Params) float64 {
	if len(rows) == 0 {
		return 0
	}
	var g float64
	for _, r := range rows {
		g += grad[r]
	}
	return -thresholdL1(g, p.LambdaL1) / (float64(len(rows)) + p.LambdaL2) * p.LearningRate
}

func sampleRows(rng *rand.Rand, n int, fraction float64) []int {
	k := max(1, int(fraction*float64(n)))
	rows := rng.Perm(n)[:k]
	sort.Ints(rows)
	return rows
}

func sampleFeatures(rng *rand.Rand, width int, fraction float64) []int {
	if fraction <= 0 || fraction >= 1 {
		return allRows(width)
	}
	k := max(1, int(math.Round(fraction*float64(width))))
	features := rng.Perm(width)[:k]
	sort.Ints(features)
	return features
}

func allRows(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func rmse(pred, y []float64) float64 {
	if len(y) == 0 {
		return math.NaN()
	}
	var s float64
	for i := range y {
		d := pred[i] - y[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(y)))
}
