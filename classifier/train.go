package classifier

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Params controls training. LearningRate is the initial step of every
// gradient descent iteration; Epochs caps the number of iterations.
type Params struct {
	LearningRate float64
	Epochs       int
	L2           float64
	Threshold    float64
}

func DefaultParams() Params {
	return Params{LearningRate: 0.1, Epochs: 500, L2: 0.001, Threshold: 0.5}
}

// Train fits a logistic regression with balanced class weights by gradient
// descent. Labels must be 0 or 1 and both classes must be present.
func Train(features []string, X [][]float64, y []int, p Params) (*Model, error) {
	if len(X) == 0 {
		return nil, errors.New("classifier: no training rows")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("classifier: %d rows but %d labels", len(X), len(y))
	}
	dim := len(features)
	var pos int
	for i, row := range X {
		if len(row) != dim {
			return nil, fmt.Errorf("classifier: row %d has %d values, want %d", i, len(row), dim)
		}
		switch y[i] {
		case 0:
		case 1:
			pos++
		default:
			return nil, fmt.Errorf("classifier: row %d has label %d, want 0 or 1", i, y[i])
		}
	}
	if pos == 0 || pos == len(y) {
		return nil, errors.New("classifier: training data holds a single class")
	}

	z, mean, scale := standardize(X, dim)
	obj := newObjective(z, y, pos, p.L2)

	settings := &optimize.Settings{MajorIterations: p.Epochs}
	method := &optimize.GradientDescent{StepSizer: optimize.ConstantStepSize{Size: p.LearningRate}}
	res, err := optimize.Minimize(optimize.Problem{Func: obj.loss, Grad: obj.grad}, make([]float64, dim+1), settings, method)
	if res == nil {
		return nil, fmt.Errorf("classifier: minimize: %w", err)
	}
	// A line search that stalls near the optimum still leaves the best
	// location found in res.X.
	if err != nil {
		slog.Debug("classifier: optimizer stopped early", "status", res.Status, "err", err)
	}
	if floats.HasNaN(res.X) {
		return nil, errors.New("classifier: training diverged")
	}

	return &Model{
		Features:  append([]string(nil), features...),
		Mean:      mean,
		Scale:     scale,
		Weights:   append([]float64(nil), res.X[:dim]...),
		Bias:      res.X[dim],
		Threshold: p.Threshold,
		TrainedAt: time.Now().UTC(),
	}, nil
}

// standardize returns X scaled to zero mean and unit deviation per column.
// Constant columns get a scale of 1.
func standardize(X [][]float64, dim int) (*mat.Dense, []float64, []float64) {
	n := len(X)
	z := mat.NewDense(n, dim, nil)
	for i, row := range X {
		z.SetRow(i, row)
	}

	mean := make([]float64, dim)
	scale := make([]float64, dim)
	col := make([]float64, n)
	for j := 0; j < dim; j++ {
		mat.Col(col, j, z)
		m, s := stat.MeanStdDev(col, nil)
		if s == 0 || math.IsNaN(s) {
			s = 1
		}
		mean[j], scale[j] = m, s
		for i := range col {
			col[i] = stat.StdScore(col[i], m, s)
		}
		z.SetCol(j, col)
	}
	return z, mean, scale
}

// objective is the class-weighted mean log loss with an L2 penalty on the
// weights. The parameter vector holds the weights followed by the bias.
type objective struct {
	z      *mat.Dense
	target *mat.VecDense
	weight *mat.VecDense
	l2     float64
	n      float64
}

func newObjective(z *mat.Dense, y []int, pos int, l2 float64) *objective {
	n, _ := z.Dims()
	classWeight := [2]float64{float64(n) / (2 * float64(n-pos)), float64(n) / (2 * float64(pos))}
	target := mat.NewVecDense(n, nil)
	weight := mat.NewVecDense(n, nil)
	for i, label := range y {
		target.SetVec(i, float64(label))
		weight.SetVec(i, classWeight[label])
	}
	return &objective{z: z, target: target, weight: weight, l2: l2, n: float64(n)}
}

func (o *objective) logits(x []float64) *mat.VecDense {
	_, dim := o.z.Dims()
	var out mat.VecDense
	out.MulVec(o.z, mat.NewVecDense(dim, x[:dim:dim]))
	bias := x[dim]
	for i := 0; i < out.Len(); i++ {
		out.SetVec(i, out.AtVec(i)+bias)
	}
	return &out
}

func (o *objective) loss(x []float64) float64 {
	_, dim := o.z.Dims()
	logits := o.logits(x)
	var sum float64
	for i := 0; i < logits.Len(); i++ {
		l := logits.AtVec(i)
		sum += o.weight.AtVec(i) * (softplus(l) - o.target.AtVec(i)*l)
	}
	w := x[:dim]
	return sum/o.n + 0.5*o.l2*floats.Dot(w, w)
}

func (o *objective) grad(grad, x []float64) {
	_, dim := o.z.Dims()
	residual := o.logits(x)
	var bias float64
	for i := 0; i < residual.Len(); i++ {
		r := o.weight.AtVec(i) * (sigmoid(residual.AtVec(i)) - o.target.AtVec(i))
		residual.SetVec(i, r)
		bias += r
	}

	var g mat.VecDense
	g.MulVec(o.z.T(), residual)
	for j := 0; j < dim; j++ {
		grad[j] = g.AtVec(j)/o.n + o.l2*x[j]
	}
	grad[dim] = bias / o.n
}

// softplus is log(1 + e^z) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

// Split holds out testSize of each class, drawn with a seeded source, so
// both halves keep the label balance.
func Split(X [][]float64, y []int, testSize float64, seed uint64) (xTrain, xTest [][]float64, yTrain, yTest []int) {
	src := rand.NewSource(seed)

	byClass := map[int][]int{}
	var labels []int
	for i, label := range y {
		if _, ok := byClass[label]; !ok {
			labels = append(labels, label)
		}
		byClass[label] = append(byClass[label], i)
	}

	for _, label := range labels {
		idx := byClass[label]
		held := make(map[int]bool)
		nTest := min(int(math.Round(testSize*float64(len(idx)))), len(idx))
		if nTest > 0 {
			picks := make([]int, nTest)
			sampleuv.WithoutReplacement(picks, len(idx), src)
			for _, k := range picks {
				held[idx[k]] = true
				xTest = append(xTest, X[idx[k]])
				yTest = append(yTest, y[idx[k]])
			}
		}
		for _, i := range idx {
			if !held[i] {
				xTrain = append(xTrain, X[i])
				yTrain = append(yTrain, y[i])
			}
		}
	}
	return xTrain, xTest, yTrain, yTest
}
