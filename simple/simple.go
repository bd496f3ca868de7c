package simple

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/Noofbiz/seriesfeed/window"
)

// Config holds configurable hyperparameters for the MLP model and training.
type Config struct {
	// HiddenSizes is the list of hidden layer sizes. Example: []int{64, 32}
	// If empty, a single hidden layer of size 32 will be used.
	HiddenSizes []int

	// InputDim is the length of a flattened window: time_window * features.
	InputDim int

	// LearningRate used by SGD. Defaults to 0.001.
	LearningRate float64

	// Seed controls RNG for weight init. If zero, time-based seed is used.
	Seed int64

	// ClipNorm bounds the global gradient norm of each step. Defaults to 5.
	ClipNorm float32

	// LogEvery logs the running loss every LogEvery steps. Zero disables it.
	LogEvery int

	Logger *zerolog.Logger
}

// BatchSource is the minimal interface this package requires from a stream
// of windowed batches. datasets.WindowDataset satisfies it.
type BatchSource interface {
	NextBatch() (*window.Batch, error)
}

// Model is a small MLP regressing one label per window from the flattened
// window. It is trained with a pure Go SGD loop so tests run quickly and
// deterministically.
type Model struct {
	Config Config

	// layerSizes includes input size, hidden sizes, then output size.
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1
	weights [][][]float32

	// biases[l] is a vector of length out for layer l -> l+1
	biases [][]float32

	rng *rand.Rand
	log zerolog.Logger
}

// NewModel creates a new Model instance with the provided configuration.
// It initializes weights (small random values) and is ready to train.
func NewModel(cfg Config) (*Model, error) {
	if cfg.InputDim <= 0 {
		return nil, fmt.Errorf("input dimension must be positive, got %d", cfg.InputDim)
	}
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{32}
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.ClipNorm == 0 {
		cfg.ClipNorm = 5
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	m := &Model{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		log:    zerolog.Nop(),
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "trainer").Logger()
	}

	const outputDim = 1
	sizes := make([]int, 0, 2+len(cfg.HiddenSizes))
	sizes = append(sizes, cfg.InputDim)
	sizes = append(sizes, cfg.HiddenSizes...)
	sizes = append(sizes, outputDim)
	m.layerSizes = sizes

	L := len(sizes) - 1
	m.weights = make([][][]float32, L)
	m.biases = make([][]float32, L)
	for l := 0; l < L; l++ {
		in, out := sizes[l], sizes[l+1]
		// Xavier/Glorot uniform, scaled down
		limit := float32(math.Sqrt(6.0 / float64(in+out)))
		mat := make([][]float32, out)
		for j := range mat {
			row := make([]float32, in)
			for i := range row {
				row[i] = (m.rng.Float32()*2.0 - 1.0) * limit * 0.5
			}
			mat[j] = row
		}
		m.weights[l] = mat
		m.biases[l] = make([]float32, out)
	}
	return m, nil
}

func activationReLU(x []float32) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// forwardSingle returns the pre-activations of every layer and the
// activations, with acts[0] the input.
func (m *Model) forwardSingle(input []float32) (preActs [][]float32, acts [][]float32, err error) {
	if len(input) != m.layerSizes[0] {
		return nil, nil, fmt.Errorf("input has dimension %d, model expects %d", len(input), m.layerSizes[0])
	}
	L := len(m.weights)
	acts = make([][]float32, L+1)
	acts[0] = input
	preActs = make([][]float32, L)
	for l := 0; l < L; l++ {
		inVec := acts[l]
		W, b := m.weights[l], m.biases[l]
		pre := make([]float32, len(b))
		for j := range pre {
			sum := b[j]
			for i, w := range W[j] {
				sum += w * inVec[i]
			}
			pre[j] = sum
		}
		preActs[l] = pre

		// ReLU for hidden, linear for last layer
		act := make([]float32, len(pre))
		copy(act, pre)
		if l < L-1 {
			activationReLU(act)
		}
		acts[l+1] = act
	}
	return preActs, acts, nil
}

// Predict returns one prediction per flattened window.
func (m *Model) Predict(inputs [][]float32) ([]float32, error) {
	out := make([]float32, len(inputs))
	for i, in := range inputs {
		_, acts, err := m.forwardSingle(in)
		if err != nil {
			return nil, err
		}
		out[i] = acts[len(acts)-1][0]
	}
	return out, nil
}

// PredictBatch returns one prediction per example of b.
func (m *Model) PredictBatch(b *window.Batch) ([]float32, error) {
	inputs := make([][]float32, b.Size)
	for i := range inputs {
		inputs[i] = b.Window(i)
	}
	return m.Predict(inputs)
}

// gradients mirrors the shapes of the model's weights and biases.
type gradients struct {
	w [][][]float32
	b [][]float32
}

func (m *Model) newGradients() *gradients {
	g := &gradients{
		w: make([][][]float32, len(m.weights)),
		b: make([][]float32, len(m.biases)),
	}
	for l := range m.weights {
		g.w[l] = make([][]float32, len(m.weights[l]))
		for j := range g.w[l] {
			g.w[l][j] = make([]float32, len(m.weights[l][j]))
		}
		g.b[l] = make([]float32, len(m.biases[l]))
	}
	return g
}

func (g *gradients) norm() float32 {
	var sum float64
	for l := range g.w {
		for j := range g.w[l] {
			for _, v := range g.w[l][j] {
				sum += float64(v) * float64(v)
			}
			sum += float64(g.b[l][j]) * float64(g.b[l][j])
		}
	}
	return float32(math.Sqrt(sum))
}

// accumulate backpropagates one example's squared error into g and returns
// that error.
func (m *Model) accumulate(g *gradients, in []float32, label float32) (float32, error) {
	preacts, acts, err := m.forwardSingle(in)
	if err != nil {
		return 0, err
	}
	diff := acts[len(acts)-1][0] - label
	// dLoss/dOutput = 2*(pred - label)
	delta := []float32{2.0 * diff}
	for l := len(m.weights) - 1; l >= 0; l-- {
		inAct := acts[l]
		for j, d := range delta {
			g.b[l][j] += d
			for i, a := range inAct {
				g.w[l][j][i] += d * a
			}
		}
		if l == 0 {
			break
		}
		prev := make([]float32, len(inAct))
		for i := range prev {
			if preacts[l-1][i] <= 0 {
				continue
			}
			var sum float32
			for j, d := range delta {
				sum += m.weights[l][j][i] * d
			}
			prev[i] = sum
		}
		delta = prev
	}
	return diff * diff, nil
}

// Step applies one averaged SGD update over the examples of b and returns
// the batch's mean squared error before the update.
func (m *Model) Step(b *window.Batch) (float64, error) {
	if b == nil || b.Size == 0 {
		return 0, errors.New("empty batch")
	}
	g := m.newGradients()
	var loss float64
	for i := 0; i < b.Size; i++ {
		sq, err := m.accumulate(g, b.Window(i), b.Labels[i])
		if err != nil {
			return 0, err
		}
		loss += float64(sq)
	}

	scale := float32(m.Config.LearningRate) / float32(b.Size)
	if n := g.norm() / float32(b.Size); n > m.Config.ClipNorm {
		scale *= m.Config.ClipNorm / n
	}
	for l := range m.weights {
		for j := range m.weights[l] {
			m.biases[l][j] -= scale * g.b[l][j]
			for i := range m.weights[l][j] {
				m.weights[l][j][i] -= scale * g.w[l][j][i]
			}
		}
	}
	return loss / float64(b.Size), nil
}

// Train pulls steps batches from src, applying one update per batch, and
// returns the loss of every step.
func (m *Model) Train(src BatchSource, steps int) ([]float64, error) {
	if src == nil {
		return nil, errors.New("batch source is nil")
	}
	losses := make([]float64, 0, steps)
	for s := 0; s < steps; s++ {
		b, err := src.NextBatch()
		if err != nil {
			return losses, fmt.Errorf("step %d: %w", s, err)
		}
		loss, err := m.Step(b)
		if err != nil {
			return losses, fmt.Errorf("step %d: %w", s, err)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return losses, fmt.Errorf("step %d: loss is %v", s, loss)
		}
		losses = append(losses, loss)
		if m.Config.LogEvery > 0 && (s+1)%m.Config.LogEvery == 0 {
			m.log.Info().Int("step", s+1).Float64("loss", loss).Int("epoch", b.Epoch).Msg("training")
		}
	}
	return losses, nil
}
