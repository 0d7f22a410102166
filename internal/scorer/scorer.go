package scorer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/scenarr/scenarr/internal/metrics"
)

// ErrNotReady is returned when scoring is attempted before a successful Load.
var ErrNotReady = errors.New("scorer: model not loaded")

// State is the model lifecycle state.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unloaded"
	}
}

// Pair is one (query, candidate) input to the model.
type Pair struct {
	Query     string
	Candidate string
}

// Model is a loaded pairwise relevance model. Predict returns one raw logit per pair.
type Model interface {
	Predict(ctx context.Context, pairs []Pair) ([]float64, error)
	Close() error
}

// Loader brings a model into memory.
type Loader func(ctx context.Context) (Model, error)

// Config controls the scorer.
type Config struct {
	Enabled   bool
	Threshold float64
	MaxPairs  int
}

// Scorer owns the lifecycle of a relevance model. It is safe for concurrent use.
type Scorer struct {
	cfg    Config
	loader Loader
	logger zerolog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	model Model
	state atomic.Int32

	degraded atomic.Bool
	loads    atomic.Int64
}

// New constructs a scorer. Nothing is loaded until Load or Use is called.
func New(cfg Config, loader Loader, logger zerolog.Logger) *Scorer {
	if cfg.MaxPairs <= 0 {
		cfg.MaxPairs = 5000
	}
	return &Scorer{
		cfg:    cfg,
		loader: loader,
		logger: logger.With().Str("component", "scorer").Logger(),
	}
}

// Enabled reports whether learned scoring is configured.
func (s *Scorer) Enabled() bool {
	return s != nil && s.cfg.Enabled && s.loader != nil
}

// Threshold is the minimum similarity accepted by callers.
func (s *Scorer) Threshold() float64 {
	return s.cfg.Threshold
}

// State returns the current lifecycle state.
func (s *Scorer) State() State {
	return State(s.state.Load())
}

// Degraded reports whether a model failure occurred during the current run.
func (s *Scorer) Degraded() bool {
	return s.degraded.Load()
}

// Loads returns how many times the loader actually ran.
func (s *Scorer) Loads() int64 {
	return s.loads.Load()
}

// Available reports whether the model can serve requests right now.
func (s *Scorer) Available() bool {
	return s.Enabled() && s.State() == StateReady && !s.Degraded()
}

// MarkDegraded disables learned scoring until the next Use.
func (s *Scorer) MarkDegraded(err error) {
	if s.degraded.CompareAndSwap(false, true) {
		s.logger.Warn().Err(err).Msg("learned scorer degraded, using deterministic matching for the rest of the run")
	}
}

// Load brings the model to the ready state. Concurrent callers share one load.
func (s *Scorer) Load(ctx context.Context) error {
	if !s.Enabled() {
		return errors.New("scorer: learned scoring disabled")
	}
	if s.State() == StateReady {
		return nil
	}
	_, err, _ := s.group.Do("load", func() (interface{}, error) {
		if s.State() == StateReady {
			return nil, nil
		}
		s.state.Store(int32(StateLoading))
		started := time.Now()
		s.loads.Add(1)

		model, err := s.loader(ctx)
		if err != nil {
			s.state.Store(int32(StateUnloaded))
			return nil, fmt.Errorf("load model: %w", err)
		}

		s.mu.Lock()
		s.model = model
		s.mu.Unlock()
		s.state.Store(int32(StateReady))
		metrics.Default.ScorerLoads.Inc()
		s.logger.Info().Dur("elapsed", time.Since(started)).Msg("relevance model loaded")
		return nil, nil
	})
	return err
}

// Unload drops the model reference. Weights cached on disk by the model server are kept.
func (s *Scorer) Unload() error {
	s.mu.Lock()
	model := s.model
	s.model = nil
	s.mu.Unlock()
	s.state.Store(int32(StateUnloaded))
	if model == nil {
		return nil
	}
	s.logger.Debug().Msg("relevance model unloaded")
	return model.Close()
}

// Use runs fn between Load and Unload. Unload runs even when fn fails. A failed
// load marks the scorer degraded and fn still runs, so callers fall back to
// deterministic matching.
func (s *Scorer) Use(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.Enabled() {
		return fn(ctx)
	}
	s.degraded.Store(false)
	if err := s.Load(ctx); err != nil {
		s.MarkDegraded(err)
	}
	defer func() {
		if err := s.Unload(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to unload relevance model")
		}
	}()
	return fn(ctx)
}

// Score returns the similarity of a single pair in [0,1].
func (s *Scorer) Score(ctx context.Context, query, candidate Descriptor) (float64, error) {
	scores, err := s.ScoreBatch(ctx, []Descriptor{query}, []Descriptor{candidate})
	if err != nil {
		return 0, err
	}
	return scores[0][0], nil
}

// ScoreBatch scores every query against every candidate. The result is indexed
// [query][candidate]. Pairs are sent in chunks of at most MaxPairs.
func (s *Scorer) ScoreBatch(ctx context.Context, queries, candidates []Descriptor) ([][]float64, error) {
	s.mu.RLock()
	model := s.model
	s.mu.RUnlock()
	if model == nil || s.State() != StateReady {
		return nil, ErrNotReady
	}

	out := make([][]float64, len(queries))
	for i := range out {
		out[i] = make([]float64, len(candidates))
	}
	if len(queries) == 0 || len(candidates) == 0 {
		return out, nil
	}

	candidateText := make([]string, len(candidates))
	for j, c := range candidates {
		candidateText[j] = c.String()
	}
	pairs := make([]Pair, 0, len(queries)*len(candidates))
	for _, q := range queries {
		queryText := q.String()
		for j := range candidates {
			pairs = append(pairs, Pair{Query: queryText, Candidate: candidateText[j]})
		}
	}

	for start := 0; start < len(pairs); start += s.cfg.MaxPairs {
		end := min(start+s.cfg.MaxPairs, len(pairs))
		logits, err := model.Predict(ctx, pairs[start:end])
		if err != nil {
			s.MarkDegraded(err)
			return nil, fmt.Errorf("predict: %w", err)
		}
		if len(logits) != end-start {
			err := fmt.Errorf("predict: got %d scores for %d pairs", len(logits), end-start)
			s.MarkDegraded(err)
			return nil, err
		}
		for k, logit := range logits {
			idx := start + k
			out[idx/len(candidates)][idx%len(candidates)] = sigmoid(logit)
		}
	}
	return out, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
