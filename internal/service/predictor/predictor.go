// Package predictor provides the price model behind the car form. The model is
// opaque to the rest of the service: a record goes in, a GBP price comes out.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
)

var (
	// ErrUnavailable is returned when no model could be loaded.
	ErrUnavailable = errors.New("price model unavailable")
	// ErrUnknownCategory is returned for a categorical value the model was not trained on.
	ErrUnknownCategory = errors.New("unknown category")
)

// Predictor estimates the GBP price of a car.
type Predictor interface {
	Predict(ctx context.Context, record car.Record) (float64, error)
}

// Func adapts a plain function to Predictor.
type Func func(ctx context.Context, record car.Record) (float64, error)

// Predict calls f.
func (f Func) Predict(ctx context.Context, record car.Record) (float64, error) {
	return f(ctx, record)
}

// Source describes where the model lives.
type Source struct {
	ArtifactPath string
	RemoteURL    string
	Remote       RemoteOptions
}

// Loader loads the model once per process and hands out the cached instance.
// A failed load is cached too; the service then runs without predictions.
type Loader struct {
	once   sync.Once
	load   func() (Predictor, error)
	logger *zap.Logger

	predictor Predictor
	err       error
}

// NewLoader builds a Loader for the given source. Remote wins over a local artifact.
func NewLoader(src Source, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		logger: logger,
		load: func() (Predictor, error) {
			switch {
			case src.RemoteURL != "":
				r, err := NewRemote(src.RemoteURL, src.Remote)
				if err != nil {
					return nil, err
				}
				return r, nil
			case src.ArtifactPath != "":
				a, err := LoadArtifact(src.ArtifactPath)
				if err != nil {
					return nil, err
				}
				return a, nil
			default:
				return nil, fmt.Errorf("%w: no artifact path or remote url configured", ErrUnavailable)
			}
		},
	}
}

// NewStaticLoader wraps an already constructed predictor. A nil predictor
// yields a loader that always reports ErrUnavailable.
func NewStaticLoader(p Predictor) *Loader {
	return &Loader{
		logger: zap.NewNop(),
		load: func() (Predictor, error) {
			if p == nil {
				return nil, ErrUnavailable
			}
			return p, nil
		},
	}
}

// Get returns the cached predictor, loading it on first use.
func (l *Loader) Get() (Predictor, error) {
	l.once.Do(func() {
		l.predictor, l.err = l.load()
		if l.err != nil {
			l.logger.Warn("price model failed to load, predictions disabled", zap.Error(l.err))
			if !errors.Is(l.err, ErrUnavailable) {
				l.err = fmt.Errorf("%w: %w", ErrUnavailable, l.err)
			}
			return
		}
		l.logger.Info("price model loaded", zap.String("model", describe(l.predictor)))
	})
	return l.predictor, l.err
}

// Ready reports whether a model is available.
func (l *Loader) Ready() bool {
	p, err := l.Get()
	return err == nil && p != nil
}

func describe(p Predictor) string {
	if n, ok := p.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}
