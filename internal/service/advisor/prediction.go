package advisor

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
	"github.com/zhouzirui/car-advisor/backend/internal/service/audit"
	"github.com/zhouzirui/car-advisor/backend/internal/service/session"
)

// predict runs the price model and, on success only, replaces the session's
// car and prediction and re-arms the follow-up.
func (s *Service) predict(ctx context.Context, pass *session.Pass, record car.Record) (car.Prediction, error) {
	model, err := s.predictor.Get()
	if err != nil || model == nil {
		return car.Prediction{}, ErrPredictorUnavailable
	}

	foreign, err := callPredictor(ctx, model.Predict, record)
	if err != nil {
		s.logger.Warn("prediction failed", zap.String("session", pass.SessionID()), zap.String("car", record.Summary()), zap.Error(err))
		return car.Prediction{}, &PredictionError{Err: err}
	}

	prediction := car.NewPrediction(foreign)
	pass.ReplacePrediction(record, prediction)

	s.logger.Info("prediction completed",
		zap.String("session", pass.SessionID()),
		zap.String("model", record.Model),
		zap.Float64("price_gbp", prediction.PriceForeign),
		zap.Float64("price_idr", prediction.PriceLocal),
		zap.String("tier", string(prediction.Tier)),
	)

	if err := s.audit.RecordPrediction(ctx, audit.Entry{
		SessionID:    pass.SessionID(),
		Record:       record,
		PriceForeign: prediction.PriceForeign,
		PriceLocal:   prediction.PriceLocal,
		Tier:         prediction.Tier,
	}); err != nil {
		s.logger.Warn("failed to audit prediction", zap.String("session", pass.SessionID()), zap.Error(err))
	}

	return prediction, nil
}

// callPredictor converts panics and non-finite output into errors.
func callPredictor(ctx context.Context, predict func(context.Context, car.Record) (float64, error), record car.Record) (price float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("price model panicked: %v", r)
		}
	}()

	price, err = predict(ctx, record)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("price model returned %v", price)
	}
	return price, nil
}
