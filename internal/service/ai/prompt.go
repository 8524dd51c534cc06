package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
	"github.com/zhouzirui/car-advisor/backend/internal/model/chat"
)

// SystemInstruction frames every conversation.
const SystemInstruction = `You are a friendly used-car consultant helping a buyer or seller in Indonesia.
Prices come from a regression model trained on UK listings: the model answers in pounds and the app converts to rupiah at a fixed rate.
Treat the prediction as an estimate, explain what drives it, and keep answers focused on the car being discussed.`

// StyleInstruction is appended to the context of every user turn.
const StyleInstruction = "Answer warmly, clearly and informatively, and keep the answer relevant to the car and its price."

const (
	noPrediction = "No prediction yet."
	noCar        = "No car submitted yet."
)

// ContextPrompt wraps a user message with the session's current prediction and car.
func ContextPrompt(state chat.State, userMessage string) string {
	prediction := noPrediction
	if state.Prediction != nil {
		prediction = state.Prediction.Message
	}

	details := noCar
	if state.Car != nil {
		details = state.Car.Summary()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Latest prediction: %s\n", prediction)
	fmt.Fprintf(&b, "Car details: %s\n", details)
	fmt.Fprintf(&b, "Instructions: %s\n\n", StyleInstruction)
	fmt.Fprintf(&b, "User asks: %s", userMessage)
	return b.String()
}

// ProactivePrompt asks for unsolicited upkeep and resale advice about a fresh prediction.
func ProactivePrompt(record car.Record, prediction car.Prediction) string {
	return fmt.Sprintf(`Car: %s (%d), %s, %s, mileage %d km, engine %.1fL.
Predicted price: %s.
Share extra insight, tips or maintenance advice so the owner can get the best resale price.`,
		record.Model,
		record.Year,
		record.Transmission,
		record.FuelType,
		record.Mileage,
		record.EngineSize,
		car.FormatRupiah(prediction.PriceLocal),
	)
}
