package car

import (
	"errors"
	"fmt"
	"strings"
)

// Transmission 变速箱类型。
type Transmission string

const (
	Manual    Transmission = "Manual"
	Automatic Transmission = "Automatic"
	SemiAuto  Transmission = "Semi-Auto"
)

// Transmissions returns the choices offered by the form, in display order.
func Transmissions() []Transmission {
	return []Transmission{Manual, Automatic, SemiAuto}
}

// FuelType 燃料类型。
type FuelType string

const (
	Petrol   FuelType = "Petrol"
	Diesel   FuelType = "Diesel"
	Hybrid   FuelType = "Hybrid"
	Electric FuelType = "Electric"
)

// FuelTypes returns the choices offered by the form, in display order.
func FuelTypes() []FuelType {
	return []FuelType{Petrol, Diesel, Hybrid, Electric}
}

// Range is an inclusive numeric bound for a form field.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Limits holds the accepted range of every numeric field.
type Limits struct {
	Year       Range `json:"year"`
	Mileage    Range `json:"mileage"`
	Tax        Range `json:"tax"`
	MPG        Range `json:"mpg"`
	EngineSize Range `json:"engineSize"`
}

// FormLimits are the bounds enforced by the input surface.
var FormLimits = Limits{
	Year:       Range{Min: 1990, Max: 2025},
	Mileage:    Range{Min: 0, Max: 300000},
	Tax:        Range{Min: 0, Max: 1000},
	MPG:        Range{Min: 0, Max: 200},
	EngineSize: Range{Min: 0.5, Max: 6.0},
}

// ErrInvalidRecord marks a record rejected by Validate.
var ErrInvalidRecord = errors.New("invalid car record")

// Record is one submission of the car form. Field names follow the columns the
// price model was trained on.
type Record struct {
	Model        string       `json:"model" yaml:"model"`
	Year         int          `json:"year" yaml:"year"`
	Transmission Transmission `json:"transmission" yaml:"transmission"`
	Mileage      int          `json:"mileage" yaml:"mileage"`
	FuelType     FuelType     `json:"fuelType" yaml:"fuelType"`
	Tax          int          `json:"tax" yaml:"tax"`
	MPG          float64      `json:"mpg" yaml:"mpg"`
	EngineSize   float64      `json:"engineSize" yaml:"engineSize"`
}

// DefaultRecord returns the values the form is pre-filled with.
func DefaultRecord() Record {
	return Record{
		Model:        "Audi A1",
		Year:         2017,
		Transmission: Manual,
		Mileage:      35000,
		FuelType:     Petrol,
		Tax:          30,
		MPG:          55.4,
		EngineSize:   1.4,
	}
}

// Validate checks ranges and enum membership. The orchestrators trust records
// they receive; this is for the input surface.
func (r Record) Validate() error {
	var problems []string

	if strings.TrimSpace(r.Model) == "" {
		problems = append(problems, "model is required")
	}
	if !FormLimits.Year.contains(float64(r.Year)) {
		problems = append(problems, fmt.Sprintf("year must be between %d and %d", int(FormLimits.Year.Min), int(FormLimits.Year.Max)))
	}
	if !validTransmission(r.Transmission) {
		problems = append(problems, fmt.Sprintf("unsupported transmission %q", r.Transmission))
	}
	if !FormLimits.Mileage.contains(float64(r.Mileage)) {
		problems = append(problems, fmt.Sprintf("mileage must be between %d and %d", int(FormLimits.Mileage.Min), int(FormLimits.Mileage.Max)))
	}
	if !validFuelType(r.FuelType) {
		problems = append(problems, fmt.Sprintf("unsupported fuel type %q", r.FuelType))
	}
	if !FormLimits.Tax.contains(float64(r.Tax)) {
		problems = append(problems, fmt.Sprintf("tax must be between %d and %d", int(FormLimits.Tax.Min), int(FormLimits.Tax.Max)))
	}
	if !FormLimits.MPG.contains(r.MPG) {
		problems = append(problems, fmt.Sprintf("mpg must be between %.1f and %.1f", FormLimits.MPG.Min, FormLimits.MPG.Max))
	}
	if !FormLimits.EngineSize.contains(r.EngineSize) {
		problems = append(problems, fmt.Sprintf("engineSize must be between %.1f and %.1f", FormLimits.EngineSize.Min, FormLimits.EngineSize.Max))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(problems, "; "))
	}
	return nil
}

// Summary renders the record on one line, used in prompts and logs.
func (r Record) Summary() string {
	return fmt.Sprintf("model=%s, year=%d, transmission=%s, mileage=%d, fuelType=%s, tax=%d, mpg=%.1f, engineSize=%.1f",
		r.Model, r.Year, r.Transmission, r.Mileage, r.FuelType, r.Tax, r.MPG, r.EngineSize)
}

func validTransmission(t Transmission) bool {
	for _, candidate := range Transmissions() {
		if candidate == t {
			return true
		}
	}
	return false
}

func validFuelType(f FuelType) bool {
	for _, candidate := range FuelTypes() {
		if candidate == f {
			return true
		}
	}
	return false
}
