package predictor

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
)

// Artifact is a linear price model exported to YAML: an intercept, one
// coefficient per numeric column and one-hot weights for categorical columns.
type Artifact struct {
	ModelName     string                        `yaml:"name"`
	Intercept     float64                       `yaml:"intercept"`
	Numeric       map[string]float64            `yaml:"numeric"`
	Categorical   map[string]map[string]float64 `yaml:"categorical"`
	HandleUnknown string                        `yaml:"handleUnknown"`
	MinPrice      float64                       `yaml:"minPrice"`
}

var numericColumns = []string{"year", "mileage", "tax", "mpg", "engineSize"}

var categoricalColumns = []string{"model", "transmission", "fuelType"}

// LoadArtifact reads and validates an artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	return ParseArtifact(raw)
}

// ParseArtifact decodes an artifact from YAML.
func ParseArtifact(raw []byte) (*Artifact, error) {
	var a Artifact
	if err := yaml.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Artifact) validate() error {
	switch strings.ToLower(a.HandleUnknown) {
	case "":
		a.HandleUnknown = "error"
	case "error", "ignore":
		a.HandleUnknown = strings.ToLower(a.HandleUnknown)
	default:
		return fmt.Errorf("model artifact: invalid handleUnknown %q", a.HandleUnknown)
	}

	var missing []string
	for _, col := range numericColumns {
		if _, ok := a.Numeric[col]; !ok {
			missing = append(missing, col)
		}
	}
	for _, col := range categoricalColumns {
		if _, ok := a.Categorical[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("model artifact: missing columns %s", strings.Join(missing, ", "))
	}
	return nil
}

// Name identifies the artifact in logs.
func (a *Artifact) Name() string {
	if a.ModelName == "" {
		return "artifact"
	}
	return a.ModelName
}

// Predict evaluates the linear model.
func (a *Artifact) Predict(ctx context.Context, record car.Record) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	price := a.Intercept
	price += a.Numeric["year"] * float64(record.Year)
	price += a.Numeric["mileage"] * float64(record.Mileage)
	price += a.Numeric["tax"] * float64(record.Tax)
	price += a.Numeric["mpg"] * record.MPG
	price += a.Numeric["engineSize"] * record.EngineSize

	for _, col := range []struct {
		name  string
		value string
	}{
		{"model", record.Model},
		{"transmission", string(record.Transmission)},
		{"fuelType", string(record.FuelType)},
	} {
		w, err := a.weight(col.name, col.value)
		if err != nil {
			return 0, err
		}
		price += w
	}

	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("model produced non-finite price")
	}
	return math.Max(price, a.MinPrice), nil
}

func (a *Artifact) weight(column, value string) (float64, error) {
	weights := a.Categorical[column]
	value = strings.TrimSpace(value)
	if w, ok := weights[value]; ok {
		return w, nil
	}
	for k, w := range weights {
		if strings.EqualFold(strings.TrimSpace(k), value) {
			return w, nil
		}
	}
	if a.HandleUnknown == "ignore" {
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %s=%q", ErrUnknownCategory, column, value)
}
