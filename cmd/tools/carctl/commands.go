package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
	"github.com/zhouzirui/car-advisor/backend/internal/service/ai"
	"github.com/zhouzirui/car-advisor/backend/internal/service/audit"
	"github.com/zhouzirui/car-advisor/backend/internal/service/predictor"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "carctl",
		Short:         "Operator tool for the car price advisor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newModelsCmd(), newPredictCmd(), newAuditCmd())
	return root
}

func newModelsCmd() *cobra.Command {
	var apiKey string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List Gemini models that support content generation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if apiKey == "" {
				apiKey = os.Getenv("GEMINI_API_KEY")
			}
			models, err := ai.ListModels(cmd.Context(), apiKey)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDISPLAY NAME")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\n", m.Name, m.DisplayName)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Gemini API key (default $GEMINI_API_KEY)")
	return cmd
}

func newPredictCmd() *cobra.Command {
	var (
		src    predictor.Source
		record = car.DefaultRecord()
		trans  string
		fuel   string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run the price model on one car without starting the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			record.Transmission = car.Transmission(trans)
			record.FuelType = car.FuelType(fuel)
			if err := record.Validate(); err != nil {
				return err
			}

			model, err := predictor.NewLoader(src, zap.NewNop()).Get()
			if err != nil {
				return err
			}
			price, err := model.Predict(cmd.Context(), record)
			if err != nil {
				return fmt.Errorf("predict: %w", err)
			}

			p := car.NewPrediction(price)
			fmt.Fprintln(cmd.OutOrStdout(), p.Message)
			fmt.Fprintf(cmd.OutOrStdout(), "tier: %s\n", p.Tier)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&src.ArtifactPath, "artifact", "model.yaml", "model artifact path")
	f.StringVar(&src.RemoteURL, "remote", "", "remote predictor URL, overrides --artifact")
	f.DurationVar(&src.Remote.Timeout, "timeout", 10*time.Second, "remote predictor timeout")
	f.StringVar(&record.Model, "model", record.Model, "car model")
	f.IntVar(&record.Year, "year", record.Year, "registration year")
	f.StringVar(&trans, "transmission", string(record.Transmission), "one of "+joinChoices(car.Transmissions()))
	f.IntVar(&record.Mileage, "mileage", record.Mileage, "mileage")
	f.StringVar(&fuel, "fuel", string(record.FuelType), "one of "+joinChoices(car.FuelTypes()))
	f.IntVar(&record.Tax, "tax", record.Tax, "road tax in GBP")
	f.Float64Var(&record.MPG, "mpg", record.MPG, "fuel economy")
	f.Float64Var(&record.EngineSize, "engine-size", record.EngineSize, "engine size in litres")
	return cmd
}

func newAuditCmd() *cobra.Command {
	var (
		path  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the latest audited predictions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = os.Getenv("AUDIT_DB_PATH")
			}
			if path == "" {
				return fmt.Errorf("no audit database: pass --db or set AUDIT_DB_PATH")
			}

			rec, err := audit.OpenSQLite(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer rec.Close()

			entries, err := rec.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSESSION\tMODEL\tPRICE\tTIER")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Format(time.RFC3339), e.SessionID, e.Record.Model, car.FormatRupiah(e.PriceLocal), e.Tier)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&path, "db", "", "audit database path (default $AUDIT_DB_PATH)")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries")
	return cmd
}

func joinChoices[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
