//go:build ignore

package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"subpromo/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan ids match scripts/seed_demo_data.go.
var (
	basicPlanID   = uuid.MustParse("9a4c1e0e-3f1b-4a55-9d61-0d5b1f3a0001")
	premiumPlanID = uuid.MustParse("9a4c1e0e-3f1b-4a55-9d61-0d5b1f3a0002")
	vipUserID     = uuid.MustParse("4f0e2b7c-8d3a-4c1e-a5b9-6e2f7d1c0001")
)

// main writes gzipped JSON-lines promo catalogs under data/promos:
//
//	seasonal.jsonl.gz  open percentage and fixed codes
//	targeted.jsonl.gz  plan- and user-restricted codes, one deliberately invalid line
func main() {
	dataDir := "data/promos"

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	start := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	end := start.AddDate(0, 3, 0)
	limit := func(n int) *int { return &n }
	amount := func(v int64) *decimal.Decimal { d := decimal.NewFromInt(v); return &d }

	catalogs := map[string][]any{
		"seasonal.jsonl.gz": {
			"# seasonal campaigns",
			definition("WELCOME20", "20% off your first subscription", model.DiscountPercentage, 20, start, nil, func(d *model.PromoCodeDefinition) {
				d.IsFirstTimeOnly = true
				d.MaxDiscountAmount = amount(50)
			}),
			definition("FLAT10", "10 off any plan", model.DiscountFixed, 10, start, &end, func(d *model.PromoCodeDefinition) {
				d.UsageLimit = limit(1000)
			}),
			definition("LAUNCH5", "5 early adopters only", model.DiscountPercentage, 50, start, &end, func(d *model.PromoCodeDefinition) {
				d.UsageLimit = limit(5)
			}),
		},
		"targeted.jsonl.gz": {
			definition("PREMIUM15", "15% off premium", model.DiscountPercentage, 15, start, &end, func(d *model.PromoCodeDefinition) {
				d.ApplicableTo = model.ApplicableSpecificPlans
				d.PlanIDs = []uuid.UUID{premiumPlanID}
			}),
			definition("VIPONLY", "VIP thank you", model.DiscountFixed, 25, start, nil, func(d *model.PromoCodeDefinition) {
				d.ApplicableTo = model.ApplicableSpecificUsers
				d.UserIDs = []uuid.UUID{vipUserID}
			}),
			definition("BROKEN", "rejected on import", model.DiscountPercentage, 150, start, nil, nil),
			definition("BASIC5", "5 off basic", model.DiscountFixed, 5, start, nil, func(d *model.PromoCodeDefinition) {
				d.ApplicableTo = model.ApplicableSpecificPlans
				d.PlanIDs = []uuid.UUID{basicPlanID}
			}),
		},
	}

	for filename, lines := range catalogs {
		filePath := filepath.Join(dataDir, filename)

		if err := createCatalogFile(filePath, lines); err != nil {
			log.Fatalf("Failed to create %s: %v", filename, err)
		}

		fmt.Printf("Created %s with %d lines\n", filePath, len(lines))
	}

	fmt.Println("\nSample promo catalogs created successfully!")
}

func definition(code, description string, kind model.DiscountType, value int64, start time.Time, end *time.Time, mutate func(d *model.PromoCodeDefinition)) model.PromoCodeDefinition {
	def := model.PromoCodeDefinition{
		PromoCode: model.PromoCode{
			Code:          code,
			Description:   description,
			DiscountType:  kind,
			DiscountValue: decimal.NewFromInt(value),
			StartDate:     start,
			EndDate:       end,
			IsActive:      true,
			ApplicableTo:  model.ApplicableAll,
		},
	}
	if mutate != nil {
		mutate(&def)
	}
	return def
}

// createCatalogFile writes one line per entry; strings are written verbatim.
func createCatalogFile(filePath string, lines []any) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	enc := json.NewEncoder(gzipWriter)
	for _, line := range lines {
		if s, ok := line.(string); ok {
			if _, err := fmt.Fprintln(gzipWriter, s); err != nil {
				return fmt.Errorf("failed to write line: %w", err)
			}
			continue
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode definition: %w", err)
		}
	}

	return nil
}
