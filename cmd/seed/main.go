// Package main seeds the database with a demo material catalog and opening stock.
package main

import (
	"context"
	"fmt"
	"os"

	"canteiro/internal/app"
	"canteiro/internal/core/apperror"
	"canteiro/internal/core/types"
	"canteiro/internal/domain/catalog"
	"canteiro/internal/domain/ledger"
	"canteiro/pkg/config"
	"canteiro/pkg/logger"
)

type demoMaterial struct {
	code, name, unit string
	threshold        float64
	opening          float64
	unitCost         string
}

var demoCatalog = []demoMaterial{
	{"CIM-CP2-50", "Cimento CP II 50kg", "sc", 20, 120, "38.90"},
	{"ARE-MED", "Areia média lavada", "m3", 5, 30, "145.00"},
	{"BRI-01", "Brita 1", "m3", 5, 25, "160.00"},
	{"ACO-CA50-10", "Vergalhão CA-50 10mm", "br", 50, 400, "52.75"},
	{"TIJ-9F", "Tijolo cerâmico 9 furos", "un", 1000, 8000, "0.95"},
	{"ARG-AC2", "Argamassa colante AC-II 20kg", "sc", 10, 60, "27.40"},
	{"TUB-PVC-50", "Tubo PVC esgoto 50mm 6m", "br", 0, 40, "31.20"},
	{"FIO-2.5", "Cabo flexível 2,5mm² 100m", "rl", 0, 12.5, "289.00"},
}

func main() {
	cfg, err := config.Load(os.Getenv("CANTEIRO_CONFIG"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: "info", Development: true, Service: "canteiro-seed"})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if cfg.Storage.Driver == config.DriverMemory {
		log.Fatal("seeding the in-memory store has no effect; set storage.driver=postgres")
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to wire application", "error", err)
	}
	defer a.Close()

	created, skipped := 0, 0
	for _, d := range demoCatalog {
		ok, err := seedMaterial(ctx, a, d)
		if err != nil {
			log.Fatalw("failed to seed material", "code", d.code, "error", err)
		}
		if ok {
			created++
		} else {
			skipped++
		}
	}
	log.Infow("seed complete", "created", created, "skipped", skipped)
}

// seedMaterial creates the material and books its opening stock. Materials
// that already exist are left untouched.
func seedMaterial(ctx context.Context, a *app.App, d demoMaterial) (bool, error) {
	m, err := a.Catalog.CreateMaterial(ctx, catalog.CreateMaterialCommand{
		Code:         d.code,
		Name:         d.name,
		Unit:         d.unit,
		MinThreshold: types.NewQuantityFromFloat64(d.threshold),
	})
	if apperror.IsCode(err, apperror.CodeDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	cost, err := types.NewMoneyFromString(d.unitCost)
	if err != nil {
		return false, err
	}
	_, err = a.Ledger.RecordEntry(ctx, ledger.EntryCommand{
		MaterialID:  m.ID,
		Quantity:    types.NewQuantityFromFloat64(d.opening),
		Responsible: "seed",
		DocumentRef: "SALDO-INICIAL",
		UnitCost:    &cost,
		Notes:       "opening balance",
	})
	return err == nil, err
}
