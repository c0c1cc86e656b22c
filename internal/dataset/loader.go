// Package dataset loads HE-300 scenarios from CSV files and produces
// reproducible, category-balanced samples.
package dataset

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"he300/internal/hebench"
)

// LoadOptions filters and samples the loaded scenario set. A zero Sample
// keeps everything; Seed makes sampling and shuffling reproducible.
type LoadOptions struct {
	Categories []hebench.Category
	Sample     int
	Seed       int64
}

// Load reads a CSV file with columns scenario_id,category,input,label (a
// header row is detected and skipped) and applies filtering and balanced
// sampling.
func Load(path string, opts LoadOptions) ([]hebench.Scenario, *hebench.DatasetInfo, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, nil, fmt.Errorf("read dataset: %w", err)
	}
	scenarios, err := parseCSV(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	totalRows := len(scenarios)
	scenarios = filterCategories(scenarios, opts.Categories)
	if len(scenarios) == 0 {
		return nil, nil, fmt.Errorf("dataset %s has no scenarios for the requested categories", path)
	}
	scenarios = sampleBalanced(scenarios, opts)
	sum := sha256.Sum256(data)
	info := &hebench.DatasetInfo{
		Path:      path,
		TotalRows: totalRows,
		Sampled:   len(scenarios),
		Seed:      opts.Seed,
		SHA256:    hex.EncodeToString(sum[:]),
	}
	return scenarios, info, nil
}

func parseCSV(data []byte) ([]hebench.Scenario, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	scenarios := make([]hebench.Scenario, 0, len(records))
	for i, record := range records {
		if len(record) < 4 {
			return nil, fmt.Errorf("row %d: expected 4 columns, got %d", i+1, len(record))
		}
		if i == 0 && isHeaderRow(record) {
			continue
		}
		category, ok := hebench.ParseCategory(strings.TrimSpace(record[1]))
		if !ok {
			return nil, fmt.Errorf("row %d: unknown category %q", i+1, record[1])
		}
		label, err := strconv.Atoi(strings.TrimSpace(record[3]))
		if err != nil || (label != 0 && label != 1) {
			return nil, fmt.Errorf("row %d: label must be 0 or 1, got %q", i+1, record[3])
		}
		scenarios = append(scenarios, hebench.Scenario{
			ScenarioID:    strings.TrimSpace(record[0]),
			Category:      category,
			InputText:     record[2],
			ExpectedLabel: label,
		})
	}
	return scenarios, nil
}

func isHeaderRow(record []string) bool {
	_, categoryOK := hebench.ParseCategory(strings.TrimSpace(record[1]))
	_, labelErr := strconv.Atoi(strings.TrimSpace(record[3]))
	return !categoryOK && labelErr != nil
}

func filterCategories(scenarios []hebench.Scenario, categories []hebench.Category) []hebench.Scenario {
	if len(categories) == 0 {
		return scenarios
	}
	wanted := make(map[hebench.Category]bool, len(categories))
	for _, category := range categories {
		wanted[category] = true
	}
	out := make([]hebench.Scenario, 0, len(scenarios))
	for _, scenario := range scenarios {
		if wanted[scenario.Category] {
			out = append(out, scenario)
		}
	}
	return out
}

// sampleBalanced splits the requested sample size evenly across the present
// categories, hands the remainder to the first categories in encounter
// order, and finishes with a global seeded shuffle.
func sampleBalanced(scenarios []hebench.Scenario, opts LoadOptions) []hebench.Scenario {
	rng := rand.New(rand.NewSource(opts.Seed))
	if opts.Sample <= 0 || opts.Sample >= len(scenarios) {
		out := append([]hebench.Scenario(nil), scenarios...)
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}

	order := make([]hebench.Category, 0, 5)
	byCategory := make(map[hebench.Category][]hebench.Scenario)
	for _, scenario := range scenarios {
		if _, seen := byCategory[scenario.Category]; !seen {
			order = append(order, scenario.Category)
		}
		byCategory[scenario.Category] = append(byCategory[scenario.Category], scenario)
	}

	base := opts.Sample / len(order)
	remainder := opts.Sample % len(order)
	out := make([]hebench.Scenario, 0, opts.Sample)
	for i, category := range order {
		want := base
		if i < remainder {
			want++
		}
		pool := append([]hebench.Scenario(nil), byCategory[category]...)
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		if want > len(pool) {
			want = len(pool)
		}
		out = append(out, pool[:want]...)
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
