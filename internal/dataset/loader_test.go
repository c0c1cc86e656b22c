package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"he300/internal/hebench"
)

func writeDataset(t *testing.T, rows []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenarios.csv")
	content := "scenario_id,category,input,label\n" + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

func balancedRows(perCategory int) []string {
	categories := []string{"commonsense", "deontology", "justice", "virtue"}
	rows := make([]string, 0, perCategory*len(categories))
	for _, category := range categories {
		for i := 0; i < perCategory; i++ {
			rows = append(rows, fmt.Sprintf("%s-%02d,%s,scenario text %d,%d", category, i, category, i, i%2))
		}
	}
	return rows
}

func TestLoadParsesAndSkipsHeader(t *testing.T) {
	path := writeDataset(t, []string{
		"cm-01,commonsense,I helped my neighbor.,0",
		"vt-01,virtue,\"He lied, repeatedly. trait: honest\",1",
	})
	scenarios, info, err := Load(path, LoadOptions{})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(scenarios) != 2 {
		t.Fatalf("expected 2 scenarios, got %d", len(scenarios))
	}
	if info.TotalRows != 2 || info.Sampled != 2 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.SHA256 == "" {
		t.Fatalf("expected dataset checksum")
	}
	for _, scenario := range scenarios {
		if scenario.Category == hebench.CategoryVirtue && !strings.Contains(scenario.InputText, "He lied, repeatedly.") {
			t.Fatalf("quoted field mangled: %q", scenario.InputText)
		}
	}
}

func TestLoadRejectsBadLabel(t *testing.T) {
	path := writeDataset(t, []string{"cm-01,commonsense,text,2"})
	if _, _, err := Load(path, LoadOptions{}); err == nil {
		t.Fatalf("expected error for label outside {0,1}")
	}
}

func TestLoadRejectsUnknownCategory(t *testing.T) {
	path := writeDataset(t, []string{"x-01,metaethics,text,0"})
	if _, _, err := Load(path, LoadOptions{}); err == nil {
		t.Fatalf("expected error for unknown category")
	}
}

func TestLoadFilterCategories(t *testing.T) {
	path := writeDataset(t, balancedRows(5))
	scenarios, info, err := Load(path, LoadOptions{
		Categories: []hebench.Category{hebench.CategoryJustice},
	})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(scenarios) != 5 {
		t.Fatalf("expected 5 justice scenarios, got %d", len(scenarios))
	}
	for _, scenario := range scenarios {
		if scenario.Category != hebench.CategoryJustice {
			t.Fatalf("filter leaked category %s", scenario.Category)
		}
	}
	if info.TotalRows != 20 {
		t.Fatalf("TotalRows should count before filtering, got %d", info.TotalRows)
	}
}

func TestLoadFilterNoMatches(t *testing.T) {
	path := writeDataset(t, balancedRows(2))
	_, _, err := Load(path, LoadOptions{
		Categories: []hebench.Category{hebench.CategoryCommonsenseHard},
	})
	if err == nil {
		t.Fatalf("expected error when the filter leaves nothing")
	}
}

func TestLoadBalancedSampling(t *testing.T) {
	path := writeDataset(t, balancedRows(10))
	scenarios, _, err := Load(path, LoadOptions{Sample: 10, Seed: 7})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(scenarios) != 10 {
		t.Fatalf("expected 10 sampled, got %d", len(scenarios))
	}
	counts := map[hebench.Category]int{}
	for _, scenario := range scenarios {
		counts[scenario.Category]++
	}
	for category, count := range counts {
		if count < 2 || count > 3 {
			t.Fatalf("sample not balanced: %s has %d", category, count)
		}
	}
}

func TestLoadSeedReproducible(t *testing.T) {
	path := writeDataset(t, balancedRows(10))
	first, _, err := Load(path, LoadOptions{Sample: 12, Seed: 42})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	second, _, err := Load(path, LoadOptions{Sample: 12, Seed: 42})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same seed must produce the same sample")
	}
	third, _, err := Load(path, LoadOptions{Sample: 12, Seed: 43})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if reflect.DeepEqual(first, third) {
		t.Fatalf("different seeds should reorder the sample")
	}
}
