// cmd/carscrapexter/main_test.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valpere/CarScrapexter/internal/config"
	"github.com/valpere/CarScrapexter/internal/errors"
	"github.com/valpere/CarScrapexter/internal/scraper"
)

func TestCLIVersion(t *testing.T) {
	version = "test-version"
	buildTime = "2026-10-19"
	gitCommit = "abc123"

	output := captureOutput(func() {
		printVersion()
	})

	for _, want := range []string{"test-version", "2026-10-19", "abc123"} {
		if !strings.Contains(output, want) {
			t.Errorf("version output should contain %q, got: %s", want, output)
		}
	}
}

func TestCLIHelp(t *testing.T) {
	output := captureOutput(func() {
		printUsage()
	})

	commands := []string{"run", "validate", "template", "version", "help"}
	for _, cmd := range commands {
		if !strings.Contains(output, cmd) {
			t.Errorf("help output should contain command %q, got: %s", cmd, output)
		}
	}
}

func TestGenerateTemplate(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, "type: memory"},
		{[]string{"--type", "sqlite"}, "type: sqlite"},
		{[]string{"--type", "excel"}, "vehicles.xlsx"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := generateTemplate(tt.args)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("Expected template to contain %q, got:\n%s", tt.want, out)
			}
			if _, err := config.LoadFromBytes([]byte(out)); err != nil {
				t.Errorf("Template does not load back: %v", err)
			}
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestExecuteValidation(t *testing.T) {
	valid := writeConfig(t, `
name: test
dealers:
  - name: Lakeside Motors
    url: https://lot.test/
`)
	var out bytes.Buffer
	if err := executeValidation(&out, valid, true); err != nil {
		t.Fatalf("Expected valid configuration, got %v", err)
	}
	if !strings.Contains(out.String(), "Lakeside Motors") {
		t.Errorf("Expected verbose details, got: %s", out.String())
	}

	invalid := writeConfig(t, `
name: test
dealers:
  - name: Broken
    url: not-a-url
`)
	err := executeValidation(io.Discard, invalid, false)
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if errors.KindOf(err) != errors.KindConfig {
		t.Errorf("Expected a config error, got %v", errors.KindOf(err))
	}
	if code := errorService.GetExitCode(err); code != 2 {
		t.Errorf("Expected exit code 2, got %d", code)
	}
}

func TestExecuteRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html><body><a href="/inventory">Inventory</a></body></html>`))
	})
	mux.HandleFunc("/inventory", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="inventory-grid">
			<div class="vehicle-card"><h3>2021 Toyota Camry</h3> <span>$24,599</span> 32,000 miles VIN: 4T1G11AK5MU123456</div>
			<div class="vehicle-card"><h3>2019 Honda Civic</h3> <span>$18,250</span> 41,000 miles VIN: 2HGFC2F59KH123456</div>
		</div></body></html>`))
	})
	site := httptest.NewServer(mux)
	defer site.Close()

	outPath := filepath.Join(t.TempDir(), "vehicles.json")
	cfgPath := writeConfig(t, `
name: cli-test
dealers:
  - name: Lakeside Motors
    url: `+site.URL+`/
fetch:
  requests_per_second: 50
  burst: 10
browser:
  mode: never
store:
  type: json
  path: `+outPath+`
logging:
  level: error
`)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := executeRun(ctx, cfgPath, false)
	if err != nil {
		t.Fatalf("Expected successful run, got %v", err)
	}
	if snap == nil || snap.RecordsStored != 2 {
		t.Fatalf("Expected 2 stored records, got %+v", snap)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("Expected the JSON export, got %v", err)
	}
	var records []map[string]interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("Export is not JSON: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 exported records, got %d", len(records))
	}

	var out bytes.Buffer
	printSummary(&out, *snap, false)
	for _, want := range []string{"2 stored", "Lakeside Motors: succeeded"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestExecuteRun_MissingConfig(t *testing.T) {
	snap, err := executeRun(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), false)
	if err == nil {
		t.Fatal("Expected error for a missing configuration file")
	}
	if snap != nil {
		t.Error("Expected no summary when the run never started")
	}
}

func TestPrintSummary_JSON(t *testing.T) {
	snap := scraper.SummarySnapshot{
		RecordsStored: 3,
		ErrorsByKind:  map[string]int64{"transient": 2},
		Dealers:       []scraper.DealerResult{{Name: "Lakeside Motors", Outcome: scraper.DealerSucceeded, Stored: 3}},
	}

	var out bytes.Buffer
	printSummary(&out, snap, true)

	var decoded scraper.SummarySnapshot
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("Expected JSON summary, got %v", err)
	}
	if decoded.RecordsStored != 3 || decoded.ErrorsByKind["transient"] != 2 {
		t.Errorf("Unexpected decoded summary: %+v", decoded)
	}
}

// captureOutput captures stdout during function execution
func captureOutput(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		io.Copy(&buf, r)
		outC <- buf.String()
	}()

	f()
	w.Close()
	os.Stdout = old
	out := <-outC

	return out
}
