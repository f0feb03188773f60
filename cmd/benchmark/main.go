// Benchmark tool for testing Saqr against labeled scan data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/scans.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled Shadow ID scan data (with fraud labels)
//   2. Sends each scan to Saqr for assessment
//   3. Compares Saqr's verdict (High vs Low/Medium) with actual fraud labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledScan represents a row from the labeled scan dataset.
type LabeledScan struct {
	NationalID         string
	PersonType         string
	Nationality        string
	CreatedAt          string
	ExpiresAt          string
	ScannedAt          string
	GenerationDevice   string
	ScanDevice         string
	GenerationLocation string
	ScanLocation       string
	Used               bool
	IsFraud            bool
}

// AssessRequest is the Saqr API request format.
type AssessRequest struct {
	User struct {
		NationalID  string `json:"nationalId"`
		PersonType  string `json:"personType"`
		Nationality string `json:"nationality"`
	} `json:"user"`
	ShadowID struct {
		CreatedAt          string `json:"createdAt"`
		ExpiresAt          string `json:"expiresAt"`
		DeviceFingerprint  string `json:"deviceFingerprint"`
		GenerationLocation string `json:"generationLocation"`
		Used               bool   `json:"used,omitempty"`
	} `json:"shadowId"`
	Scan struct {
		Location          string `json:"location"`
		Timestamp         string `json:"timestamp"`
		DeviceFingerprint string `json:"deviceFingerprint"`
	} `json:"scan"`
}

// AssessResponse is the Saqr API response format.
type AssessResponse struct {
	AssessmentID string   `json:"assessmentId"`
	RiskScore    int      `json:"riskScore"`
	RiskLevel    string   `json:"riskLevel"`
	Alerts       []string `json:"alerts"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Fraud assessed High
	FalsePositives int64 // Non-fraud assessed High
	TrueNegatives  int64 // Non-fraud assessed Low/Medium
	FalseNegatives int64 // Fraud assessed Low/Medium (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled scan CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Saqr base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum scans to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test fraud scans")
	verbose := flag.Bool("verbose", false, "Print each scan result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/scans.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           SAQR BENCHMARK - Shadow ID Scan Assessment          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Saqr URL:    %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fraud Only:  %v\n", *fraudOnly)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Saqr not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Saqr is running:")
		fmt.Println("  cd saqr && go run cmd/saqr/main.go serve")
		os.Exit(1)
	}
	fmt.Println("✓ Saqr is healthy")

	fmt.Printf("\nReading scan data from %s...\n", *csvPath)
	scans, err := readScanCSV(*csvPath, *limit, *fraudOnly)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d scans\n", len(scans))

	fraudCount := 0
	for _, s := range scans {
		if s.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(scans)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(scans)-fraudCount, 100*float64(len(scans)-fraudCount)/float64(len(scans)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(scans, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readScanCSV(path string, limit int, fraudOnly bool) ([]LabeledScan, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	field := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	var scans []LabeledScan

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isFraud := field(record, "isfraud") == "1"
		if fraudOnly && !isFraud {
			continue
		}

		scans = append(scans, LabeledScan{
			NationalID:         field(record, "nationalid"),
			PersonType:         field(record, "persontype"),
			Nationality:        field(record, "nationality"),
			CreatedAt:          field(record, "createdat"),
			ExpiresAt:          field(record, "expiresat"),
			ScannedAt:          field(record, "scannedat"),
			GenerationDevice:   field(record, "generationdevice"),
			ScanDevice:         field(record, "scandevice"),
			GenerationLocation: field(record, "generationlocation"),
			ScanLocation:       field(record, "scanlocation"),
			Used:               field(record, "used") == "1",
			IsFraud:            isFraud,
		})

		if limit > 0 && len(scans) >= limit {
			break
		}
	}

	return scans, nil
}

func runBenchmark(scans []LabeledScan, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledScan, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for scan := range work {
				start := time.Now()
				result, err := assessScan(client, baseURL, tenantID, scan)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", scan.NationalID, err)
					}
					continue
				}

				if scan.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				predicted := result.RiskLevel == "High"
				actual := scan.IsFraud

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					id := scan.NationalID
					if len(id) > 10 {
						id = id[:10]
					}
					fmt.Printf("%s %-10s | City: %-10s | Fraud: %-5v | Saqr: %-6s (%d) | Reused: %v\n",
						status,
						id,
						scan.ScanLocation,
						scan.IsFraud,
						result.RiskLevel,
						result.RiskScore,
						scan.Used,
					)
				}
			}
		}()
	}

	for _, scan := range scans {
		work <- scan
	}
	close(work)

	wg.Wait()

	return metrics
}

func assessScan(client *http.Client, baseURL, tenantID string, scan LabeledScan) (*AssessResponse, error) {
	var req AssessRequest
	req.User.NationalID = scan.NationalID
	req.User.PersonType = scan.PersonType
	req.User.Nationality = scan.Nationality
	req.ShadowID.CreatedAt = scan.CreatedAt
	req.ShadowID.ExpiresAt = scan.ExpiresAt
	req.ShadowID.DeviceFingerprint = scan.GenerationDevice
	req.ShadowID.GenerationLocation = scan.GenerationLocation
	req.ShadowID.Used = scan.Used
	req.Scan.Location = scan.ScanLocation
	req.Scan.Timestamp = scan.ScannedAt
	req.Scan.DeviceFingerprint = scan.ScanDevice

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/assess", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AssessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    High        Low/Med")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of High verdicts, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f scans/sec\n", tps)
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most fraud")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some fraud")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant fraud being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most fraud is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - alerts are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
