package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohammed-shakir/spatial-entities/internal/core/httpclient"
)

type Config struct {
	TargetURL       string
	LayerName       string
	Concurrency     int
	Duration        time.Duration
	ZipfS           float64
	ZipfV           float64
	BBoxCount       int
	WriteRatio      float64
	FirstInsertID   uint64
	Format          string
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8090", "spatiald base URL")
	flag.StringVar(&cfg.LayerName, "layer", "poi", "Collection name")
	flag.IntVar(&cfg.Concurrency, "concurrency", 32, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.BBoxCount, "bboxes", 128, "Distinct BBOXes in pool")
	flag.Float64Var(&cfg.WriteRatio, "write-ratio", 0, "Share of requests that insert a new feature (0..1)")
	flag.Uint64Var(&cfg.FirstInsertID, "first-id", 0, "First id used for inserts (default derived from start time)")
	flag.StringVar(&cfg.Format, "f", "json", "Response format: json|fgb")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/loadgen", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append UTC timestamp to output prefix")
	flag.Parse()
	return cfg
}

var area = BBox{17.6, 59.1, 18.6, 59.6}

// request result (one sample per request)
type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Kind      string
	Status    int
	ErrorMsg  string
	BoxIndex  int
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	ErrorCount    int64     `json:"errors"`
	Inserts       int64     `json:"inserts"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	BBoxes        int       `json:"bboxes"`
	WriteRatio    float64   `json:"write_ratio"`
	TargetURL     string    `json:"target"`
	LayerName     string    `json:"layer"`
}

type aggregatedResult struct {
	total   int64
	success int64
	errors  int64
	inserts int64
	latMs   []float64
}

func main() {
	cfg := loadConfig()
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}
	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
	}

	seed := time.Now().UnixNano()
	bboxes := makeBBoxes(cfg.BBoxCount, area, rand.New(rand.NewSource(seed)))
	if len(bboxes) == 0 {
		log.Fatalf("no BBOXes generated")
	}
	imax := uint64(len(bboxes)) - 1

	itemsURL := strings.TrimRight(cfg.TargetURL, "/") + "/collections/" + url.PathEscape(cfg.LayerName) + "/items"
	var nextID atomic.Uint64
	if cfg.FirstInsertID == 0 {
		cfg.FirstInsertID = uint64(time.Now().Unix()) << 20
	}
	nextID.Store(cfg.FirstInsertID)

	httpClient := httpclient.NewOutbound(
		httpclient.WithTimeout(cfg.RequestTimeout),
		httpclient.WithPool(1024, 256))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "kind", "status", "error", "bbox_idx"})
		var agg aggregatedResult
		agg.latMs = make([]float64, 0, 1<<16)
		for s := range samplesChan {
			agg.total++
			ms := float64(s.Latency.Microseconds()) / 1000.0
			if s.ErrorMsg == "" {
				agg.success++
				agg.latMs = append(agg.latMs, ms)
				if s.Kind == "insert" {
					agg.inserts++
				}
			} else {
				agg.errors++
			}
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", ms),
				s.Kind,
				fmt.Sprintf("%d", s.Status),
				s.ErrorMsg,
				fmt.Sprintf("%d", s.BoxIndex),
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Printf("csv flush error: %v", err)
		}
		resultsChan <- agg
	}()

	startTime := time.Now()
	log.Printf("loadgen start target=%s layer=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) bboxes=%d writes=%.2f",
		itemsURL, cfg.LayerName, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, len(bboxes), cfg.WriteRatio)

	var wg sync.WaitGroup
	for workerID := range cfg.Concurrency {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rWorker := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipfDist := rand.NewZipf(rWorker, cfg.ZipfS, cfg.ZipfV, imax)
			for ctx.Err() == nil {
				var (
					req *http.Request
					s   = sample{Timestamp: time.Now(), BoxIndex: -1}
				)
				if cfg.WriteRatio > 0 && rWorker.Float64() < cfg.WriteRatio {
					s.Kind = "insert"
					body := insertBody(nextID.Add(1), area, rWorker)
					req, _ = http.NewRequestWithContext(ctx, http.MethodPost, itemsURL, bytes.NewReader(body))
					req.Header.Set("Content-Type", "application/geo+json")
				} else {
					v := zipfDist.Uint64()
					if v > uint64(math.MaxInt) || int(v) >= len(bboxes) {
						continue
					}
					s.Kind, s.BoxIndex = "query", int(v)
					q := url.Values{"bbox": {bboxes[v].String()}}
					if cfg.Format == "fgb" {
						q.Set("f", "fgb")
					}
					req, _ = http.NewRequestWithContext(ctx, http.MethodGet, itemsURL+"?"+q.Encode(), nil)
				}

				start := time.Now()
				resp, err := httpClient.Do(req)
				s.Latency = time.Since(start)
				if err != nil {
					s.ErrorMsg = err.Error()
				} else {
					s.Status = resp.StatusCode
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
					if resp.StatusCode < 200 || resp.StatusCode >= 300 {
						s.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
					}
				}

				select {
				case samplesChan <- s:
				case <-ctx.Done():
					return
				}
			}
		}(workerID)
	}

	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	agg := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(agg.latMs)
	runSummary := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: agg.total,
		SuccessCount:  agg.success,
		ErrorCount:    agg.errors,
		Inserts:       agg.inserts,
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         percentile(agg.latMs, 50),
		P95Ms:         percentile(agg.latMs, 95),
		P99Ms:         percentile(agg.latMs, 99),
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		BBoxes:        len(bboxes),
		WriteRatio:    cfg.WriteRatio,
		TargetURL:     cfg.TargetURL,
		LayerName:     cfg.LayerName,
	}

	if jsonFile, err := os.Create(filepath.Clean(jsonPath)); err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(runSummary)
		_ = jsonFile.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d inserts=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		agg.total, agg.success, agg.errors, agg.inserts, runSummary.ThroughputRPS,
		runSummary.P50Ms, runSummary.P95Ms, runSummary.P99Ms)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}
