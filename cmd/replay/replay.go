package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/domain"
)

// Activity is one replayed row.
type Activity struct {
	Request api.DetectRequest
	// Label is nil when the file carries no is_fraud column.
	Label *bool
}

// readActivities parses a CSV with a header row. Required columns are
// agent_id, kind and timestamp (RFC 3339); id, latitude, longitude,
// accuracy, source, customer_id, amount, duration_seconds and is_fraud are
// optional. Rows are returned sorted by timestamp.
func readActivities(r io.Reader, limit int) ([]Activity, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := make(map[string]int)
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"agent_id", "kind", "timestamp"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	get := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var out []Activity
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		a, err := parseRow(rec, get)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, a)

		if limit > 0 && len(out) >= limit {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Request.Timestamp.Before(*out[j].Request.Timestamp)
	})
	return out, nil
}

func parseRow(rec []string, get func([]string, string) string) (Activity, error) {
	var a Activity
	req := &a.Request

	ts, err := time.Parse(time.RFC3339, get(rec, "timestamp"))
	if err != nil {
		return a, fmt.Errorf("timestamp: %w", err)
	}
	req.ID = get(rec, "id")
	req.AgentID = get(rec, "agent_id")
	req.Kind = get(rec, "kind")
	req.Timestamp = &ts
	req.CustomerID = get(rec, "customer_id")

	if lat, lng := get(rec, "latitude"), get(rec, "longitude"); lat != "" && lng != "" {
		loc := &api.LocationRequest{Source: get(rec, "source")}
		if loc.Latitude, err = strconv.ParseFloat(lat, 64); err != nil {
			return a, fmt.Errorf("latitude: %w", err)
		}
		if loc.Longitude, err = strconv.ParseFloat(lng, 64); err != nil {
			return a, fmt.Errorf("longitude: %w", err)
		}
		if v := get(rec, "accuracy"); v != "" {
			if loc.Accuracy, err = strconv.ParseFloat(v, 64); err != nil {
				return a, fmt.Errorf("accuracy: %w", err)
			}
		}
		req.Location = loc
	}

	if v := get(rec, "amount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return a, fmt.Errorf("amount: %w", err)
		}
		req.Amount = &amount
	}

	if v := get(rec, "duration_seconds"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return a, fmt.Errorf("duration_seconds: %w", err)
		}
		req.DurationSeconds = &d
	}

	if v := get(rec, "is_fraud"); v != "" {
		label := v == "1" || strings.EqualFold(v, "true")
		a.Label = &label
	}
	return a, nil
}

// Report aggregates replay outcomes.
type Report struct {
	mu sync.Mutex

	Processed int
	Errors    int
	Degraded  int
	ByLevel   map[domain.RiskLevel]int
	ByFlag    map[string]int

	// Confusion matrix over labelled rows; HIGH and CRITICAL are detections.
	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int

	TotalLatency time.Duration
}

func newReport() *Report {
	return &Report{
		ByLevel: make(map[domain.RiskLevel]int),
		ByFlag:  make(map[string]int),
	}
}

func (r *Report) record(a Activity, result *domain.FraudResult, elapsed time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Processed++
	r.TotalLatency += elapsed
	if err != nil {
		r.Errors++
		return
	}

	r.ByLevel[result.RiskLevel]++
	if result.Degraded {
		r.Degraded++
	}
	for _, f := range result.Flags {
		r.ByFlag[string(f.Category)+": "+f.Description]++
	}

	if a.Label == nil {
		return
	}
	predicted := result.RiskLevel == domain.RiskHigh || result.RiskLevel == domain.RiskCritical
	switch {
	case predicted && *a.Label:
		r.TruePositives++
	case predicted:
		r.FalsePositives++
	case *a.Label:
		r.FalseNegatives++
	default:
		r.TrueNegatives++
	}
}

// replay sends activities with a fixed worker per agent, so each agent's
// history arrives in timestamp order.
func replay(client *http.Client, baseURL string, activities []Activity, workers int, verbose bool) *Report {
	if workers < 1 {
		workers = 1
	}
	report := newReport()

	queues := make([]chan Activity, workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan Activity, 100)
		wg.Add(1)
		go func(work <-chan Activity) {
			defer wg.Done()
			for a := range work {
				start := time.Now()
				result, err := detect(client, baseURL, a.Request)
				report.record(a, result, time.Since(start), err)

				if verbose {
					if err != nil {
						fmt.Printf("ERROR %-12s %-15s %v\n", a.Request.AgentID, a.Request.Kind, err)
					} else {
						fmt.Printf("%-8s %-12s %-15s score=%5.1f flags=%d\n",
							result.RiskLevel, a.Request.AgentID, a.Request.Kind, result.RiskScore, len(result.Flags))
					}
				}
			}
		}(queues[i])
	}

	for _, a := range activities {
		queues[shard(a.Request.AgentID, workers)] <- a
	}
	for _, q := range queues {
		close(q)
	}
	wg.Wait()

	return report
}

func shard(agentID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(agentID))
	return int(h.Sum32() % uint32(n))
}

func detect(client *http.Client, baseURL string, req api.DetectRequest) (*domain.FraudResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/v1/detect", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error  string   `json:"error"`
			Fields []string `json:"fields"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		msg := apiErr.Error
		if len(apiErr.Fields) > 0 {
			msg += ": " + strings.Join(apiErr.Fields, "; ")
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}

	var result domain.FraudResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.RiskLevel == "" {
		return nil, errors.New("response without risk level")
	}
	return &result, nil
}

// Print writes the summary.
func (r *Report) Print(w io.Writer, duration time.Duration) {
	fmt.Fprintln(w, "\n+---------------------------------------------------------------+")
	fmt.Fprintln(w, "|                        REPLAY RESULTS                         |")
	fmt.Fprintln(w, "+---------------------------------------------------------------+")

	fmt.Fprintf(w, "\nProcessed:  %d\n", r.Processed)
	fmt.Fprintf(w, "Errors:     %d\n", r.Errors)
	fmt.Fprintf(w, "Degraded:   %d\n", r.Degraded)

	scored := r.Processed - r.Errors
	fmt.Fprintln(w, "\nRISK LEVELS")
	for _, level := range []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh, domain.RiskCritical} {
		n := r.ByLevel[level]
		fmt.Fprintf(w, "   %-9s %8d  (%5.1f%%)\n", level, n, percent(n, scored))
	}

	if len(r.ByFlag) > 0 {
		fmt.Fprintln(w, "\nTOP FLAGS")
		type kv struct {
			k string
			n int
		}
		flags := make([]kv, 0, len(r.ByFlag))
		for k, n := range r.ByFlag {
			flags = append(flags, kv{k, n})
		}
		sort.Slice(flags, func(i, j int) bool {
			if flags[i].n != flags[j].n {
				return flags[i].n > flags[j].n
			}
			return flags[i].k < flags[j].k
		})
		for i, f := range flags {
			if i == 10 {
				break
			}
			fmt.Fprintf(w, "   %8d  %s\n", f.n, f.k)
		}
	}

	if labelled := r.TruePositives + r.FalsePositives + r.TrueNegatives + r.FalseNegatives; labelled > 0 {
		precision := ratio(r.TruePositives, r.TruePositives+r.FalsePositives)
		recall := ratio(r.TruePositives, r.TruePositives+r.FalseNegatives)
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		fmt.Fprintln(w, "\nCONFUSION MATRIX (HIGH/CRITICAL = detected)")
		fmt.Fprintf(w, "   True Positives:   %d\n", r.TruePositives)
		fmt.Fprintf(w, "   False Positives:  %d\n", r.FalsePositives)
		fmt.Fprintf(w, "   True Negatives:   %d\n", r.TrueNegatives)
		fmt.Fprintf(w, "   False Negatives:  %d\n", r.FalseNegatives)
		fmt.Fprintf(w, "   Precision: %.3f  Recall: %.3f  F1: %.3f\n", precision, recall, f1)
	}

	fmt.Fprintln(w, "\nPERFORMANCE")
	fmt.Fprintf(w, "   Duration:    %s\n", duration.Round(time.Millisecond))
	if r.Processed > 0 {
		fmt.Fprintf(w, "   Avg latency: %s\n", (r.TotalLatency / time.Duration(r.Processed)).Round(time.Microsecond))
	}
	if r.Processed > 0 && duration > 0 {
		fmt.Fprintf(w, "   Throughput:  %.1f/s\n", float64(r.Processed)/duration.Seconds())
	}
}

func percent(n, total int) float64 {
	return 100 * ratio(n, total)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
