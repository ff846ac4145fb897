// Replay tool for running recorded field activity through Harrier.
//
// Usage:
//
//	go run ./cmd/replay -csv /path/to/activities.csv -url http://localhost:8080
//
// This tool:
//  1. Reads recorded activities (optionally labelled is_fraud)
//  2. Sends each one to POST /v1/detect, keeping every agent's events in order
//  3. Reports the risk-level distribution and, for labelled data, a
//     confusion matrix with HIGH and CRITICAL counted as detections
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

func main() {
	csvPath := flag.String("csv", "", "Path to activity CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	limit := flag.Int("limit", 0, "Maximum activities to replay (0 = all)")
	workers := flag.Int("workers", 8, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each activity result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: replay -csv /path/to/activities.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("+---------------------------------------------------------------+")
	fmt.Println("|            HARRIER REPLAY - Field Activity Scoring            |")
	fmt.Println("+---------------------------------------------------------------+")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Harrier URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	client := &http.Client{Timeout: 10 * time.Second}
	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  go run ./cmd/harrier")
		os.Exit(1)
	}
	fmt.Println("OK Harrier is healthy")

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	activities, err := readActivities(f, *limit)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK Loaded %d activities\n", len(activities))

	fmt.Printf("\nReplaying with %d workers...\n", *workers)
	start := time.Now()
	report := replay(client, *baseURL, activities, *workers, *verbose)
	report.Print(os.Stdout, time.Since(start))

	if report.Errors > 0 {
		os.Exit(2)
	}
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
