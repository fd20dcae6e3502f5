package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/miradorstack/alert-triage/internal/utils"
)

type frequencyThreshold struct {
	TimeWindow string `json:"time_window"`
	Count      int    `json:"count"`
}

type scoringConfig struct {
	FrequencyThreshold frequencyThreshold `json:"frequency_threshold"`
	FrequencyWeight    float64            `json:"frequency_weight"`
	SeverityWeight     float64            `json:"severity_weight"`
	RoleWeights        map[string]float64 `json:"role_weights"`
	RoleWeight         float64            `json:"role_weight"`
	IPBlacklist        []string           `json:"ip_blacklist"`
	AlertTypeWeights   map[string]float64 `json:"alert_type_weights"`
}

var (
	roles      = []string{"admin", "user", "guest", "service"}
	alertTypes = []string{"malware", "phishing", "bruteforce", "exfiltration", "policy"}
)

func main() {
	var (
		outDir    string
		count     int
		ipCount   int
		seed      uint64
		malformed float64
		span      time.Duration
	)
	flag.StringVar(&outDir, "out", ".", "Directory for alerts.csv and config.json")
	flag.IntVar(&count, "alerts", 100000, "Number of alert rows")
	flag.IntVar(&ipCount, "ips", 500, "Number of distinct source IPs")
	flag.Uint64Var(&seed, "seed", 1, "Random seed")
	flag.Float64Var(&malformed, "malformed", 0.001, "Fraction of rows with a corrupted field")
	flag.DurationVar(&span, "span", 24*time.Hour, "Time span covered by the alerts")
	flag.Parse()

	logger := log.New(log.Writer(), "gen-alerts ", log.LstdFlags|log.Lmicroseconds)
	if count < 0 || ipCount <= 0 || span <= 0 {
		logger.Fatalf("alerts must be >= 0, ips and span must be positive")
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	ips := make([]string, ipCount)
	for i := range ips {
		ips[i] = fmt.Sprintf("10.%d.%d.%d", (i>>16)&0xff, (i>>8)&0xff, i&0xff)
	}

	alertsPath := filepath.Join(outDir, "alerts.csv")
	if err := writeAlerts(alertsPath, rng, ips, count, malformed, span); err != nil {
		logger.Fatalf("write alerts: %v", err)
	}
	configPath := filepath.Join(outDir, "config.json")
	if err := writeConfig(configPath, ips); err != nil {
		logger.Fatalf("write config: %v", err)
	}
	logger.Printf("wrote %d alerts to %s and config to %s", count, alertsPath, configPath)
}

func writeAlerts(path string, rng *rand.Rand, ips []string, count int, malformed float64, span time.Duration) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w := csv.NewWriter(f)
	if err := w.Write([]string{"alert_id", "source_ip", "timestamp", "severity", "user_role", "alert_type"}); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		// Skew towards a few noisy IPs so frequency thresholds trigger.
		ip := ips[int(float64(len(ips))*rng.Float64()*rng.Float64())]
		ts := utils.FormatAlertTimestamp(start.Add(time.Duration(rng.Int64N(int64(span)))))
		severity := strconv.Itoa(1 + rng.IntN(10))
		if rng.Float64() < malformed {
			severity = "n/a"
		}
		row := []string{
			strconv.Itoa(i + 1),
			ip,
			ts,
			severity,
			roles[rng.IntN(len(roles))],
			alertTypes[rng.IntN(len(alertTypes))],
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeConfig(path string, ips []string) error {
	blacklist := ips
	if len(blacklist) > 3 {
		blacklist = blacklist[:3]
	}
	cfg := scoringConfig{
		FrequencyThreshold: frequencyThreshold{TimeWindow: "10m", Count: 5},
		FrequencyWeight:    4,
		SeverityWeight:     1,
		RoleWeights:        map[string]float64{"admin": 3, "service": 2, "user": 1},
		RoleWeight:         2,
		IPBlacklist:        blacklist,
		AlertTypeWeights:   map[string]float64{"malware": 3, "exfiltration": 4},
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
