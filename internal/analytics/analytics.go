package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"fun-with-ai/internal/storage"
)

// DailyStats summarises one UTC day of the interaction journal.
type DailyStats struct {
	Date         string                 `json:"date"`
	TotalSubmits int                    `json:"total_submits"`
	Completed    int                    `json:"completed"`
	Failed       int                    `json:"failed"`
	UniqueScopes int                    `json:"unique_scopes"`
	FailedByKind map[string]int         `json:"failed_by_kind"`
	ByEngine     map[string]EngineStats `json:"by_engine"`
}

type EngineStats struct {
	Engine    string `json:"engine"`
	Submits   int    `json:"submits"`
	Completed int    `json:"completed"`
}

// AnalyzeDailyLogs counts the events that fall on targetDate in its location.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:         startOfDay.Format("2006-01-02"),
		FailedByKind: make(map[string]int),
		ByEngine:     make(map[string]EngineStats),
	}

	scopes := make(map[string]bool)

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}

		stats.TotalSubmits++
		scopes[event.Scope] = true

		es, ok := stats.ByEngine[event.Engine]
		if !ok {
			es = EngineStats{Engine: event.Engine}
		}
		es.Submits++

		if event.Error == "" {
			stats.Completed++
			es.Completed++
		} else {
			stats.Failed++
			stats.FailedByKind[event.Error]++
		}
		stats.ByEngine[event.Engine] = es
	}

	stats.UniqueScopes = len(scopes)
	return stats
}

// GenerateReportSummary renders the stats as plain text, engines by submit count.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage for %s:\n", ds.Date)
	fmt.Fprintf(&b, "- submits: %d (completed %d, failed %d)\n", ds.TotalSubmits, ds.Completed, ds.Failed)
	fmt.Fprintf(&b, "- histories: %d\n", ds.UniqueScopes)

	if len(ds.FailedByKind) > 0 {
		kinds := make([]string, 0, len(ds.FailedByKind))
		for k := range ds.FailedByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		b.WriteString("Failures:\n")
		for _, k := range kinds {
			fmt.Fprintf(&b, "- %s: %d\n", k, ds.FailedByKind[k])
		}
	}

	if len(ds.ByEngine) > 0 {
		engines := make([]EngineStats, 0, len(ds.ByEngine))
		for _, es := range ds.ByEngine {
			engines = append(engines, es)
		}
		sort.Slice(engines, func(i, j int) bool {
			if engines[i].Submits != engines[j].Submits {
				return engines[i].Submits > engines[j].Submits
			}
			return engines[i].Engine < engines[j].Engine
		})
		b.WriteString("Engines:\n")
		for _, es := range engines {
			fmt.Fprintf(&b, "- %s: %d submits, %d completed\n", es.Engine, es.Submits, es.Completed)
		}
	}

	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
