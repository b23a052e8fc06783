package stats

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"regwatch/pkg/store"
)

//go:embed stats.gohtml
var pageTemplate string

// chartData feeds the monthly-trends bar chart on the rendered page
type chartData struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

// Render produces the human-viewable page from the snapshot. The page is a
// pure presentation of the same data that goes into the JSON artifact; it
// performs no computation of its own.
func Render(s *Snapshot) ([]byte, error) {
	tmpl, err := template.New("stats").Funcs(template.FuncMap{
		"fmtTime": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05 UTC") },
	}).Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse stats template: %w", err)
	}

	chart := chartData{Labels: []string{}, Data: []int{}}
	for _, tr := range s.MonthlyTrends {
		chart.Labels = append(chart.Labels, tr.Month)
		chart.Data = append(chart.Data, tr.EventsAdded)
	}
	chartJSON, err := json.Marshal(chart)
	if err != nil {
		return nil, fmt.Errorf("marshal chart data: %w", err)
	}

	var buf bytes.Buffer
	data := struct {
		*Snapshot
		ChartJSON template.JS
	}{Snapshot: s, ChartJSON: template.JS(chartJSON)} //nolint:gosec // JSON-marshaled ints and month labels, no user input
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render stats page: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the machine-readable and human-viewable artifacts atomically,
// both derived from the same snapshot.
func Save(s *Snapshot, jsonPath, htmlPath string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if err := store.WriteAtomic(jsonPath, data); err != nil {
		return fmt.Errorf("save stats json: %w", err)
	}

	page, err := Render(s)
	if err != nil {
		return err
	}
	if err := store.WriteAtomic(htmlPath, page); err != nil {
		return fmt.Errorf("save stats page: %w", err)
	}
	return nil
}
