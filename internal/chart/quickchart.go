package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"MarketPulse/internal/httpclient"
)

const defaultQuickChartURL = "https://quickchart.io"

type palette struct {
	Background string
	Text       string
	Grid       string
	Line       string
}

var palettes = map[Theme]palette{
	ThemeDark:  {Background: "#000000", Text: "#FFFFFF", Grid: "rgba(255, 255, 255, 0.2)", Line: "#F7931A"},
	ThemeLight: {Background: "#FFFFFF", Text: "#111111", Grid: "rgba(0, 0, 0, 0.1)", Line: "#1F77B4"},
}

// QuickChart renders Chart.js line charts with the quickchart.io service.
type QuickChart struct {
	BaseURL string
	Client  *http.Client
}

// NewQuickChart creates a renderer with optional proxy support.
func NewQuickChart(baseURL, proxyURL string, timeout time.Duration) *QuickChart {
	if baseURL == "" {
		baseURL = defaultQuickChartURL
	}
	return &QuickChart{
		BaseURL: baseURL,
		Client:  httpclient.New(proxyURL, timeout),
	}
}

// Render posts the chart definition and returns the PNG body.
func (q *QuickChart) Render(ctx context.Context, req Request) ([]byte, error) {
	body, err := json.Marshal(q.payload(req))
	if err != nil {
		return nil, &RenderError{Err: fmt.Errorf("marshal payload: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, q.BaseURL+"/chart", bytes.NewReader(body))
	if err != nil {
		return nil, &RenderError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := q.Client.Do(httpReq)
	if err != nil {
		return nil, &RenderError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RenderError{Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RenderError{Status: resp.StatusCode, Body: string(data)}
	}
	if len(data) == 0 {
		return nil, &RenderError{Status: resp.StatusCode, Body: "empty image"}
	}
	return data, nil
}

func (q *QuickChart) payload(req Request) map[string]any {
	p, ok := palettes[req.Theme]
	if !ok {
		p = palettes[ThemeDark]
	}
	axis := func(extra map[string]any) map[string]any {
		a := map[string]any{
			"ticks": map[string]any{"color": p.Text},
			"grid":  map[string]any{"color": p.Grid},
		}
		for k, v := range extra {
			a[k] = v
		}
		return a
	}

	chart := map[string]any{
		"type": "line",
		"data": map[string]any{
			"labels": req.Labels,
			"datasets": []map[string]any{{
				"label":       req.DatasetLabel,
				"data":        req.Values,
				"borderColor": p.Line,
				"pointRadius": 0,
				"fill":        false,
			}},
		},
		"options": map[string]any{
			"scales": map[string]any{
				"y": axis(map[string]any{"min": req.YMin, "max": req.YMax}),
				"x": axis(nil),
			},
			"plugins": map[string]any{
				"title": map[string]any{
					"display": true,
					"text":    req.Title,
					"color":   p.Text,
				},
				"legend": map[string]any{
					"labels": map[string]any{"color": p.Text},
				},
			},
		},
	}

	return map[string]any{
		"version":         "4",
		"width":           req.Width,
		"height":          req.Height,
		"format":          "png",
		"backgroundColor": p.Background,
		"chart":           chart,
	}
}
