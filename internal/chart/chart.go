// Package chart renders price series into images through an external chart service.
package chart

import (
	"context"
	"fmt"
)

// Theme selects the colour palette of a rendered chart.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Request is everything a renderer needs to draw a single line chart.
type Request struct {
	Labels       []string
	Values       []float64
	Title        string
	DatasetLabel string
	YMin         float64
	YMax         float64
	Width        int
	Height       int
	Theme        Theme
}

// Renderer turns a Request into PNG bytes.
type Renderer interface {
	Render(ctx context.Context, req Request) ([]byte, error)
}

// RenderError carries the chart service's diagnostic payload.
type RenderError struct {
	Status int
	Body   string
	Err    error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render chart: %v", e.Err)
	}
	return fmt.Sprintf("render chart: status %d, body: %s", e.Status, e.Body)
}

func (e *RenderError) Unwrap() error { return e.Err }

// PaddedBounds widens [low, high] by 5% of the range on each side so the
// line fills the plot and small moves stay visible.
func PaddedBounds(low, high float64) (yMin, yMax float64) {
	pad := (high - low) * 0.05
	return low - pad, high + pad
}
