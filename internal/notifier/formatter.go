package notifier

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"MarketPulse/internal/model"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// AlertData is the view a single-symbol alert template renders.
// Numbers are pre-formatted to two decimals with thousands separators.
type AlertData struct {
	Symbol  string
	Price   string // latest price, e.g. "84,210.12"
	Start   string // price at the start of the window
	Change  string // absolute change, negative values carry "-"
	Percent string // always signed, e.g. "+12.00" or "-3.41"
	Marker  string
	Tier    model.Tier
}

// DigestData is the view a digest template renders.
type DigestData struct {
	Lines []string
}

// Composer renders publish-ready text from a job's template.
type Composer struct {
	tmpl *template.Template
}

// NewComposer parses text as a text/template.
func NewComposer(name, text string) (*Composer, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return &Composer{tmpl: tmpl}, nil
}

// ComposeAlert formats a single-symbol movement.
func (c *Composer) ComposeAlert(symbol string, change model.ChangeResult, mv model.Movement) (string, error) {
	return c.execute(NewAlertData(symbol, change, mv))
}

// ComposeDigest formats the already rendered digest lines.
func (c *Composer) ComposeDigest(lines []string) (string, error) {
	return c.execute(DigestData{Lines: lines})
}

func (c *Composer) execute(data any) (string, error) {
	var b strings.Builder
	if err := c.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", c.tmpl.Name(), err)
	}
	return b.String(), nil
}

// NewAlertData rounds and formats a ChangeResult for display.
func NewAlertData(symbol string, change model.ChangeResult, mv model.Movement) AlertData {
	return AlertData{
		Symbol:  symbol,
		Price:   FormatMoney(change.EndPrice),
		Start:   FormatMoney(change.StartPrice),
		Change:  FormatMoney(change.AbsoluteDiff),
		Percent: FormatSigned(change.PercentChange),
		Marker:  mv.Marker,
		Tier:    mv.Tier,
	}
}

// FormatDigestLine renders one digest entry, e.g. "$SPY: $414.00 (+1.23%) 📈".
// A nil change renders "SPY: No Data".
func FormatDigestLine(symbol string, change *model.ChangeResult, mv model.Movement) string {
	if change == nil {
		return fmt.Sprintf("%s: No Data", symbol)
	}
	return fmt.Sprintf("$%s: $%s (%s%%) %s",
		symbol, FormatMoney(change.EndPrice), FormatSigned(change.PercentChange), mv.Marker)
}

// FormatMoney rounds d to two decimals and groups thousands: -1234.5 -> "-1,234.50".
func FormatMoney(d decimal.Decimal) string {
	r := d.Round(2)
	fixed := r.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")
	n, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return r.StringFixed(2)
	}
	s := humanize.Comma(n) + "." + frac
	if r.IsNegative() {
		return "-" + s
	}
	return s
}

// FormatSigned is FormatMoney with an explicit "+" for zero and gains.
func FormatSigned(d decimal.Decimal) string {
	s := FormatMoney(d)
	if !d.Round(2).IsNegative() {
		return "+" + s
	}
	return s
}
