// Package report renders ranked pairs for the terminal.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"tvlScope/internal/model"
)

// Render writes the ranking as an aligned table.
func Render(w io.Writer, pairs []model.RankedPair, anchorSymbol string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 4, ' ', 0)
	fmt.Fprintf(tw, "RANK\tPAIR\tTVL (%s)\tADDRESS\t\n", anchorSymbol)
	fmt.Fprintln(tw, "----\t----\t---------\t-------\t")
	for _, p := range pairs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", p.Rank, p.Label, FormatValue(p.Value, anchorSymbol), p.Pair.Address.Hex())
	}
	return tw.Flush()
}

// FormatValue renders v with two decimals and thousands separators, e.g. "1,234.56 USDC".
func FormatValue(v float64, symbol string) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	text := decimal.NewFromFloat(v).StringFixed(2)

	sign := ""
	if strings.HasPrefix(text, "-") {
		sign, text = "-", text[1:]
	}
	whole, frac, _ := strings.Cut(text, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	if symbol != "" {
		b.WriteByte(' ')
		b.WriteString(symbol)
	}
	return b.String()
}
