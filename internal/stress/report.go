package stress

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// Render writes the summary table, followed by one row per failed client.
func Render(w io.Writer, r Report, colours bool) {
	paint := func(style color.Style, s string) string {
		if !colours {
			return s
		}
		return style.Render(s)
	}

	rateStyle := color.New(color.FgGreen)
	if r.Succeeded() < r.Attempted() {
		rateStyle = color.New(color.FgRed)
	}

	summary := tablewriter.NewWriter(w)
	summary.SetHeader([]string{"Clients", "Success", "Success rate", "Elapsed"})
	summary.SetAlignment(tablewriter.ALIGN_LEFT)
	summary.SetAutoFormatHeaders(true)
	summary.Append([]string{
		strconv.Itoa(r.Attempted()),
		strconv.Itoa(r.Succeeded()),
		paint(rateStyle, fmt.Sprintf("%.2f", r.Rate())),
		r.Elapsed.Round(time.Millisecond).String(),
	})
	summary.Render()

	failures := r.Failures()
	if len(failures) == 0 {
		return
	}

	_, _ = fmt.Fprintln(w, paint(color.New(color.BgBlack, color.FgRed), "  ====== Failed clients ======"))
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Client", "Error", "After"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	for _, f := range failures {
		table.Append([]string{
			strconv.Itoa(f.Client),
			f.Err.Error(),
			f.Duration.Round(time.Microsecond).String(),
		})
	}
	table.Render()
}
