package archive

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// SummaryRow is one line of a compression summary
type SummaryRow struct {
	Name           string
	OriginalSize   int64
	CompressedSize int64
	Note           string
}

// SummaryTable renders rows with sizes, savings and a total footer
func SummaryTable(rows []SummaryRow) string {
	tw := table.NewWriter()
	style := table.StyleRounded
	style.Format.Footer = text.FormatDefault
	tw.SetStyle(style)
	tw.AppendHeader(table.Row{"File", "Original", "Compressed", "Saved", "Note"})

	var totalOriginal, totalCompressed int64
	for _, row := range rows {
		totalOriginal += row.OriginalSize
		totalCompressed += row.CompressedSize
		tw.AppendRow(table.Row{row.Name, humanize.IBytes(uint64(row.OriginalSize)),
			humanize.IBytes(uint64(row.CompressedSize)), savedPercent(row.OriginalSize, row.CompressedSize), row.Note})
	}
	tw.AppendFooter(table.Row{"Total", humanize.IBytes(uint64(totalOriginal)),
		humanize.IBytes(uint64(totalCompressed)), savedPercent(totalOriginal, totalCompressed), ""})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	return tw.Render()
}

func savedPercent(original, compressed int64) string {
	if original <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d%%", (original-compressed)*100/original)
}
