// Package output renders small ad-hoc tables for the daemon's startup
// summary and the reference client's thread listing.
package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableData is a simple headers+rows table.
type TableData struct {
	headers []string
	rows    [][]string
}

// NewTableData creates a TableData with the given column headers.
func NewTableData(headers ...string) *TableData {
	return &TableData{headers: headers}
}

// AddRow appends a row.
func (t *TableData) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

// Headers returns the column headers.
func (t *TableData) Headers() []string { return t.headers }

// Rows returns the data rows.
func (t *TableData) Rows() [][]string { return t.rows }

// PrintTable writes data as a formatted table to w.
func PrintTable(w io.Writer, data *TableData) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.headers)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, row := range data.rows {
		table.Append(row)
	}
	table.Render()
}

// SimpleTable prints a borderless key:value table to w.
func SimpleTable(w io.Writer, pairs [][2]string) {
	table := tablewriter.NewWriter(w)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator(":")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, pair := range pairs {
		table.Append([]string{pair[0], pair[1]})
	}
	table.Render()
}
