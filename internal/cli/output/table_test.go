package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableData(t *testing.T) {
	table := NewTableData("Listen address")
	assert.Equal(t, []string{"Listen address"}, table.Headers())
	assert.Empty(t, table.Rows())

	table.AddRow("localhost:17622")
	require.Len(t, table.Rows(), 1)
	assert.Equal(t, []string{"localhost:17622"}, table.Rows()[0])
}

func TestPrintTable(t *testing.T) {
	table := NewTableData("Name", "Value")
	table.AddRow("key1", "value1")

	var buf bytes.Buffer
	PrintTable(&buf, table)

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "key1")
	assert.Contains(t, out, "value1")
}

func TestSimpleTable(t *testing.T) {
	pairs := [][2]string{{"ATC callsigns", "[TEST]"}, {"Queue TTL", "3600 seconds"}}

	var buf bytes.Buffer
	SimpleTable(&buf, pairs)

	out := buf.String()
	assert.Contains(t, out, "ATC callsigns")
	assert.Contains(t, out, "3600 seconds")
}
