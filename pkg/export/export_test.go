package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attendanceSheet() Sheet {
	return Sheet{
		Title:       "Attendance Report",
		Columns:     []string{"Student", "Status", "Method"},
		GeneratedAt: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		Rows: [][]string{
			{"Ana", "PRESENT", "OTP"},
			{"Ben", "ABSENT"},
		},
	}
}

func TestCSVRender(t *testing.T) {
	content, err := NewCSVExporter().Render(attendanceSheet())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student,Status,Method", lines[0])
	assert.Equal(t, "Ana,PRESENT,OTP", lines[1])
	// Short rows are padded to keep columns aligned.
	assert.Equal(t, "Ben,ABSENT,", lines[2])
}

func TestCSVRenderRejectsOversizedRow(t *testing.T) {
	sheet := attendanceSheet()
	sheet.Rows = append(sheet.Rows, []string{"Cleo", "PRESENT", "QR", "extra"})

	_, err := NewCSVExporter().Render(sheet)
	assert.Error(t, err)
}

func TestCSVRenderRequiresColumns(t *testing.T) {
	_, err := NewCSVExporter().Render(Sheet{})
	assert.Error(t, err)
}

func TestPDFRender(t *testing.T) {
	content, err := NewPDFExporter().Render(attendanceSheet())
	require.NoError(t, err)
	require.True(t, len(content) > 4)
	assert.Equal(t, "%PDF", string(content[:4]))
}
