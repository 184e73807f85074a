package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSV(t *testing.T) {
	in := "\ufeffNAMC_CODE,NAMC_TERM,Extra\nSR11,Vatajvara,x\n,,\nSR12,\"Pitta, jvara\"\nSR13\n"
	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"NAMC_CODE", "NAMC_TERM", "Extra"}, tbl.Header)
	require.Len(t, tbl.Rows, 3, "blank rows are dropped")
	assert.Equal(t, "Vatajvara", tbl.Rows[0]["NAMC_TERM"])
	assert.Equal(t, "Pitta, jvara", tbl.Rows[1]["NAMC_TERM"])
	assert.Equal(t, "", tbl.Rows[1]["Extra"], "short records pad with empty cells")
	assert.Equal(t, "SR13", tbl.Rows[2]["NAMC_CODE"])
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestRequire(t *testing.T) {
	tbl := &Table{Header: []string{"Code", "Title"}}
	assert.NoError(t, tbl.Require("Code", "Title"))

	err := tbl.Require("LOINC_NUM", "Title")
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), "LOINC_NUM")
}

func TestOpen_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unani.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"NUMC_CODE", "NUMC_TERM"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"AAA-1", "Humma-e-safravi"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"AAA-2"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := Open(path)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "Humma-e-safravi", tbl.Rows[0]["NUMC_TERM"])
	assert.Equal(t, "AAA-2", tbl.Rows[1]["NUMC_CODE"])
	assert.Equal(t, "", tbl.Rows[1]["NUMC_TERM"])
}

func TestOpen_CSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "icd11.csv")
	require.NoError(t, os.WriteFile(path, []byte("Code,Title\nSK91,- - Fever disorder (TM1)\n"), 0o644))

	tbl, err := Open(path)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "SK91", tbl.Rows[0]["Code"])
}

func TestOpen_UnsupportedExtension(t *testing.T) {
	_, err := Open("terms.json")
	assert.Error(t, err)
}
