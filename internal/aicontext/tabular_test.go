package aicontext

import (
	"bytes"
	"encoding/csv"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestPrepare_DocumentsPassThrough(t *testing.T) {
	a := Augmenter{Enabled: true, MinRows: 500}
	p, err := a.Prepare("notes.txt", Classification{Kind: KindDocument, Ext: ".txt", MIMEType: "text/plain"}, []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, "notes.txt", p.Filename)
	require.Equal(t, []byte("hi"), p.Data)
	require.False(t, p.Augmented)
}

func TestPrepare_ExpandsNumbersAndDates(t *testing.T) {
	a := Augmenter{Enabled: true, MinRows: 6, Rand: rand.New(rand.NewPCG(1, 2))}
	in := "day,reach,share,brand\n2024-03-01,100,0.25,acme\n2024-03-02,200,0.50,acme\n"
	p, err := a.Prepare("kpis.csv", Classification{Kind: KindTabular, Ext: ".csv"}, []byte(in))
	require.NoError(t, err)
	require.True(t, p.Augmented)
	require.Equal(t, 2, p.RowsBefore)
	require.Equal(t, 6, p.RowsAfter)

	rows := readCSV(t, p.Data)
	require.Len(t, rows, 7)
	require.Equal(t, []string{"day", "reach", "share", "brand"}, rows[0])
	require.Equal(t, []string{"2024-03-01", "100", "0.25", "acme"}, rows[1])

	// first copy of row one is shifted one week
	dup := rows[3]
	require.Equal(t, "2024-03-08", dup[0])
	require.Equal(t, "acme", dup[3])
	reach, err := strconv.Atoi(dup[1])
	require.NoError(t, err)
	require.InDelta(t, 100, reach, 10)
	share, err := strconv.ParseFloat(dup[2], 64)
	require.NoError(t, err)
	require.InDelta(t, 0.25, share, 0.031)
	require.Len(t, dup[2], 4)

	require.Equal(t, "2024-03-16", rows[6][0])
}

func TestPrepare_DisabledOrLargeEnoughIsUnchanged(t *testing.T) {
	in := "a,b\n1,x\n2,y\n"
	off := Augmenter{Enabled: false, MinRows: 10}
	p, err := off.Prepare("t.csv", Classification{Kind: KindTabular, Ext: ".csv"}, []byte(in))
	require.NoError(t, err)
	require.False(t, p.Augmented)
	require.Equal(t, 2, p.RowsAfter)

	small := Augmenter{Enabled: true, MinRows: 2}
	p, err = small.Prepare("t.csv", Classification{Kind: KindTabular, Ext: ".csv"}, []byte(in))
	require.NoError(t, err)
	require.False(t, p.Augmented)
}

func TestPrepare_ConvertsXLSXToCSV(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"channel", "mentions"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"tiktok", 42}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	a := Augmenter{Enabled: false}
	p, err := a.Prepare("social.xlsx", Classification{Kind: KindTabular, Ext: ".xlsx"}, buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, "social.csv", p.Filename)
	require.Equal(t, "text/csv", p.MIMEType)
	require.Equal(t, [][]string{{"channel", "mentions"}, {"tiktok", "42"}}, readCSV(t, p.Data))
}

func TestPrepare_HeaderOnlyIsNotExpanded(t *testing.T) {
	a := Augmenter{Enabled: true, MinRows: 10}
	p, err := a.Prepare("t.csv", Classification{Kind: KindTabular, Ext: ".csv"}, []byte("a,b\n"))
	require.NoError(t, err)
	require.False(t, p.Augmented)
	require.Equal(t, 0, p.RowsAfter)
}
