// Package export writes session reports as CSV tables and reads them back.
//
// A report starts with metadata lines prefixed by '#', followed by a header
// row and one row per step in catalog order:
//
//	# session_id: 20260314_093000
//	# station: ST-01
//	# stock_number: PSU-12
//	step,step_id,name,status,started_at,duration,value,comment,completed_by
//	1,10,Measure output voltage,passed,2026-03-14T09:30:00Z,12,12.1,,ayse
//	2,20,Inspect connectors,failed,2026-03-14T09:30:12Z,4,FAIL,bent pin,ayse
//
// Columns are matched by header name, so readers tolerate reordered or extra
// columns. Only name and status are required.
package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stepwise/internal/session"
)

// Columns is the header row written by [Write].
var Columns = []string{"step", "step_id", "name", "status", "started_at", "duration", "value", "comment", "completed_by"}

// requiredColumns are the columns that must be present in a report.
var requiredColumns = []string{"name", "status"}

// Row is one step of a report.
type Row struct {
	Step        int
	StepID      int
	Name        string
	Status      session.Status
	StartedAt   time.Time
	Duration    int
	Value       string
	Comment     string
	CompletedBy string
}

// Report is a parsed CSV report.
type Report struct {
	// Meta holds the '#' metadata lines by key.
	Meta map[string]string

	// Rows are the steps in file order.
	Rows []Row
}

// WriteFile writes snap as a CSV report to path, creating parent
// directories.
func WriteFile(path string, snap session.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := Write(f, snap); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close export file: %w", err)
	}
	return nil
}

// Write writes snap as a CSV report to w.
func Write(w io.Writer, snap session.Snapshot) error {
	meta := [][2]string{
		{"session_id", snap.SessionID},
		{"procedure", snap.Procedure},
		{"stock_number", snap.Info.StockNumber},
		{"serial_number", snap.Info.SerialNumber},
		{"station", snap.Info.Station},
		{"sip_code", snap.Info.SIPCode},
		{"operator", snap.Info.Operator},
		{"start_time", formatTime(snap.StartedAt)},
		{"end_time", formatTime(snap.EndedAt)},
		{"duration_seconds", strconv.Itoa(snap.DurationSeconds)},
		{"completion_percentage", strconv.FormatFloat(snap.CompletionPercent, 'f', 0, 64)},
		{"passed_count", strconv.Itoa(snap.PassedCount)},
		{"failed_count", strconv.Itoa(snap.FailedCount)},
	}
	for _, kv := range meta {
		if kv[1] == "" {
			continue
		}
		// keep every metadata entry on one line
		value := strings.NewReplacer("\r", " ", "\n", " ").Replace(kv[1])
		if _, err := fmt.Fprintf(w, "# %s: %s\n", kv[0], value); err != nil {
			return fmt.Errorf("failed to write report metadata: %w", err)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for i, st := range snap.Steps {
		record := []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(st.StepID),
			st.Name,
			st.Status.String(),
			formatTime(st.StartedAt),
			strconv.Itoa(st.Duration),
			st.Value.String(),
			st.Comment,
			st.CompletedBy,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write report row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadFromFile reads and parses a CSV report.
func ReadFromFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	return readFromReader(f)
}

// ReadFromString parses a CSV report from a string.
func ReadFromString(data string) (*Report, error) {
	return readFromReader(strings.NewReader(data))
}

func readFromReader(r io.Reader) (*Report, error) {
	br := bufio.NewReader(r)

	meta, lineNum, err := readMeta(br)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(br)
	reader.TrimLeadingSpace = true

	// Read header
	lineNum++
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read report header: %w", err)
	}

	colIndex := buildColumnIndex(header)
	if err := validateColumns(colIndex); err != nil {
		return nil, err
	}

	var rows []Row
	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read report line %d: %w", lineNum, err)
		}

		row, err := parseRow(record, colIndex)
		if err != nil {
			return nil, fmt.Errorf("report line %d: %w", lineNum, err)
		}
		if row.Step == 0 {
			row.Step = len(rows) + 1
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, errors.New("report contains no steps")
	}

	return &Report{Meta: meta, Rows: rows}, nil
}

// readMeta consumes the leading '#' lines and returns them by key along with
// the number of lines read.
func readMeta(br *bufio.Reader) (map[string]string, int, error) {
	meta := make(map[string]string)
	lines := 0
	for {
		b, err := br.Peek(1)
		if err != nil || b[0] != '#' {
			if err != nil && err != io.EOF {
				return nil, lines, fmt.Errorf("failed to read report metadata: %w", err)
			}
			return meta, lines, nil
		}

		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, lines, fmt.Errorf("failed to read report metadata: %w", err)
		}
		lines++

		key, value, ok := strings.Cut(strings.TrimPrefix(line, "#"), ":")
		if !ok {
			continue
		}
		meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
}

func parseRow(record []string, colIndex map[string]int) (Row, error) {
	row := Row{
		Name:        getField(record, colIndex, "name"),
		Status:      session.Status(getField(record, colIndex, "status")),
		Value:       getField(record, colIndex, "value"),
		Comment:     getField(record, colIndex, "comment"),
		CompletedBy: getField(record, colIndex, "completed_by"),
	}
	if row.Name == "" {
		return Row{}, errors.New("step name is required")
	}
	if !row.Status.IsValid() {
		return Row{}, fmt.Errorf("unknown status %q", row.Status)
	}

	var err error
	if row.Step, err = getInt(record, colIndex, "step"); err != nil {
		return Row{}, err
	}
	if row.StepID, err = getInt(record, colIndex, "step_id"); err != nil {
		return Row{}, err
	}
	if row.Duration, err = getInt(record, colIndex, "duration"); err != nil {
		return Row{}, err
	}
	if row.StartedAt, err = parseTime(getField(record, colIndex, "started_at")); err != nil {
		return Row{}, fmt.Errorf("started_at: %w", err)
	}
	return row, nil
}

func buildColumnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(strings.ToLower(col))] = i
	}
	return index
}

func validateColumns(colIndex map[string]int) error {
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return fmt.Errorf("report missing required column: %s", col)
		}
	}
	return nil
}

func getField(record []string, colIndex map[string]int, column string) string {
	idx, ok := colIndex[column]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func getInt(record []string, colIndex map[string]int, column string) (int, error) {
	s := getField(record, colIndex, column)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", column, s)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Snapshot rebuilds the session snapshot a report was written from. Values
// come back as numbers or tokens when they parse as one, otherwise as text.
// Budgets and input kinds are not part of the report and stay empty.
func (r *Report) Snapshot() session.Snapshot {
	snap := session.Snapshot{
		SessionID: r.Meta["session_id"],
		Procedure: r.Meta["procedure"],
		Info: session.Info{
			StockNumber:  r.Meta["stock_number"],
			SerialNumber: r.Meta["serial_number"],
			Station:      r.Meta["station"],
			SIPCode:      r.Meta["sip_code"],
			Operator:     r.Meta["operator"],
		},
		Steps: make([]session.StepSnapshot, len(r.Rows)),
	}
	snap.StartedAt, _ = parseTime(r.Meta["start_time"])
	snap.EndedAt, _ = parseTime(r.Meta["end_time"])
	snap.DurationSeconds, _ = strconv.Atoi(r.Meta["duration_seconds"])

	for i, row := range r.Rows {
		snap.Steps[i] = session.StepSnapshot{
			StepID:      row.StepID,
			Name:        row.Name,
			Status:      row.Status,
			Value:       ParseValue(row.Value),
			Comment:     row.Comment,
			StartedAt:   row.StartedAt,
			Duration:    row.Duration,
			CompletedBy: row.CompletedBy,
		}
		switch row.Status {
		case session.StatusPassed:
			snap.PassedCount++
		case session.StatusFailed:
			snap.FailedCount++
		}
	}
	if n := len(r.Rows); n > 0 {
		snap.CompletionPercent = float64(snap.PassedCount+snap.FailedCount) / float64(n) * 100
	}
	return snap
}

// ParseValue turns a report cell back into a value.
func ParseValue(s string) session.Value {
	switch {
	case s == "":
		return session.Absent()
	case s == string(session.TokenPass):
		return session.TokenValue(session.TokenPass)
	case s == string(session.TokenFail):
		return session.TokenValue(session.TokenFail)
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return session.NumberValue(n)
	}
	return session.TextValue(s)
}
