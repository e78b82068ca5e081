package derive

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/quizsolver/internal/model"
)

// PlaceholderText is answered when no rule applies.
const PlaceholderText = "answer"

const maxDataBytes = 10 << 20

var (
	trueFalseQuestion = regexp.MustCompile(`(?i)\btrue\s*(?:or|/)\s*false\b|\byes\s*(?:or|/)\s*no\b`)
	meanWords         = regexp.MustCompile(`(?i)\b(?:average|mean)\b`)
	countWords        = regexp.MustCompile(`(?i)\b(?:count|how\s+many|number\s+of\s+rows)\b`)
	sumWords          = regexp.MustCompile(`(?i)\b(?:sum|total)\b`)
)

type aggregate string

const (
	aggNone  aggregate = ""
	aggSum   aggregate = "sum"
	aggCount aggregate = "count"
	aggMean  aggregate = "mean"
)

// Heuristic answers without a language model using keyword rules.
// It does not try to be correct; it keeps the chain moving when no model is configured.
type Heuristic struct {
	client  *http.Client
	numbers NumberMode
}

// NewHeuristic creates a Heuristic deriver that downloads data files with client.
func NewHeuristic(client *http.Client, numbers NumberMode) *Heuristic {
	if client == nil {
		client = http.DefaultClient
	}
	return &Heuristic{client: client, numbers: numbers}
}

func (d *Heuristic) Name() string { return "heuristic" }

func (d *Heuristic) Derive(ctx context.Context, q Question) (model.Answer, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("%w: empty question", ErrDerivation)
	}

	if agg := aggregationOf(q.Text); agg != aggNone {
		if strings.Contains(strings.ToLower(q.DataURL), ".csv") {
			v, err := d.aggregateCSV(ctx, q.DataURL, q.Text, agg)
			if err == nil {
				return d.number(v), nil
			}
			slog.Debug("heuristic aggregation failed, using placeholder", "data_url", q.DataURL, "error", err)
		}
		return d.number(0), nil
	}

	if trueFalseQuestion.MatchString(q.Text) {
		return true, nil
	}
	return PlaceholderText, nil
}

func (d *Heuristic) number(v float64) model.Answer {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if d.numbers == NumbersAsString {
		return s
	}
	return json.Number(s)
}

func aggregationOf(text string) aggregate {
	switch {
	case meanWords.MatchString(text):
		return aggMean
	case sumWords.MatchString(text):
		return aggSum
	case countWords.MatchString(text):
		return aggCount
	}
	return aggNone
}

func (d *Heuristic) aggregateCSV(ctx context.Context, dataURL, question string, agg aggregate) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dataURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("data file returned status %d", resp.StatusCode)
	}

	r := csv.NewReader(io.LimitReader(resp.Body, maxDataBytes))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("parse csv: %w", err)
	}
	return aggregateRecords(records, question, agg)
}

// aggregateRecords applies agg to one numeric column. The column is the one whose
// header is named in the question, or else the last column with numeric data.
func aggregateRecords(records [][]string, question string, agg aggregate) (float64, error) {
	if len(records) == 0 {
		return 0, errors.New("empty csv")
	}
	header, rows := records[0], records[1:]
	if !looksLikeHeader(header) {
		header, rows = nil, records
	}
	if agg == aggCount {
		return float64(len(rows)), nil
	}

	col := namedColumn(header, question)
	if col < 0 {
		col = lastNumericColumn(rows)
	}
	if col < 0 {
		return 0, errors.New("no numeric column")
	}

	var sum float64
	var n int
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		v, ok := parseFinite(row[col])
		if !ok {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, errors.New("no numeric values")
	}
	if math.IsInf(sum, 0) {
		return 0, errors.New("sum overflows")
	}
	if agg == aggMean {
		return sum / float64(n), nil
	}
	return sum, nil
}

func looksLikeHeader(row []string) bool {
	for _, cell := range row {
		if _, ok := parseFinite(cell); ok {
			return false
		}
	}
	return true
}

func namedColumn(header []string, question string) int {
	lower := strings.ToLower(question)
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`).MatchString(lower) {
			return i
		}
	}
	return -1
}

// parseFinite parses a CSV cell as a number, rejecting NaN and infinities.
func parseFinite(cell string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func lastNumericColumn(rows [][]string) int {
	if len(rows) == 0 {
		return -1
	}
	for col := len(rows[0]) - 1; col >= 0; col-- {
		numeric := 0
		for _, row := range rows {
			if col < len(row) {
				if _, ok := parseFinite(row[col]); ok {
					numeric++
				}
			}
		}
		if numeric*2 > len(rows) {
			return col
		}
	}
	return -1
}
