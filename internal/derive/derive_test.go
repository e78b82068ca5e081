package derive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		mode NumberMode
		want any
	}{
		{"object", `{"x":1}`, NumbersAsNumber, map[string]any{"x": json.Number("1")}},
		{"number default", "42", NumbersAsNumber, json.Number("42")},
		{"number as string", "42", NumbersAsString, "42"},
		{"float", " 3.14\n", NumbersAsNumber, json.Number("3.14")},
		{"bool", "true", NumbersAsNumber, true},
		{"quoted string", `"Paris"`, NumbersAsNumber, "Paris"},
		{"plain text", "  Paris  ", NumbersAsNumber, "Paris"},
		{"array", `[1, "a"]`, NumbersAsNumber, []any{json.Number("1"), "a"}},
		{"fenced json", "```json\n{\"ok\": true}\n```", NumbersAsNumber, map[string]any{"ok": true}},
		{"fenced text", "```\nhello\n```", NumbersAsNumber, "hello"},
		{"trailing text", `42 apples`, NumbersAsNumber, "42 apples"},
		{"two values", `{"a":1} {"b":2}`, NumbersAsNumber, `{"a":1} {"b":2}`},
		{"nested number kept in string mode", `{"n":7}`, NumbersAsString, map[string]any{"n": json.Number("7")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAnswer(tt.raw, tt.mode))
		})
	}
}

func TestParseNumberMode(t *testing.T) {
	m, err := ParseNumberMode("")
	require.NoError(t, err)
	assert.Equal(t, NumbersAsNumber, m)

	m, err = ParseNumberMode("STRING")
	require.NoError(t, err)
	assert.Equal(t, NumbersAsString, m)

	_, err = ParseNumberMode("float")
	require.Error(t, err)
}

func TestFormatAnswer(t *testing.T) {
	assert.Equal(t, "Paris", FormatAnswer("Paris"))
	assert.Equal(t, "42", FormatAnswer(json.Number("42")))
	assert.Equal(t, `{"a":"<b>"}`, FormatAnswer(map[string]any{"a": "<b>"}))
	assert.Equal(t, "null", FormatAnswer(nil))
}

type fakeCompleter struct {
	reply        string
	err          error
	system, user string
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.reply, f.err
}

func TestLLMDerive(t *testing.T) {
	fc := &fakeCompleter{reply: "```json\n{\"total\": 12}\n```"}
	d, err := NewLLM(fc, NumbersAsNumber)
	require.NoError(t, err)
	assert.Equal(t, "llm", d.Name())

	got, err := d.Derive(context.Background(), Question{
		Text:         "Sum the numbers and reply as JSON.",
		DataURL:      "https://q.example.com/data.csv",
		SystemPrompt: "You are a careful analyst.",
		UserPrompt:   "Use integers.",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": json.Number("12")}, got)
	assert.Equal(t, "You are a careful analyst.", fc.system)
	assert.Contains(t, fc.user, "Sum the numbers")
	assert.Contains(t, fc.user, "https://q.example.com/data.csv")
	assert.Contains(t, fc.user, "Use integers.")
}

func TestLLMDeriveErrors(t *testing.T) {
	t.Run("empty reply", func(t *testing.T) {
		d, err := NewLLM(&fakeCompleter{reply: " \n\t"}, NumbersAsNumber)
		require.NoError(t, err)
		_, err = d.Derive(context.Background(), Question{Text: "Q"})
		require.ErrorIs(t, err, ErrDerivation)
		assert.Contains(t, err.Error(), "empty answer")
	})

	t.Run("model failure", func(t *testing.T) {
		d, err := NewLLM(&fakeCompleter{err: errors.New("rate limited")}, NumbersAsNumber)
		require.NoError(t, err)
		_, err = d.Derive(context.Background(), Question{Text: "Q"})
		require.ErrorIs(t, err, ErrDerivation)
		assert.Contains(t, err.Error(), "rate limited")
	})
}

func serveCSV(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data.csv" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHeuristicDerive(t *testing.T) {
	srv := serveCSV(t, "id,value,label\n1,10,a\n2,20,b\n3,30.5,c\n")
	csvURL := srv.URL + "/data.csv"

	tests := []struct {
		name    string
		q       Question
		numbers NumberMode
		want    any
	}{
		{"sum named column", Question{Text: `Sum the "value" column.`, DataURL: csvURL}, NumbersAsNumber, json.Number("60.5")},
		{"mean", Question{Text: "What is the average value?", DataURL: csvURL}, NumbersAsNumber, json.Number("20.166666666666668")},
		{"count rows", Question{Text: "How many rows are in the file?", DataURL: csvURL}, NumbersAsNumber, json.Number("3")},
		{"sum as string", Question{Text: "What is the total?", DataURL: csvURL}, NumbersAsString, "60.5"},
		{"aggregation without data", Question{Text: "What is the sum?"}, NumbersAsNumber, json.Number("0")},
		{"aggregation with pdf", Question{Text: "Sum the table", DataURL: srv.URL + "/report.pdf"}, NumbersAsNumber, json.Number("0")},
		{"missing csv", Question{Text: "Sum it", DataURL: srv.URL + "/missing.csv"}, NumbersAsNumber, json.Number("0")},
		{"true or false", Question{Text: "True or false: Go has generics."}, NumbersAsNumber, true},
		{"yes/no", Question{Text: "Answer yes/no: is the sky blue?"}, NumbersAsNumber, true},
		{"fallback", Question{Text: "What is the secret code?"}, NumbersAsNumber, PlaceholderText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewHeuristic(srv.Client(), tt.numbers)
			got, err := d.Derive(context.Background(), tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeuristicEmptyQuestion(t *testing.T) {
	_, err := NewHeuristic(nil, NumbersAsNumber).Derive(context.Background(), Question{Text: "  "})
	require.ErrorIs(t, err, ErrDerivation)
}

func TestAggregateRecords(t *testing.T) {
	t.Run("headerless uses last numeric column", func(t *testing.T) {
		v, err := aggregateRecords([][]string{{"a", "1", "x"}, {"b", "2", "y"}}, "sum", aggSum)
		require.NoError(t, err)
		assert.Equal(t, 3.0, v)
	})
	t.Run("no numeric column", func(t *testing.T) {
		_, err := aggregateRecords([][]string{{"name"}, {"a"}, {"b"}}, "sum", aggSum)
		require.Error(t, err)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := aggregateRecords(nil, "sum", aggSum)
		require.Error(t, err)
	})
	t.Run("non-finite cells skipped", func(t *testing.T) {
		v, err := aggregateRecords([][]string{{"id", "value"}, {"1", "Inf"}, {"2", "4"}, {"3", "-infinity"}}, "sum of value", aggSum)
		require.NoError(t, err)
		assert.Equal(t, 4.0, v)
	})
	t.Run("overflow", func(t *testing.T) {
		_, err := aggregateRecords([][]string{{"1e308"}, {"1e308"}}, "sum", aggSum)
		require.Error(t, err)
	})
}

func TestHeuristicSkipsNaN(t *testing.T) {
	srv := serveCSV(t, "id,value\n1,10\n2,NaN\n3,5\n")

	got, err := NewHeuristic(srv.Client(), NumbersAsNumber).
		Derive(context.Background(), Question{Text: "What is the sum of the value column?", DataURL: srv.URL + "/data.csv"})
	require.NoError(t, err)
	assert.Equal(t, json.Number("15"), got)

	_, err = json.Marshal(map[string]any{"answer": got})
	require.NoError(t, err)
}
