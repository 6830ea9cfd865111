package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/kbopt/internal/keyboard"
	"github.com/verte-zerg/kbopt/internal/metrics"
)

var lang = language.English

// PartReport is a named component of a measurement.
type PartReport struct {
	Name  string  `yaml:"name" json:"name"`
	Value float64 `yaml:"value" json:"value"`
}

// MeasureReport is the serialized form of a measurement.
type MeasureReport struct {
	Name      string       `yaml:"name" json:"name"`
	Unit      string       `yaml:"unit,omitempty" json:"unit,omitempty"`
	Total     float64      `yaml:"total" json:"total"`
	PerHand   []float64    `yaml:"per_hand,omitempty" json:"per_hand,omitempty"`
	PerFinger []float64    `yaml:"per_finger,omitempty" json:"per_finger,omitempty"`
	Parts     []PartReport `yaml:"parts,omitempty" json:"parts,omitempty"`
}

// Analysis is the evaluation of one layout against one corpus.
type Analysis struct {
	Layout     []string        `yaml:"layout" json:"layout"`
	Space      string          `yaml:"space" json:"space"`
	Characters uint64          `yaml:"characters" json:"characters"`
	Bigrams    uint64          `yaml:"bigrams" json:"bigrams"`
	Trigrams   uint64          `yaml:"trigrams" json:"trigrams"`
	KeyLag     float64         `yaml:"key_lag" json:"key_lag"`
	Score      float64         `yaml:"score" json:"score"`
	WorstKey   string          `yaml:"worst_key" json:"worst_key"`
	PerKey     [][]float64     `yaml:"per_key" json:"per_key"`
	Measures   []MeasureReport `yaml:"measures" json:"measures"`
}

// Analyze installs every measurement on the engine, resolves it from the
// live layout and collects the results.
func Analyze(e *metrics.Engine) (Analysis, error) {
	if err := e.InstallMeasures(); err != nil {
		return Analysis{}, fmt.Errorf("failed to install measures: %w", err)
	}
	if err := e.Resolve(); err != nil {
		return Analysis{}, fmt.Errorf("failed to resolve measures: %w", err)
	}
	layout, err := e.CurrentLayout()
	if err != nil {
		return Analysis{}, err
	}
	lag := e.KeyLag()
	tables := e.Session.Tables
	a := Analysis{
		Layout:     layout.RowStrings(),
		Space:      string(layout.Space),
		Characters: tables.CharHits(),
		Bigrams:    tables.BigramHits(),
		Trigrams:   tables.TrigramHits(),
		KeyLag:     lag.Total,
		Score:      e.Score().Total,
		WorstKey:   string(layout.At(keyboard.PosAt(lag.Worst()))),
		PerKey:     make([][]float64, keyboard.Rows),
	}
	for r := range a.PerKey {
		a.PerKey[r] = append([]float64(nil), lag.PerKey[r*keyboard.Cols:(r+1)*keyboard.Cols]...)
	}
	for _, m := range e.Measures() {
		a.Measures = append(a.Measures, measureReport(m))
	}
	return a, nil
}

func measureReport(m metrics.Measure) MeasureReport {
	out := MeasureReport{Name: m.Name, Unit: m.Unit, Total: m.Total}
	if m.HasBreakdown {
		out.PerHand = m.PerHand[:]
		out.PerFinger = m.PerFinger[:]
	}
	for _, p := range m.Parts {
		out.Parts = append(out.Parts, PartReport(p))
	}
	return out
}

// Measure returns the measurement named name.
func (a Analysis) Measure(name string) (MeasureReport, bool) {
	for _, m := range a.Measures {
		if m.Name == name {
			return m, true
		}
	}
	return MeasureReport{}, false
}

// RenderAnalysis prints the layout, the key lag grid and the measurement tables.
func RenderAnalysis(w io.Writer, a Analysis) error {
	p := message.NewPrinter(lang)
	var b strings.Builder
	b.WriteString("Layout\n")
	for _, row := range a.Layout {
		b.WriteString("  ")
		b.WriteString(strings.Join(strings.Split(row, ""), " "))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(p.Sprintf("Corpus: %d characters, %d bigrams, %d trigrams\n", a.Characters, a.Bigrams, a.Trigrams))
	b.WriteString(p.Sprintf("Key lag: %.4f  Score: %.4f  Worst key: %q\n\n", a.KeyLag, a.Score, a.WorstKey))

	b.WriteString("Key Lag\n")
	for r, row := range a.PerKey {
		cells := make([]string, len(row))
		for c, v := range row {
			cells[c] = fmt.Sprintf("%s %6.3f", string([]rune(a.Layout[r])[c]), v)
		}
		b.WriteString("  " + strings.Join(cells, "  ") + "\n")
	}
	b.WriteByte('\n')

	b.WriteString("Measures\n")
	rows := make([][]string, 0, len(a.Measures))
	for _, m := range a.Measures {
		left, right := "", ""
		if len(m.PerHand) == keyboard.HandCount {
			left, right = formatValue(m.PerHand[0], m.Unit), formatValue(m.PerHand[1], m.Unit)
		}
		rows = append(rows, []string{m.Name, formatValue(m.Total, m.Unit), left, right, formatParts(m)})
	}
	for _, line := range formatTable([]string{"Measure", "Total", "Left", "Right", "Parts"}, rows, map[int]bool{1: true, 2: true, 3: true}) {
		b.WriteString(line + "\n")
	}
	b.WriteByte('\n')

	if err := renderFingerTable(&b, a.Measures); err != nil {
		return err
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderFingerTable(b *strings.Builder, measures []MeasureReport) error {
	headers := []string{"Finger"}
	var cols []MeasureReport
	for _, m := range measures {
		if len(m.PerFinger) == keyboard.FingerCount {
			headers = append(headers, m.Name)
			cols = append(cols, m)
		}
	}
	if len(cols) == 0 {
		return nil
	}
	rows := make([][]string, 0, keyboard.FingerCount)
	right := map[int]bool{}
	for f := 0; f < keyboard.FingerCount; f++ {
		row := []string{keyboard.Finger(f).String()}
		for i, m := range cols {
			row = append(row, formatValue(m.PerFinger[f], m.Unit))
			right[i+1] = true
		}
		rows = append(rows, row)
	}
	b.WriteString("Per Finger\n")
	for _, line := range formatTable(headers, rows, right) {
		b.WriteString(line + "\n")
	}
	b.WriteByte('\n')
	return nil
}

func formatValue(v float64, unit string) string {
	if unit == "%" {
		return fmt.Sprintf("%.2f%%", v)
	}
	return fmt.Sprintf("%.3f", v)
}

func formatParts(m MeasureReport) string {
	parts := make([]string, len(m.Parts))
	for i, p := range m.Parts {
		parts[i] = p.Name + " " + formatValue(p.Value, m.Unit)
	}
	return strings.Join(parts, ", ")
}

// WriteYAML writes a as YAML. Innermost sequences use flow style.
func WriteYAML(w io.Writer, a Analysis) error {
	var node yaml.Node
	if err := node.Encode(a); err != nil {
		return err
	}
	flowLeafSequences(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// WriteJSON writes a as indented JSON.
func WriteJSON(w io.Writer, a Analysis) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// ReadYAML parses an analysis written by WriteYAML.
func ReadYAML(r io.Reader) (Analysis, error) {
	var a Analysis
	if err := yaml.NewDecoder(r).Decode(&a); err != nil {
		return Analysis{}, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return a, nil
}

func flowLeafSequences(n *yaml.Node) {
	if n == nil {
		return
	}
	nested := false
	for _, c := range n.Content {
		flowLeafSequences(c)
		if c.Kind == yaml.SequenceNode || c.Kind == yaml.MappingNode {
			nested = true
		}
	}
	if n.Kind == yaml.SequenceNode && !nested {
		n.Style = yaml.FlowStyle
	}
}
