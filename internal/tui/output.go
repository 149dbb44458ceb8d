package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Output is where commands write results.
type Output interface {
	Success(msg string)
	Error(err error)
	Warning(msg string)
	Info(msg string)

	// Table writes rows under headers.
	Table(headers []string, rows [][]string)

	// JSON writes v as JSON. Text output indents it.
	JSON(v any) error
}

// NewOutput creates the Output for format.
func NewOutput(w io.Writer, format string) Output {
	if format == FormatJSON {
		return NewJSONOutput(w)
	}
	return NewTTYOutput(w)
}

// TTYOutput provides styled terminal output using Lip Gloss.
type TTYOutput struct {
	w      io.Writer
	styles *OutputStyles
	table  *TableStyles
}

// NewTTYOutput creates a TTYOutput. It respects NO_COLOR.
func NewTTYOutput(w io.Writer) *TTYOutput {
	CheckNoColor()
	return &TTYOutput{
		w:      w,
		styles: NewOutputStyles(),
		table:  NewTableStyles(),
	}
}

// Success outputs a success message with a ✓ icon.
func (o *TTYOutput) Success(msg string) {
	_, _ = fmt.Fprintln(o.w, o.styles.Success.Render("✓ "+msg))
}

// Error outputs an error with a ✗ icon.
func (o *TTYOutput) Error(err error) {
	_, _ = fmt.Fprintln(o.w, o.styles.Error.Render("✗ "+err.Error()))
}

// Warning outputs a warning with a ⚠ icon.
func (o *TTYOutput) Warning(msg string) {
	_, _ = fmt.Fprintln(o.w, o.styles.Warning.Render("⚠ "+msg))
}

// Info outputs an informational message.
func (o *TTYOutput) Info(msg string) {
	_, _ = fmt.Fprintln(o.w, o.styles.Info.Render("ℹ "+msg))
}

// Table outputs rows with columns sized to the widest cell.
func (o *TTYOutput) Table(headers []string, rows [][]string) {
	NewTable(o.w, headers).Render(rows)
}

// JSON outputs v as indented JSON.
func (o *TTYOutput) JSON(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Raw writes pre-rendered text.
func (o *TTYOutput) Raw(s string) {
	_, _ = fmt.Fprint(o.w, s)
	if !strings.HasSuffix(s, "\n") {
		_, _ = fmt.Fprintln(o.w)
	}
}

// JSONOutput writes one JSON object per line.
type JSONOutput struct {
	enc *json.Encoder
}

// NewJSONOutput creates a JSONOutput.
func NewJSONOutput(w io.Writer) *JSONOutput {
	return &JSONOutput{enc: json.NewEncoder(w)}
}

type jsonMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Success outputs {"type":"success","message":...}.
func (o *JSONOutput) Success(msg string) {
	_ = o.enc.Encode(jsonMessage{Type: "success", Message: msg}) //nolint:errchkjson // no error return
}

// Error outputs {"type":"error","message":...}.
func (o *JSONOutput) Error(err error) {
	_ = o.enc.Encode(jsonMessage{Type: "error", Message: err.Error()}) //nolint:errchkjson // no error return
}

// Warning outputs {"type":"warning","message":...}.
func (o *JSONOutput) Warning(msg string) {
	_ = o.enc.Encode(jsonMessage{Type: "warning", Message: msg}) //nolint:errchkjson // no error return
}

// Info outputs {"type":"info","message":...}.
func (o *JSONOutput) Info(msg string) {
	_ = o.enc.Encode(jsonMessage{Type: "info", Message: msg}) //nolint:errchkjson // no error return
}

// Table outputs rows as an array of objects keyed by header.
func (o *JSONOutput) Table(headers []string, rows [][]string) {
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		obj := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				obj[h] = row[i]
			} else {
				obj[h] = ""
			}
		}
		out = append(out, obj)
	}
	_ = o.enc.Encode(out) //nolint:errchkjson // no error return
}

// JSON outputs v.
func (o *JSONOutput) JSON(v any) error {
	return o.enc.Encode(v)
}
