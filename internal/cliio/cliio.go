// Package cliio holds the small terminal I/O helpers shared by commands:
// aligned tables and yes/no prompts.
package cliio

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/liggitt/tabwriter"
)

// Table accumulates rows for tab-aligned rendering.
type Table struct {
	Headers   []string
	Rows      [][]string
	NoHeaders bool
	// StripEscape hides tabwriter escape bytes (used around ANSI colors) from
	// both the width calculation and the output.
	StripEscape bool
}

// NewTable starts a table with the given header row.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers, StripEscape: true}
}

// Append adds one row.
func (t *Table) Append(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table to out.
func (t *Table) Render(out io.Writer) error {
	var flags uint
	if t.StripEscape {
		flags = tabwriter.StripEscape
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', flags)
	if !t.NoHeaders && len(t.Headers) > 0 {
		if _, err := fmt.Fprintln(w, strings.Join(t.Headers, "\t")); err != nil {
			return err
		}
	}
	for _, row := range t.Rows {
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteTable renders headers and rows in one call.
func WriteTable(out io.Writer, stripEscape bool, noHeaders bool, headers []string, rows [][]string) error {
	t := &Table{Headers: headers, Rows: rows, NoHeaders: noHeaders, StripEscape: stripEscape}
	return t.Render(out)
}

// PromptYesNo writes prompt and reads one line from in. Only "y" and "yes"
// (any case) confirm; EOF counts as no.
func PromptYesNo(out io.Writer, in io.Reader, prompt string) (bool, error) {
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
