package database

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Console prints run status to the terminal
type Console struct {
	out  io.Writer
	ok   *color.Color
	warn *color.Color
	fail *color.Color
}

// NewConsole writes to out, or stdout when out is nil.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{
		out:  out,
		ok:   color.New(color.FgGreen, color.Bold),
		warn: color.New(color.FgYellow),
		fail: color.New(color.FgRed, color.Bold),
	}
}

// Step starts a status line that OK or Done completes.
func (c *Console) Step(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) OK() {
	fmt.Fprintln(c.out, c.ok.Sprint("OK"))
}

func (c *Console) Done() {
	fmt.Fprintln(c.out, c.ok.Sprint("Done"))
}

func (c *Console) Warn(format string, args ...any) {
	fmt.Fprintln(c.out, c.warn.Sprintf(format, args...))
}

func (c *Console) Fail(err error) {
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, " %s\n", c.fail.Sprint(err.Error()))
}

// TableStart announces the export of a table.
func (c *Console) TableStart(table string) {
	fmt.Fprintf(c.out, "Exporting table %s ... \n", table)
}

// Rows rewrites the current progress line.
func (c *Console) Rows(n int64) {
	fmt.Fprintf(c.out, "\r %d rows", n)
}

// TableDone finishes the progress line of a table.
func (c *Console) TableDone(n int64) {
	fmt.Fprintf(c.out, "\rExported %d rows\n", n)
}
