package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/joshp123/duckswarm/internal/choreo"
)

type outputMode struct {
	json bool
	w    io.Writer
}

func (o outputMode) writer() io.Writer {
	if o.w != nil {
		return o.w
	}
	return os.Stdout
}

func (o outputMode) printJSON(value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "format json: %v\n", err)
		return
	}
	fmt.Fprintln(o.writer(), string(data))
}

func (o outputMode) table(rows [][]string) {
	w := tabwriter.NewWriter(o.writer(), 2, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func (o outputMode) routines(routines []choreo.Routine) {
	summaries := summarize(routines)
	if o.json {
		o.printJSON(summaries)
		return
	}
	rows := [][]string{{"NAME", "MOVES", "DURATION"}}
	for _, s := range summaries {
		rows = append(rows, []string{s.Name, strconv.Itoa(s.Moves), strconv.FormatFloat(s.DurationS, 'f', -1, 64) + "s"})
	}
	o.table(rows)
}
