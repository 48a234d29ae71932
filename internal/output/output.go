package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/vulnzap/vulnzap-client/internal/models"
)

// UI prints human readable CLI output
type UI struct {
	Verbose bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
)

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

// StatusColor returns the string colored by job status.
func StatusColor(status string) string {
	switch strings.ToLower(status) {
	case "completed", "resolved":
		return green(status)
	case "queued", "pending", "running", "in_progress":
		return yellow(status)
	case "failed", "error":
		return red(status)
	default:
		return status
	}
}

// Event prints one client event on a single line
func (u *UI) Event(evt models.ClientEvent) {
	fmt.Fprintln(u.Out, FormatEvent(evt, u.Verbose))
}

// FormatEvent renders evt as "<type> <subject> key=value..."
func FormatEvent(evt models.ClientEvent, verbose bool) string {
	var b strings.Builder

	switch evt.Type {
	case models.EventCompleted:
		b.WriteString(green(string(evt.Type)))
	case models.EventError:
		b.WriteString(red(string(evt.Type)))
	default:
		b.WriteString(cyan(string(evt.Type)))
	}

	subject := evt.JobID
	if subject == "" {
		subject = evt.SessionID
	}
	if subject != "" {
		b.WriteString(" ")
		b.WriteString(subject)
	}
	if evt.Source != "" {
		fmt.Fprintf(&b, " [%s]", evt.Source)
	}

	if msg := evt.Message; msg != "" {
		b.WriteString(" ")
		b.WriteString(msg)
	} else if evt.Err != nil {
		b.WriteString(" ")
		b.WriteString(evt.Err.Error())
	}

	keys := make([]string, 0, len(evt.Data))
	for k := range evt.Data {
		if !verbose && (k == "jobId" || k == "sessionId") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, evt.Data[k])
	}
	return b.String()
}

// JSON pretty prints v
func (u *UI) JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(u.Out, string(data))
	return err
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// CacheTable renders cache entries as a table
func (u *UI) CacheTable(entries []models.CacheEntry) error {
	table := u.Table([]string{"Identifier", "Job", "Mode", "Status", "Resolved", "Updated"})
	for _, e := range entries {
		updated := e.Timestamp
		if e.ResolvedTimestamp != nil {
			updated = *e.ResolvedTimestamp
		}
		resolved := yellow("no")
		if e.Resolved {
			resolved = green("yes")
		}
		if err := table.Append([]string{
			e.Identifier(),
			e.JobID,
			string(e.Mode),
			StatusColor(e.Status),
			resolved,
			updated.Local().Format(time.DateTime),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
