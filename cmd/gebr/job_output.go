package main

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"gebr/internal/job"
	"gebr/internal/notify"
	"gebr/internal/queue"
)

var statusCaser = cases.Title(language.English)

// displayStatus renders a status token for humans.
func displayStatus(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return "-"
	}
	return statusCaser.String(token)
}

func terminalToken(token string) bool {
	return job.Status(token).Terminal()
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func jobRows(jobs []job.Record) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, rec := range jobs {
		rows = append(rows, []string{
			rec.ID,
			rec.Queue,
			displayStatus(rec.Status),
			orDash(rec.Title),
			orDash(rec.StartDate),
			orDash(rec.FinishDate),
		})
	}
	return rows
}

func renderJobList(out io.Writer, jobs []job.Record) {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs")
		return
	}
	fmt.Fprintln(out, renderTable(columns("ID", "Queue", "Status", "Title", "Started", "Finished"), jobRows(jobs)))
}

func renderJobDetail(out io.Writer, rec job.Record) {
	fields := []struct {
		label string
		value string
	}{
		{"ID", rec.ID},
		{"Title", rec.Title},
		{"Status", displayStatus(rec.Status)},
		{"Queue", rec.Queue},
		{"Host", rec.Hostname},
		{"Run ID", rec.RunID},
		{"Batch ID", rec.BatchID},
		{"Started", rec.StartDate},
		{"Finished", rec.FinishDate},
		{"Command", rec.CmdLine},
	}
	for _, field := range fields {
		fmt.Fprintf(out, "%-10s %s\n", field.label+":", orDash(field.value))
	}
	if len(rec.Issues) > 0 {
		fmt.Fprintln(out, "Issues:")
		for _, issue := range rec.Issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
	}
	if rec.Output != "" {
		fmt.Fprintln(out, "Output:")
		fmt.Fprint(out, rec.Output)
		if !strings.HasSuffix(rec.Output, "\n") {
			fmt.Fprintln(out)
		}
	}
}

func renderQueues(out io.Writer, queues []queue.Info) {
	if len(queues) == 0 {
		fmt.Fprintln(out, "No queues")
		return
	}
	rows := make([][]string, 0, len(queues))
	for _, q := range queues {
		busy := "idle"
		if q.Busy {
			busy = "busy"
		}
		reserved := ""
		if q.Reserved {
			reserved = "yes"
		}
		rows = append(rows, []string{q.Name, busy, orDash(q.ActiveID), fmt.Sprintf("%d", q.Pending), reserved})
	}
	cols := columns("Queue", "State", "Active", "Pending", "Reserved")
	cols[3].numeric = true
	fmt.Fprintln(out, renderTable(cols, rows))
}

// formatMessage renders one notification as a single log-style line. Output
// chunks are returned verbatim.
func formatMessage(msg notify.Message) string {
	switch msg.Kind {
	case notify.KindOutput:
		return msg.Chunk
	case notify.KindJob:
		title := ""
		if msg.Job != nil {
			title = msg.Job.Title
		}
		return fmt.Sprintf("[%s] job %s (%s)\n", msg.JobID, displayStatus(msg.Status), orDash(title))
	default:
		if msg.Parameter != "" {
			return fmt.Sprintf("[%s] %s: %s\n", msg.JobID, displayStatus(msg.Status), msg.Parameter)
		}
		return fmt.Sprintf("[%s] %s\n", msg.JobID, displayStatus(msg.Status))
	}
}
