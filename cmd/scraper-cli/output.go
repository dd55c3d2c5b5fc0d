package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"jobhound/internal/models"
	"jobhound/internal/scraper"
	"jobhound/internal/storage"
)

func outputJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

func printProgress(w io.Writer, r scraper.StatusReport) {
	c := r.Counts
	fmt.Fprintf(w, "[%s] %5.0fs queries %d/%d (failed %d)  urls %d  extracted %d  dups %d  saved %d\n",
		r.Status, r.ElapsedSeconds, c.QueriesDone, c.QueriesPlanned, c.QueryFailures,
		c.URLsFound, c.PostingsExtracted, c.DuplicatesObserved, c.JobsPersisted)
}

func printSession(w io.Writer, s models.ScrapingSession) {
	c := s.Counts
	fmt.Fprintln(w, "=== Run Summary ===")
	fmt.Fprintf(w, "Session: %s\n", s.ID)
	fmt.Fprintf(w, "Status: %s\n", s.Status)
	if s.ErrorMessage != "" {
		fmt.Fprintf(w, "Message: %s\n", s.ErrorMessage)
	}
	if s.EndTime != nil {
		fmt.Fprintf(w, "Duration: %v\n", s.EndTime.Sub(s.StartTime).Round(time.Second))
	}
	fmt.Fprintf(w, "Queries: %d planned, %d done, %d failed\n", c.QueriesPlanned, c.QueriesDone, c.QueryFailures)
	fmt.Fprintf(w, "URLs found: %d\n", c.URLsFound)
	fmt.Fprintf(w, "Postings extracted: %d (%d failures)\n", c.PostingsExtracted, c.ExtractionFailures)
	fmt.Fprintf(w, "Duplicates: %d\n", c.DuplicatesObserved)
	fmt.Fprintf(w, "Jobs saved: %d (%d failures)\n", c.JobsPersisted, c.PersistenceFailures)
}

func printJobs(w io.Writer, jobs []models.ScoredJob) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tTITLE\tCOMPANY\tLOCATION\tSOURCE\tURL")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%.1f\t%s\t%s\t%s\t%s\t%s\n",
			j.MatchScore, truncate(j.Title, 48), truncate(j.Company, 24), truncate(j.Location, 24), j.Source, j.URL)
	}
	tw.Flush()
}

func printSessions(w io.Writer, sessions []models.ScrapingSession) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tURLS\tSAVED\tMESSAGE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.StartTime.Local().Format("2006-01-02 15:04"), s.Status,
			s.Counts.URLsFound, s.Counts.JobsPersisted, s.ErrorMessage)
	}
	tw.Flush()
}

func printStats(w io.Writer, st *storage.JobStats) {
	fmt.Fprintf(w, "Jobs: %d  Average score: %.1f  Companies: %d  Sources: %d\n",
		st.TotalJobs, st.AverageScore, st.UniqueCompanies, st.UniqueSources)
	for _, group := range []struct {
		title  string
		counts []storage.NamedCount
	}{{"TOP COMPANIES", st.TopCompanies}, {"SOURCES", st.Sources}} {
		if len(group.counts) == 0 {
			continue
		}
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "%s\tJOBS\n", group.title)
		for _, c := range group.counts {
			fmt.Fprintf(tw, "%s\t%d\n", c.Name, c.Count)
		}
		tw.Flush()
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
