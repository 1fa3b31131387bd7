// Package ghoutput publishes build results to GitHub Actions.
package ghoutput

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/codex-k8s/buildctl/internal/timer"
)

const (
	// OutputEnv names the file collecting step outputs.
	OutputEnv = "GITHUB_OUTPUT"
	// SummaryEnv names the file collecting the job summary markdown.
	SummaryEnv = "GITHUB_STEP_SUMMARY"
)

const delimiter = "BUILDCTL_EOF"

// Write appends outputs to the file named by GITHUB_OUTPUT. It is a no-op outside Actions.
func Write(values map[string]string) error {
	return WriteFile(strings.TrimSpace(os.Getenv(OutputEnv)), values)
}

// WriteFile appends outputs to path; an empty path does nothing.
func WriteFile(path string, values map[string]string) error {
	if path == "" || len(values) == 0 {
		return nil
	}
	return appendTo(path, func(w io.Writer) error {
		return writeValues(w, values)
	})
}

func writeValues(w io.Writer, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := values[key]
		var err error
		if strings.ContainsAny(value, "\r\n") {
			_, err = fmt.Fprintf(w, "%s<<%s\n%s\n%s\n", key, delimiter, strings.ReplaceAll(value, "\r", ""), delimiter)
		} else {
			_, err = fmt.Fprintf(w, "%s=%s\n", key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Summary appends a markdown table of step timings to GITHUB_STEP_SUMMARY.
func Summary(title, status string, steps []timer.Step) error {
	path := strings.TrimSpace(os.Getenv(SummaryEnv))
	if path == "" {
		return nil
	}
	return appendTo(path, func(w io.Writer) error {
		return writeSummary(w, title, status, steps)
	})
}

func writeSummary(w io.Writer, title, status string, steps []timer.Step) error {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s: %s\n\n", title, status)
	if len(steps) > 0 {
		b.WriteString("| Step | Seconds |\n|---|---:|\n")
		var total float64
		for _, s := range steps {
			fmt.Fprintf(&b, "| %s | %.3f |\n", s.Name, s.Seconds)
			total += s.Seconds
		}
		fmt.Fprintf(&b, "| **Total** | %.3f |\n", total)
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func appendTo(path string, fn func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
