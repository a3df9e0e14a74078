package convert

import (
	"strings"
)

const (
	pptChunkSize   = 1 << 20
	pptMinRunChars = 10
)

// convertPPT scans the legacy binary container for printable runs. The
// format interleaves text with records and UTF-16 payloads, so the output
// is best-effort and always delivered with an advisory.
func convertPPT(data []byte) Result {
	var runs []string
	for off := 0; off < len(data); off += pptChunkSize {
		end := off + pptChunkSize
		if end > len(data) {
			end = len(data)
		}
		runs = append(runs, printableRuns(data[off:end])...)
	}

	text := strings.TrimSpace(strings.Join(runs, "\n"))
	if text == "" {
		return Result{
			OK:       true,
			Advisory: "Aus der Präsentation konnte kein Text gelesen werden.",
		}
	}
	return Result{
		Text:     text,
		OK:       true,
		Advisory: "Der Text wurde heuristisch aus der Präsentation gelesen und kann unvollständig sein.",
	}
}

// printableRuns collects ASCII sequences of at least pptMinRunChars.
// Runs containing angle brackets are dropped: those are embedded XML or
// HTML fragments, not slide text.
func printableRuns(chunk []byte) []string {
	var runs []string
	var cur []byte
	flush := func() {
		if len(cur) >= pptMinRunChars {
			run := strings.TrimSpace(string(cur))
			if len(run) >= pptMinRunChars && !strings.ContainsAny(run, "<>") {
				runs = append(runs, run)
			}
		}
		cur = cur[:0]
	}
	for _, b := range chunk {
		if b >= 0x20 && b < 0x7F {
			cur = append(cur, b)
			continue
		}
		flush()
	}
	flush()
	return runs
}
