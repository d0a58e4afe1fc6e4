package archive

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// RunRetention performs one weekly rollup pass: for every (source, ref)
// file older than cfg.KeepPreviousWeeks weeks, lines are deduplicated by
// a blake2b-256 content hash of the normalized line and rewritten,
// collapsing duplicate entries a crash-restart race may have produced.
// Retention is best-effort:
// individual file errors are logged and skipped rather than aborting the
// whole sweep.
func (a *Archive) RunRetention(ctx context.Context) RetentionReport {
	report := RetentionReport{}
	cutoff := time.Now().UTC().AddDate(0, 0, -7*a.cfg.KeepPreviousWeeks)

	sources, err := a.backend().ListDir(ctx, a.cfg.BaseDir)
	if err != nil {
		a.logger.Warn("archive: retention could not list base dir", "error", err)
		return report
	}

	for _, source := range sources {
		if strings.HasPrefix(source, ".") {
			continue
		}
		a.rollupSource(ctx, source, cutoff, &report)
	}
	return report
}

// RetentionReport summarizes one RunRetention pass for stats/logging.
type RetentionReport struct {
	FilesScanned   int
	FilesDeduped   int
	DuplicateLines int
	Errors         int
}

func (a *Archive) rollupSource(ctx context.Context, source string, cutoff time.Time, report *RetentionReport) {
	sourceDir := a.cfg.BaseDir + "/" + source
	files, err := a.backend().ListDir(ctx, sourceDir)
	if err != nil {
		report.Errors++
		a.logger.Warn("archive: retention could not list source dir", "source", source, "error", err)
		return
	}

	for _, name := range files {
		date, ok := dateFromFilename(name, a.cfg.FileExtension)
		if !ok || !date.Before(cutoff) {
			continue
		}
		report.FilesScanned++

		path := sourceDir + "/" + name
		data, err := a.backend().ReadFile(ctx, path)
		if err != nil {
			report.Errors++
			a.logger.Warn("archive: retention read failed", "path", path, "error", err)
			continue
		}

		deduped, dupCount := dedupLines(splitLines(string(data)))
		if dupCount == 0 {
			continue
		}

		out := strings.Join(deduped, "\n") + "\n"
		if err := a.backend().WriteFile(ctx, path, []byte(out)); err != nil {
			report.Errors++
			a.logger.Warn("archive: retention rewrite failed", "path", path, "error", err)
			continue
		}
		report.FilesDeduped++
		report.DuplicateLines += dupCount
	}
}

// dedupLines collapses lines with identical blake2b-256 content hashes,
// preserving the first occurrence's position.
func dedupLines(lines []string) (out []string, duplicates int) {
	seen := make(map[[32]byte]struct{}, len(lines))
	out = make([]string, 0, len(lines))
	for _, line := range lines {
		h := blake2b.Sum256([]byte(normalizeLine(line)))
		if _, ok := seen[h]; ok {
			duplicates++
			continue
		}
		seen[h] = struct{}{}
		out = append(out, line)
	}
	return out, duplicates
}

// normalizeLine trims surrounding whitespace so cosmetic differences
// (e.g. a trailing space from a racing partial write) don't defeat
// content-hash dedup.
func normalizeLine(line string) string {
	return strings.TrimSpace(line)
}

// dateFromFilename parses the YYYYMMDD component out of "<ref>.<date>.<ext>".
func dateFromFilename(name, ext string) (time.Time, bool) {
	suffix := "." + ext
	if !strings.HasSuffix(name, suffix) {
		return time.Time{}, false
	}
	trimmed := strings.TrimSuffix(name, suffix)
	idx := strings.LastIndex(trimmed, ".")
	if idx < 0 {
		return time.Time{}, false
	}
	dateStr := trimmed[idx+1:]
	t, err := time.Parse("20060102", dateStr)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
