package metrics

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// FileStats holds content metrics for one version of a file.
type FileStats struct {
	Hash       string
	Lines      int
	Size       int64
	Complexity int
}

// LineDelta holds the lines added and deleted between two versions.
type LineDelta struct {
	Added   int
	Deleted int
}

var branchKeyword = regexp.MustCompile(`\b(if|else|for|while|switch|try|catch)\b`)

// Measure hashes content and counts its lines and branch points.
func Measure(content []byte) FileStats {
	sum := sha256.Sum256(content)
	text := string(content)
	return FileStats{
		Hash:       hex.EncodeToString(sum[:]),
		Lines:      len(splitLines(text)),
		Size:       int64(len(content)),
		Complexity: Complexity(text),
	}
}

// Complexity is a cyclomatic-style count: 1 plus every branch keyword and
// ternary operator in the text.
func Complexity(text string) int {
	return 1 + len(branchKeyword.FindAllStringIndex(text, -1)) + countTernaries(text)
}

// countTernaries counts '?' that are not part of '?.' or '??'.
func countTernaries(text string) int {
	n := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '?' {
			continue
		}
		if i+1 < len(text) && (text[i+1] == '.' || text[i+1] == '?') {
			i++
			continue
		}
		n++
	}
	return n
}

// ComputeLineDelta compares two versions line by line, ignoring order.
//
// Each non-empty line of before is hashed into a frequency map. Lines of
// after consume one matching occurrence; the rest are additions. Occurrences
// left in the map are deletions. A line moved within the file therefore
// counts as neither.
func ComputeLineDelta(before, after string) LineDelta {
	remaining := make(map[string]int)
	for _, line := range splitNonEmpty(before) {
		remaining[hashLine(line)]++
	}

	var d LineDelta
	for _, line := range splitNonEmpty(after) {
		h := hashLine(line)
		if remaining[h] > 0 {
			remaining[h]--
			continue
		}
		d.Added++
	}
	for _, n := range remaining {
		d.Deleted += n
	}
	return d
}

// CountDelta approximates a delta when only line counts are known.
func CountDelta(beforeLines, afterLines int) LineDelta {
	if afterLines >= beforeLines {
		return LineDelta{Added: afterLines - beforeLines}
	}
	return LineDelta{Deleted: beforeLines - afterLines}
}

// splitNonEmpty splits content into lines, excluding empty/whitespace-only
// lines.
func splitNonEmpty(s string) []string {
	var result []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}

// splitLines splits content into lines, excluding the empty trailing line
// from a trailing newline.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// hashLine returns a hex-encoded SHA-256 hash of a trimmed line.
// Trimming whitespace avoids false positives from indentation changes.
func hashLine(line string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(line)))
	return hex.EncodeToString(h[:])
}
