// Package ingest builds benchmark datasets from a local tree of pyperf
// results, the same layout the upstream results API is fed from. Result
// directories are named bm-YYYYMMDD-<version>-<shorthash>[-JIT] and contain
// one pyperf JSON file per machine plus an optional README with the
// published geometric mean.
package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jit-bench/dashboard/types"
)

// variantSuffix marks a JIT build's result directory.
const variantSuffix = "-JIT"

// DirectoryInfo is the identity parsed from a result directory name. The
// directory name itself becomes the run's submission key.
type DirectoryInfo struct {
	Name       string
	Date       string
	BuildLabel string
	Commit     string
	IsVariant  bool
}

var (
	dateToken = regexp.MustCompile(`^\d{8}$`)
	hexToken  = regexp.MustCompile(`^[0-9a-fA-F]{6,40}$`)

	// geomeanPattern matches the published geometric-mean line in a result
	// README, e.g. "Geometric mean: 1.05x faster".
	geomeanPattern = regexp.MustCompile(`(?i)geometric\s+mean:?\s*\**\s*([0-9]+(?:\.[0-9]+)?)x\s+(faster|slower)`)

	// machineHeaderPattern matches a per-machine section header in a README,
	// e.g. "linux x86_64 (fedora)". The captured group is the machine name.
	machineHeaderPattern = regexp.MustCompile(`(?i)(?:linux|darwin|windows)\s+[\w_]+\s+\((\w+)\)`)
)

// ParseDirectoryName splits a result directory name into its identity
// parts. Non-matching names are rejected so stray directories in the
// results tree never turn into runs.
func ParseDirectoryName(name string) (*DirectoryInfo, error) {
	info := &DirectoryInfo{Name: name}

	rest := name
	if strings.HasSuffix(rest, variantSuffix) {
		info.IsVariant = true
		rest = strings.TrimSuffix(rest, variantSuffix)
	}

	tokens := strings.Split(rest, "-")
	if len(tokens) < 4 || tokens[0] != "bm" {
		return nil, fmt.Errorf("directory %q does not match bm-YYYYMMDD-version-hash", name)
	}

	if !dateToken.MatchString(tokens[1]) {
		return nil, fmt.Errorf("directory %q has no date token", name)
	}
	date, err := normalizeDate(tokens[1])
	if err != nil {
		return nil, fmt.Errorf("directory %q: %w", name, err)
	}
	info.Date = date

	commit := tokens[len(tokens)-1]
	if !hexToken.MatchString(commit) {
		return nil, fmt.Errorf("directory %q has no commit hash token", name)
	}
	info.Commit = strings.ToLower(commit)

	info.BuildLabel = strings.Join(tokens[2:len(tokens)-1], "-")
	if info.BuildLabel == "" {
		return nil, fmt.Errorf("directory %q has no version token", name)
	}

	return info, nil
}

// GroupKey identifies the submission group a directory belongs to: the
// baseline and JIT directories of one upload share date, version and hash.
func (d *DirectoryInfo) GroupKey() string {
	return d.Date + "-" + d.BuildLabel + "-" + d.Commit
}

// ParseResultFileName extracts the machine name and, when the filename
// carries one, the full commit hash from a per-machine result file name
// shaped bm-YYYYMMDD-<machine>-<os>-<arch>-...-<hash>.json. Hashes shorter
// than 20 hex characters are treated as absent; the directory's short hash
// stays authoritative then.
func ParseResultFileName(name string) (machine, fullCommit string, err error) {
	base, ok := strings.CutSuffix(name, ".json")
	if !ok {
		return "", "", fmt.Errorf("file %q is not a result file", name)
	}

	tokens := strings.Split(base, "-")
	if len(tokens) < 4 || tokens[0] != "bm" || !dateToken.MatchString(tokens[1]) {
		return "", "", fmt.Errorf("file %q does not match bm-YYYYMMDD-machine-...-hash.json", name)
	}

	machine = tokens[2]
	if machine == "" {
		return "", "", fmt.Errorf("file %q has no machine token", name)
	}

	if hash := tokens[len(tokens)-1]; len(hash) >= 20 && hexToken.MatchString(hash) {
		fullCommit = strings.ToLower(hash)
	}
	return machine, fullCommit, nil
}

// ParseReadmeGeomean scans README content for the published geometric mean
// and returns it as a speedup ratio: "1.05x faster" is 1.05, "1.03x slower"
// folds back below one as 0.97. The second return is false when no
// geometric-mean line is present.
func ParseReadmeGeomean(content string) (float64, bool) {
	return geomeanRatio(geomeanPattern.FindStringSubmatch(content))
}

// ParseMachineGeomeans scans README content for per-machine sections, each
// opened by a header like "linux x86_64 (fedora)", and returns the geometric
// mean published inside each section keyed by machine name. Geomean lines
// outside any section are ignored; READMEs without machine headers return an
// empty map and callers fall back on ParseReadmeGeomean.
func ParseMachineGeomeans(content string) map[string]float64 {
	ratios := make(map[string]float64)

	machine := ""
	for _, line := range strings.Split(content, "\n") {
		if header := machineHeaderPattern.FindStringSubmatch(line); header != nil {
			machine = header[1]
			continue
		}
		if machine == "" {
			continue
		}
		if ratio, ok := geomeanRatio(geomeanPattern.FindStringSubmatch(line)); ok {
			ratios[machine] = ratio
			machine = ""
		}
	}
	return ratios
}

// geomeanRatio folds a geomeanPattern match into a speedup ratio.
func geomeanRatio(matches []string) (float64, bool) {
	if matches == nil {
		return 0, false
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, false
	}

	if strings.EqualFold(matches[2], "slower") {
		return 1.0 - (value - 1.0), true
	}
	return value, true
}

// normalizeDate converts a YYYYMMDD token into the wire date format.
func normalizeDate(token string) (string, error) {
	if len(token) != 8 {
		return "", fmt.Errorf("invalid date token %q", token)
	}
	date := token[0:4] + "-" + token[4:6] + "-" + token[6:8]
	if err := types.ValidateDate(date); err != nil {
		return "", fmt.Errorf("invalid date token %q: %w", token, err)
	}
	return date, nil
}
