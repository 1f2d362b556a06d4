package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each section.
var knownKeys = map[string][]string{
	"drive": {"drive_id", "token_file", "api_base_url", "client_id", "client_secret"},
	"transfers": {
		"part_size", "download_chunk_size", "download_workers", "part_timeout",
		"prehash_threshold", "download_mode", "check_name_mode", "state_dir",
	},
	"network": {"connect_timeout", "data_timeout", "user_agent", "max_retries"},
	"logging": {"log_level", "log_format"},
}

// knownSections is the sorted section list for Levenshtein matching.
var knownSections = func() []string {
	out := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key. An
// unknown section is reported once, not once per key inside it.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	reported := make(map[string]bool)

	for _, key := range undecoded {
		section := key[0]

		if _, ok := knownKeys[section]; !ok {
			if reported[section] {
				continue
			}

			reported[section] = true
			isTable := len(key) > 1 || md.Type(section) == "Hash"
			errs = append(errs, sectionError(section, isTable))

			continue
		}

		errs = append(errs, keyError(section, strings.Join(key[1:], ".")))
	}

	return errors.Join(errs...)
}

// sectionError reports an unknown top-level name, suggesting the closest
// known section when one is near enough.
func sectionError(section string, isTable bool) error {
	if !isTable {
		return fmt.Errorf("unknown config key %q at top level: settings belong in a [section]", section)
	}

	if suggestion := closestMatch(section, knownSections); suggestion != "" {
		return fmt.Errorf("unknown config section [%s]: did you mean [%s]?", section, suggestion)
	}

	return fmt.Errorf("unknown config section [%s]", section)
}

// keyError reports an unknown key inside a known section.
func keyError(section, name string) error {
	sorted := append([]string(nil), knownKeys[section]...)
	sort.Strings(sorted)

	if suggestion := closestMatch(name, sorted); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s]: did you mean %q?", name, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", name, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization avoids allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
