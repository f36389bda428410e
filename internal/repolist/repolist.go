// Package repolist loads the desired repository list from a newline-delimited
// input file.
package repolist

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrEmptyList indicates the input file contained no repository names.
var ErrEmptyList = errors.New("repository list is empty")

// Set is the deduplicated set of desired repository names.
type Set map[string]struct{}

// Load reads repository names from path, one per line. Surrounding whitespace
// is trimmed, blank lines are discarded and duplicates are collapsed.
func Load(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository list: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	set := make(Set)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read repository list: %w", err)
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyList, path)
	}

	return set, nil
}

// Contains reports whether name is in the set.
func (s Set) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the repository names in sorted order for deterministic
// iteration and logging.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
