// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

import (
	"os"
	"path/filepath"
	"strings"
)

// Name-similarity weights. A candidate needs minFuzzyScore to be considered
// at all, so wholly unrelated files never serve as a basis.
const (
	minFuzzyScore       = 10
	prefixMatchPoints   = 10
	suffixMatchPoints   = 8
	extensionMatchBonus = 50
	sizeSimilarityBonus = 30
)

// FuzzyMatch is a basis candidate picked by name and size similarity.
type FuzzyMatch struct {
	Path  string
	Size  int64
	Score int
}

// FindSimilar scans dirs for the regular file most similar to name, for use
// as a delta basis when the file itself is gone. Renamed versions and
// re-extensioned siblings score high; an exact name match is skipped since
// the caller already knows that file is not usable. Unreadable directories
// are skipped. The first candidate with the best score wins.
func FindSimilar(name string, size int64, dirs ...string) (FuzzyMatch, bool) {
	var best FuzzyMatch
	found := false
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.Name() == name || !entry.Type().IsRegular() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			score := similarityScore(name, entry.Name(), size, info.Size())
			if score < minFuzzyScore {
				continue
			}
			if !found || score > best.Score {
				best = FuzzyMatch{
					Path:  filepath.Join(dir, entry.Name()),
					Size:  info.Size(),
					Score: score,
				}
				found = true
			}
		}
	}
	return best, found
}

// similarityScore weighs how plausible candidate is as a basis for name:
// shared base-name prefix and suffix runes, same extension, and a size
// within a factor of two.
func similarityScore(name, candidate string, nameSize, candSize int64) int {
	nameBase, nameExt := splitExt(name)
	candBase, candExt := splitExt(candidate)
	score := prefixMatchPoints * commonPrefixLen(nameBase, candBase)
	score += suffixMatchPoints * commonSuffixLen(nameBase, candBase)
	if nameExt != "" && nameExt == candExt {
		score += extensionMatchBonus
	}
	lo, hi := nameSize, candSize
	if lo > hi {
		lo, hi = hi, lo
	}
	if 2*lo >= hi {
		score += sizeSimilarityBonus
	}
	return score
}

// splitExt splits name at the last dot. A leading or trailing dot is part of
// the base, so hidden files have no extension.
func splitExt(name string) (base, ext string) {
	pos := strings.LastIndexByte(name, '.')
	if pos <= 0 || pos == len(name)-1 {
		return name, ""
	}
	return name[:pos], name[pos+1:]
}

func commonPrefixLen(a, b string) int {
	ar, br := []rune(a), []rune(b)
	n := 0
	for n < len(ar) && n < len(br) && ar[n] == br[n] {
		n++
	}
	return n
}

func commonSuffixLen(a, b string) int {
	ar, br := []rune(a), []rune(b)
	i, j := len(ar)-1, len(br)-1
	n := 0
	for i >= 0 && j >= 0 && ar[i] == br[j] {
		i--
		j--
		n++
	}
	return n
}
