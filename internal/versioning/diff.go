// internal/versioning/diff.go
package versioning

import (
	"crypto/sha256"
	"fmt"

	"codeweave/internal/database"
)

// FileChange describes one path that differs between two project versions
type FileChange struct {
	Path     string `json:"path"`
	FromHash string `json:"fromHash,omitempty"`
	ToHash   string `json:"toHash,omitempty"`
	FromSize int    `json:"fromSize,omitempty"`
	ToSize   int    `json:"toSize,omitempty"`
}

// VersionDiff compares two project versions
type VersionDiff struct {
	FromVersion int          `json:"fromVersion"`
	ToVersion   int          `json:"toVersion"`
	Added       []FileChange `json:"added"`
	Modified    []FileChange `json:"modified"`
	Deleted     []FileChange `json:"deleted"`
}

// Diff compares the file trees of two project versions
func Diff(from, to *database.ProjectVersion) *VersionDiff {
	diff := &VersionDiff{
		FromVersion: from.Version,
		ToVersion:   to.Version,
		Added:       []FileChange{},
		Modified:    []FileChange{},
		Deleted:     []FileChange{},
	}

	for _, p := range sortedPaths(from.FileTree) {
		fromFile := from.FileTree[p]
		toFile, exists := to.FileTree[p]
		if !exists {
			diff.Deleted = append(diff.Deleted, FileChange{
				Path:     p,
				FromHash: CalculateHash(fromFile.Content),
				FromSize: len(fromFile.Content),
			})
			continue
		}
		fromHash, toHash := CalculateHash(fromFile.Content), CalculateHash(toFile.Content)
		if fromHash != toHash {
			diff.Modified = append(diff.Modified, FileChange{
				Path:     p,
				FromHash: fromHash,
				ToHash:   toHash,
				FromSize: len(fromFile.Content),
				ToSize:   len(toFile.Content),
			})
		}
	}

	for _, p := range sortedPaths(to.FileTree) {
		if _, exists := from.FileTree[p]; !exists {
			toFile := to.FileTree[p]
			diff.Added = append(diff.Added, FileChange{
				Path:   p,
				ToHash: CalculateHash(toFile.Content),
				ToSize: len(toFile.Content),
			})
		}
	}

	return diff
}

// Empty reports whether the two versions hold identical trees
func (d *VersionDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// CalculateHash calculates SHA256 hash of content
func CalculateHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", h)
}
