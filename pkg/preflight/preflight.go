// Package preflight checks the source and destination of a backup before any
// archive is written, so that a misconfigured folder fails with a clear
// message instead of a half-written archive.
package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/mythwright/nexus-config-backup/pkg/util"
)

// ErrNotADirectory is returned when a path that must be a folder is a file.
var ErrNotADirectory = errors.New("path exists but is not a directory")

// CheckSourceAccessible validates that the source path exists and is a directory.
func CheckSourceAccessible(srcPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path %s: %w", srcPath, ErrNotADirectory)
	}
	return nil
}

// CheckDestinationAccessible makes sure the destination is either an existing
// directory or can be created below its deepest existing ancestor.
func CheckDestinationAccessible(destPath string) error {
	if destPath == "" {
		return errors.New("destination folder is empty")
	}

	info, err := os.Stat(destPath)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("destination %s: %w", destPath, ErrNotADirectory)
		}
		return nil
	}
	// ENOTDIR means a file sits somewhere on the path; the ancestor check names it.
	if !os.IsNotExist(err) && !errors.Is(err, syscall.ENOTDIR) {
		return fmt.Errorf("cannot access destination %s: %w", destPath, err)
	}

	ancestor := deepestExistingAncestor(destPath)
	ancInfo, err := os.Stat(ancestor)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", ancestor, err)
	}
	if !ancInfo.IsDir() {
		return fmt.Errorf("cannot create destination below %s: %w", ancestor, ErrNotADirectory)
	}
	return nil
}

// EnsureDestination creates the destination folder and any missing parents.
func EnsureDestination(destPath string) error {
	if err := os.MkdirAll(destPath, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create destination directory %s: %w", destPath, err)
	}
	return nil
}

// IsNested reports whether destPath lies inside srcPath. A nested destination
// must be excluded from the walk, or each backup would contain the previous ones.
func IsNested(srcPath, destPath string) bool {
	return util.IsWithin(srcPath, destPath)
}

// FreeSpace returns the bytes available to the current user on the volume holding path.
func FreeSpace(path string) (uint64, error) {
	return platformFreeSpace(path)
}

func deepestExistingAncestor(path string) string {
	ancestor := filepath.Clean(path)
	for {
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			return ancestor
		}
		if _, err := os.Lstat(parent); err == nil {
			return parent
		}
		ancestor = parent
	}
}
