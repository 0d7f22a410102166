package handoff

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrDestinationExists is returned instead of overwriting a library file.
var ErrDestinationExists = errors.New("destination already exists")

// FileOperation represents the type of file operation to perform
type FileOperation string

const (
	OpMove     FileOperation = "move"
	OpCopy     FileOperation = "copy"
	OpHardlink FileOperation = "hardlink"
)

// FileOperator handles file system operations
type FileOperator struct {
	operation FileOperation
}

// NewFileOperator creates a new file operator
func NewFileOperator(op FileOperation) *FileOperator {
	if op == "" {
		op = OpHardlink // Default to hardlinks so seeding continues
	}
	return &FileOperator{operation: op}
}

// ImportFile places one file at destPath.
func (f *FileOperator) ImportFile(sourcePath, destPath string) error {
	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", destDir, err)
	}

	if _, err := os.Lstat(destPath); err == nil {
		return fmt.Errorf("%w: %s", ErrDestinationExists, destPath)
	}

	switch f.operation {
	case OpMove:
		return f.moveFile(sourcePath, destPath)
	case OpCopy:
		return f.copyFile(sourcePath, destPath)
	case OpHardlink:
		return f.hardlinkFile(sourcePath, destPath)
	default:
		return fmt.Errorf("unknown operation: %s", f.operation)
	}
}

// ImportFolder places every file under sourcePath below destPath, keeping the layout.
func (f *FileOperator) ImportFolder(sourcePath, destPath string) error {
	if err := os.MkdirAll(destPath, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", destPath, err)
	}

	err := filepath.WalkDir(sourcePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(sourcePath, path)
		if err != nil {
			return err
		}
		targetPath := filepath.Join(destPath, relPath)

		if d.IsDir() {
			return os.MkdirAll(targetPath, 0o755)
		}
		return f.ImportFile(path, targetPath)
	})
	if err != nil {
		return err
	}
	if f.operation == OpMove {
		// Files are gone; drop the empty tree the client left behind.
		_ = os.RemoveAll(sourcePath)
	}
	return nil
}

func (f *FileOperator) moveFile(src, dst string) error {
	// Try rename first (fastest if on same filesystem)
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	// Fall back to copy + delete
	if err := f.copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func (f *FileOperator) copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer sourceFile.Close()

	destFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		destFile.Close()
		os.Remove(dst) // Clean up on error
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := destFile.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to finish copy: %w", err)
	}

	// Preserve permissions
	if info, err := os.Stat(src); err == nil {
		_ = os.Chmod(dst, info.Mode())
	}
	return nil
}

func (f *FileOperator) hardlinkFile(src, dst string) error {
	if err := os.Link(src, dst); err != nil {
		// Hardlinks fail across filesystems, fall back to copy
		return f.copyFile(src, dst)
	}
	return nil
}

var spaceRegex = regexp.MustCompile(`\s+`)

// sanitizeFilename removes or replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", " -",
		"*", "",
		"?", "",
		"\"", "'",
		"<", "",
		">", "",
		"|", "-",
	)
	result := replacer.Replace(name)
	result = spaceRegex.ReplaceAllString(result, " ")

	// Trim leading/trailing spaces and dots
	result = strings.Trim(result, " .")

	if len(result) > 200 {
		result = strings.TrimSpace(result[:200])
	}
	return result
}
