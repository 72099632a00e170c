package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// StateDir is the per-project directory holding the database and config
	StateDir = ".selfheal"

	// DatabaseFile is the database file name inside StateDir
	DatabaseFile = "selfheal.db"

	// EnvDatabasePath overrides database discovery
	EnvDatabasePath = "SELFHEAL_DB"
)

// DiscoverDatabase returns the database path: SELFHEAL_DB if set, else
// .selfheal/selfheal.db in the current directory. Parent directories are not
// searched, so a nested project never picks up its parent's state.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv(EnvDatabasePath); dbPath != "" {
		// Allow special values like ":memory:" or explicit paths
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return discoverDatabaseInDir(dir)
}

func discoverDatabaseInDir(dir string) (string, error) {
	dbPath := filepath.Join(dir, StateDir, DatabaseFile)
	if info, err := os.Stat(dbPath); err == nil && !info.IsDir() {
		absPath, err := filepath.Abs(dbPath)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		return absPath, nil
	}

	return "", fmt.Errorf(
		"no %s/%s found in %s\n"+
			"  Run 'selfheal init' to set up self-healing in this directory\n"+
			"  Or use --db flag to specify database path explicitly",
		StateDir, DatabaseFile, dir)
}

// DefaultDatabasePath is where init creates the database.
func DefaultDatabasePath() string {
	return filepath.Join(StateDir, DatabaseFile)
}

// GetProjectRoot returns the directory containing the .selfheal directory
// that holds dbPath.
func GetProjectRoot(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	dbDir := filepath.Dir(absPath)
	if filepath.Base(dbDir) != StateDir {
		return "", fmt.Errorf("database must be in a %s/ directory, got: %s", StateDir, dbPath)
	}
	return filepath.Dir(dbDir), nil
}

// InitProject creates the .selfheal directory in projectDir and returns the
// database path. The database itself is created on first open.
func InitProject(projectDir string) (string, error) {
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	stateDir := filepath.Join(projectDir, StateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", StateDir, err)
	}

	// Keep state out of the repo the healer commits to
	ignore := filepath.Join(stateDir, ".gitignore")
	if _, err := os.Stat(ignore); os.IsNotExist(err) {
		if err := os.WriteFile(ignore, []byte("*\n"), 0644); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", ignore, err)
		}
	}

	return filepath.Join(stateDir, DatabaseFile), nil
}
