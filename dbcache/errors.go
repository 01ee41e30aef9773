package dbcache

import "fmt"

// NameError rejects database names that could escape the database root.
type NameError struct {
	Name string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("invalid database name %q: use letters, digits, '_', '-' or '.'", e.Name)
}

// DatabaseNotConfiguredError means the database is absent and automatic
// downloads are disabled.
type DatabaseNotConfiguredError struct {
	Name string
	Root string
}

func (e *DatabaseNotConfiguredError) Error() string {
	return fmt.Sprintf("database %s not found in %s and automatic updates are disabled", e.Name, e.Root)
}

// DatabaseUnavailableError means a download was attempted and did not
// produce a usable database.
type DatabaseUnavailableError struct {
	Name string
	Err  error
}

func (e *DatabaseUnavailableError) Error() string {
	return fmt.Sprintf("database %s unavailable: %v", e.Name, e.Err)
}

func (e *DatabaseUnavailableError) Unwrap() error { return e.Err }
