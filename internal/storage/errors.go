package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	msqlite "modernc.org/sqlite"
	msqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrUniqueViolation is returned when an insert collides with a unique index
	ErrUniqueViolation = errors.New("unique constraint violated")
	// ErrForeignKeyViolation is returned when a referenced row is missing or still referenced
	ErrForeignKeyViolation = errors.New("foreign key constraint violated")
	// ErrUnavailable is returned when the database cannot be opened or reached
	ErrUnavailable = errors.New("database unavailable")
	// ErrOutOfRange is returned when a time cannot be stored
	ErrOutOfRange = errors.New("time out of storable range")
)

// classify wraps driver errors with the storage sentinel they represent.
// Errors it does not recognise are returned unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		switch {
		case cgoErr.ExtendedCode == sqlite3.ErrConstraintUnique, cgoErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
		case cgoErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
		case cgoErr.Code == sqlite3.ErrCantOpen, cgoErr.Code == sqlite3.ErrNotADB, cgoErr.Code == sqlite3.ErrIoErr:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}

	var pureErr *msqlite.Error
	if errors.As(err, &pureErr) {
		code := pureErr.Code()
		switch {
		case code == msqlite3.SQLITE_CONSTRAINT_UNIQUE, code == msqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
		case code == msqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
		case code&0xff == msqlite3.SQLITE_CANTOPEN, code&0xff == msqlite3.SQLITE_NOTADB, code&0xff == msqlite3.SQLITE_IOERR:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	// Fall back on the message for wrapped errors that lost their type.
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "unique constraint failed"):
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case strings.Contains(message, "foreign key constraint failed"):
		return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
	case strings.Contains(message, "unable to open database file"):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
