package store

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/util"
)

// currentSchemaVersion is pinned by the build; migrations run from the
// stored version + 1 up to this.
const currentSchemaVersion = 2

// migration is an ordered list of DDL statements applied in one
// transaction
type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{version: 1, statements: schemaV1},
	{version: 2, statements: schemaV2},
}

// migrate applies pending migrations in order
func (s *Store) migrate() error {
	version, err := s.schemaVersion()
	if err != nil {
		return err
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("database version %d is newer than supported %d",
			version, currentSchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		util.InfoLog("store: migrating schema to v%d", m.version)
		err := s.Transaction(func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration v%d failed: %w", m.version, err)
				}
			}
			return s.setSchemaVersion(tx, m.version)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// schemaVersion returns the stored db_version, 0 for a fresh database
func (s *Store) schemaVersion() (int, error) {
	var exists int
	err := s.write.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='settings'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	err = s.write.QueryRow("SELECT db_version FROM settings WHERE id = 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(`
		INSERT INTO settings (id, db_version) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET db_version = excluded.db_version
	`, version)
	return err
}
