// Package schema defines the on-disk relational layout and opens
// the underlying SQLite file through database/sql + sqlx.
package schema

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	// registers the "sqlite3" driver with database/sql
	_ "github.com/mattn/go-sqlite3"
)

// Modern table names.
const (
	TableGlobalParams   = "Global_Params"
	TableFrameParamKeys = "Frame_Param_Keys"
	TableFrameParams    = "Frame_Params"
	TableFrameScans     = "Frame_Scans"
	TableBinIntensities = "Bin_Intensities"
	TableVersionInfo    = "Version_Info"
	TableLogEntries     = "Log_Entries"
	ViewFrameParams     = "V_Frame_Params"

	// Legacy wide-column tables.
	LegacyGlobalParameters = "Global_Parameters"
	LegacyFrameParameters  = "Frame_Parameters"
)

// IntensityColumnType selects the SQL column type for Frame_Scans.BPI/TIC,
// matching the dataset's declared intensity representation. This is the one
// place float/double Frame_Scans is a peripheral configuration rather than
// a separate codec.
type IntensityColumnType string

const (
	IntensityColumnInt64  IntensityColumnType = "BIGINT"
	IntensityColumnFloat  IntensityColumnType = "FLOAT"
	IntensityColumnDouble IntensityColumnType = "DOUBLE"
)

// Open opens (or creates) the SQLite file at path with the settings the
// writer/reader expect: a single connection and the DELETE journal mode.
// Foreign keys are left at SQLite's default (off); the schema has no FK
// constraints to enforce.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=DELETE", path))
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	return db, nil
}

// CreateTables creates the modern schema's seven tables plus the
// V_Frame_Params view, if they do not already exist. intensityCol selects
// the column type for Frame_Scans.BPI/TIC.
func CreateTables(db *sqlx.DB, intensityCol IntensityColumnType) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ParamID INTEGER PRIMARY KEY,
			ParamName TEXT NOT NULL,
			ParamValue TEXT,
			ParamDataType TEXT NOT NULL,
			ParamDescription TEXT
		)`, TableGlobalParams),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ParamID INTEGER PRIMARY KEY,
			ParamName TEXT NOT NULL UNIQUE,
			ParamDataType TEXT NOT NULL,
			ParamDescription TEXT
		)`, TableFrameParamKeys),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			FrameNum INTEGER NOT NULL,
			ParamID INTEGER NOT NULL,
			ParamValue TEXT,
			UNIQUE(FrameNum, ParamID)
		)`, TableFrameParams),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS ix_%s_param_frame ON %s(ParamID, FrameNum)`,
			TableFrameParams, TableFrameParams),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			FrameNum INTEGER NOT NULL,
			ScanNum INTEGER NOT NULL,
			NonZeroCount INTEGER NOT NULL,
			BPI %s,
			BPI_MZ DOUBLE,
			TIC %s,
			Intensities BLOB,
			UNIQUE(FrameNum, ScanNum)
		)`, TableFrameScans, intensityCol, intensityCol),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			MZ_BIN INTEGER PRIMARY KEY,
			CODEC INTEGER NOT NULL DEFAULT 1,
			INTENSITIES BLOB
		)`, TableBinIntensities),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			Id INTEGER PRIMARY KEY AUTOINCREMENT,
			SchemaVersion TEXT NOT NULL,
			AppliedAt TEXT NOT NULL,
			Note TEXT
		)`, TableVersionInfo),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			Id INTEGER PRIMARY KEY AUTOINCREMENT,
			PostedBy TEXT,
			PostedAt TEXT NOT NULL,
			Type TEXT,
			Message TEXT
		)`, TableLogEntries),

		fmt.Sprintf(`CREATE VIEW IF NOT EXISTS %s AS
			SELECT fp.FrameNum, fpk.ParamName, fp.ParamValue, fpk.ParamDataType
			FROM %s fp JOIN %s fpk ON fp.ParamID = fpk.ParamID`,
			ViewFrameParams, TableFrameParams, TableFrameParamKeys),
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema: create tables: %w", err)
		}
	}

	return nil
}

// HasModernSchema reports whether Global_Params exists.
func HasModernSchema(db *sqlx.DB) (bool, error) {
	return tableExists(db, TableGlobalParams)
}

// HasLegacySchema reports whether the legacy wide-column tables exist.
func HasLegacySchema(db *sqlx.DB) (bool, error) {
	return tableExists(db, LegacyGlobalParameters)
}

func tableExists(db *sqlx.DB, name string) (bool, error) {
	var n int
	err := db.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name)
	if err != nil {
		return false, fmt.Errorf("schema: check table %s: %w", name, err)
	}

	return n > 0, nil
}
