package schema

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ionmobility/uimf/errs"
	"github.com/ionmobility/uimf/params"
)

// legacyGlobalColumns maps the legacy Global_Parameters wide-column names
// to the modern GlobalParamKey enum, matching the historical column set
// the original format wrote. Unlisted legacy columns are skipped.
var legacyGlobalColumns = map[string]params.GlobalParamKey{
	"InstrumentName":    params.InstrumentName,
	"DateStarted":       params.DateStarted,
	"NumFrames":         params.NumFrames,
	"TimeOffset":        params.TimeOffset,
	"BinWidth":          params.BinWidth,
	"Bins":              params.Bins,
	"TOFCorrectionTime": params.TOFCorrectionTime,
	"TOFIntensityType":  params.TOFIntensityType,
	"DatasetType":       params.DatasetType,
}

// ConvertLegacyToModern reads every row of the legacy Global_Parameters and
// Frame_Parameters tables and materializes the modern Global_Params /
// Frame_Param_Keys / Frame_Params tables from them, via the legacy-name
// alias table. It is idempotent: if the modern tables already
// exist and are non-empty it does nothing (conversion "runs once").
func ConvertLegacyToModern(db *sqlx.DB, intensityCol IntensityColumnType) error {
	hasLegacy, err := HasLegacySchema(db)
	if err != nil {
		return err
	}
	if !hasLegacy {
		return errs.ErrNoSchema
	}

	hasModern, err := HasModernSchema(db)
	if err != nil {
		return err
	}
	if hasModern {
		var n int
		if err := db.Get(&n, fmt.Sprintf("SELECT COUNT(*) FROM %s", TableGlobalParams)); err != nil {
			return fmt.Errorf("schema: count %s: %w", TableGlobalParams, err)
		}
		if n > 0 {
			// already converted; conversion is one-way and idempotent
			return nil
		}
	}

	if err := CreateTables(db, intensityCol); err != nil {
		return err
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("schema: begin legacy conversion: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := convertLegacyGlobals(tx); err != nil {
		return err
	}
	if err := convertLegacyFrameParams(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func convertLegacyGlobals(tx *sqlx.Tx) error {
	rows, err := tx.Queryx(fmt.Sprintf("SELECT * FROM %s", LegacyGlobalParameters))
	if err != nil {
		return fmt.Errorf("schema: read %s: %w", LegacyGlobalParameters, err)
	}
	defer rows.Close()

	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return fmt.Errorf("schema: scan %s row: %w", LegacyGlobalParameters, err)
		}

		for col, key := range legacyGlobalColumns {
			raw, ok := row[col]
			if !ok || raw == nil {
				continue
			}

			name, dt, desc, _ := params.GlobalDescriptor(key)
			value := fmt.Sprintf("%v", raw)

			_, err := tx.Exec(fmt.Sprintf(
				`INSERT INTO %s (ParamID, ParamName, ParamValue, ParamDataType, ParamDescription)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT(ParamID) DO UPDATE SET ParamValue=excluded.ParamValue`,
				TableGlobalParams),
				int(key), name, value, dt.String(), desc)
			if err != nil {
				return fmt.Errorf("schema: insert global param %s: %w", name, err)
			}
		}
	}

	return rows.Err()
}

func convertLegacyFrameParams(tx *sqlx.Tx) error {
	rows, err := tx.Queryx(fmt.Sprintf("SELECT * FROM %s", LegacyFrameParameters))
	if err != nil {
		return fmt.Errorf("schema: read %s: %w", LegacyFrameParameters, err)
	}
	defer rows.Close()

	insertedKeys := make(map[params.FrameParamKey]struct{})

	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return fmt.Errorf("schema: scan %s row: %w", LegacyFrameParameters, err)
		}

		frameNumRaw, ok := row["FrameNum"]
		if !ok {
			continue
		}
		frameNum := toInt64(frameNumRaw)

		for col, raw := range row {
			if col == "FrameNum" || raw == nil {
				continue
			}

			key, ok := params.LookupFrameParamKey(col)
			if !ok {
				continue // unrecognized legacy column, skip
			}

			if _, done := insertedKeys[key]; !done {
				name, dt, desc, _ := params.FrameDescriptor(key)
				_, err := tx.Exec(fmt.Sprintf(
					`INSERT OR IGNORE INTO %s (ParamID, ParamName, ParamDataType, ParamDescription)
					 VALUES (?, ?, ?, ?)`, TableFrameParamKeys),
					int(key), name, dt.String(), desc)
				if err != nil {
					return fmt.Errorf("schema: insert frame param key %s: %w", name, err)
				}
				insertedKeys[key] = struct{}{}
			}

			value := fmt.Sprintf("%v", raw)
			_, err := tx.Exec(fmt.Sprintf(
				`INSERT INTO %s (FrameNum, ParamID, ParamValue) VALUES (?, ?, ?)
				 ON CONFLICT(FrameNum, ParamID) DO UPDATE SET ParamValue=excluded.ParamValue`,
				TableFrameParams),
				frameNum, int(key), value)
			if err != nil {
				return fmt.Errorf("schema: insert frame param: %w", err)
			}
		}
	}

	return rows.Err()
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
