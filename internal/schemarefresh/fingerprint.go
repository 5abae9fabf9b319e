package schemarefresh

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"relgraph/internal/introspection"
	"relgraph/internal/logging"
)

// Fingerprint modes, also used as the fingerprint_mode metric attribute.
const (
	ModeStructural  = "structural"
	ModeLightweight = "lightweight"
	ModeUnknown     = "unknown"
)

// fingerprint identifies one state of the database metadata.
type fingerprint struct {
	value string
	mode  string
	parts map[string]string
}

// probe is one metadata query whose rows are digested into a fingerprint part.
type probe struct {
	name  string
	query string
}

// structuralProbes read the metadata that shapes the generated schema.
// Comments only feed descriptions and are left out.
var structuralProbes = []probe{
	{"tables", `
		SELECT TABLE_NAME, TABLE_TYPE
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY 1, 2`},
	{"columns", `
		SELECT TABLE_NAME, COLUMN_NAME, CAST(ORDINAL_POSITION AS CHAR),
			DATA_TYPE, COLUMN_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ?
		ORDER BY 1, 3, 2`},
	{"keys", `
		SELECT TABLE_NAME, CONSTRAINT_NAME, COLUMN_NAME,
			COALESCE(REFERENCED_TABLE_NAME, ''), COALESCE(REFERENCED_COLUMN_NAME, ''),
			CAST(ORDINAL_POSITION AS CHAR)
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
		ORDER BY 1, 2, 6, 3`},
	{"unique_indexes", `
		SELECT TABLE_NAME, INDEX_NAME, CAST(SEQ_IN_INDEX AS CHAR), COALESCE(COLUMN_NAME, '')
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ? AND NON_UNIQUE = 0
		ORDER BY 1, 2, 3`},
}

// timestampProbe is the fallback for servers that refuse the structural probes.
var timestampProbe = probe{"table_timestamps", `
	SELECT TABLE_NAME, COALESCE(CAST(CREATE_TIME AS CHAR), ''), COALESCE(CAST(UPDATE_TIME AS CHAR), '')
	FROM INFORMATION_SCHEMA.TABLES
	WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
	ORDER BY 1`}

type fingerprinter struct {
	db       introspection.Queryer
	database string
	logger   *logging.Logger
}

// compute tries the structural probes first and falls back to table
// timestamps. When both fail the mode is unknown and the error names both causes.
func (f fingerprinter) compute(ctx context.Context) (fingerprint, error) {
	ctx, span := otel.Tracer("relgraph/introspection").Start(ctx, "introspection.compute_fingerprint",
		trace.WithAttributes(attribute.String("db.schema", f.database)))
	defer span.End()

	fp, err := f.run(ctx, ModeStructural, structuralProbes)
	if err != nil {
		f.logger.Warn("structural fingerprint failed, using table timestamps", "error", err.Error())
		var fallbackErr error
		fp, fallbackErr = f.run(ctx, ModeLightweight, []probe{timestampProbe})
		if fallbackErr != nil {
			span.RecordError(err)
			span.RecordError(fallbackErr)
			return fingerprint{mode: ModeUnknown, parts: map[string]string{}},
				fmt.Errorf("schema fingerprint unavailable: structural: %w; lightweight: %v", err, fallbackErr)
		}
	}
	span.SetAttributes(attribute.String("schema.fingerprint_mode", fp.mode))
	return fp, nil
}

func (f fingerprinter) run(ctx context.Context, mode string, probes []probe) (fingerprint, error) {
	parts := make(map[string]string, len(probes))
	for _, p := range probes {
		digest, err := digestRows(ctx, f.db, p.query, f.database)
		if err != nil {
			return fingerprint{}, fmt.Errorf("%s probe: %w", p.name, err)
		}
		parts[p.name] = digest
	}
	return fingerprint{value: combineDigests(parts), mode: mode, parts: parts}, nil
}

// digestRows hashes every cell of the result set. Cells are length prefixed
// so that no two distinct results share a digest through delimiter collisions.
func digestRows(ctx context.Context, db introspection.Queryer, query string, args ...any) (string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	cells := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range cells {
		dest[i] = &cells[i]
	}

	h := sha256.New()
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return "", err
		}
		for _, c := range cells {
			fmt.Fprintf(h, "%d:%s|", len(c.String), c.String)
		}
		h.Write([]byte{'\n'})
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func combineDigests(parts map[string]string) string {
	if len(parts) == 0 {
		return ""
	}
	h := sha256.New()
	for _, name := range slices.Sorted(maps.Keys(parts)) {
		fmt.Fprintf(h, "%s=%s\n", name, parts[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// changedParts lists the part names whose digest differs, including parts
// present on only one side.
func changedParts(before, after map[string]string) []string {
	names := slices.Collect(maps.Keys(before))
	for name := range after {
		if _, ok := before[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return slices.DeleteFunc(names, func(name string) bool {
		b, inBefore := before[name]
		a, inAfter := after[name]
		return inBefore == inAfter && a == b
	})
}
