package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"tesa/internal/bootstrap/logging"
	"tesa/internal/domain/finding"
	"tesa/internal/errs"
	"tesa/internal/infrastructure/persistence/sql/model"
)

// ErrUnsupportedSchema is returned when the findings table exists but
// matches neither the current nor the legacy layout. Startup must abort;
// there is no safe automatic recovery.
var ErrUnsupportedSchema = errors.New("unsupported schema detected for security_findings; cannot migrate automatically")

const legacyTableName = "security_findings_legacy"
const legacyReferenceColumn = "references_json"

var legacyResourceColumns = []string{
	"resource_uid",
	"resource_name",
	"resource_type",
	"resource_platform",
}

// Run inspects the live physical schema and brings it to the current
// layout. Four terminal states: create from scratch, already current,
// legacy layout (migrated in one transaction), or unsupported (fatal).
func Run(ctx context.Context, db *gorm.DB) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "persistence.migrate"))

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		migrator := tx.Migrator()

		if !migrator.HasTable(&model.Finding{}) {
			logging.Info(logCtx, "findings table absent, creating current schema")
			return createCurrentSchema(tx)
		}

		if migrator.HasColumn(&model.Finding{}, "resource_id") {
			// Already on the current layout; make sure the side tables exist.
			return createCurrentSchema(tx)
		}

		if !isLegacyFindingsTable(migrator) {
			return ErrUnsupportedSchema
		}

		logging.Info(logCtx, "legacy findings layout detected, migrating")
		if err := migrateLegacyFindings(logCtx, tx); err != nil {
			return err
		}
		return syncIdentitySequences(tx)
	})
}

func createCurrentSchema(tx *gorm.DB) error {
	if err := tx.Migrator().AutoMigrate(
		&model.Resource{},
		&model.Finding{},
		&model.ReferenceItem{},
	); err != nil {
		return errs.Wrap(err, "create current schema")
	}
	return nil
}

func isLegacyFindingsTable(migrator gorm.Migrator) bool {
	if !migrator.HasColumn(&model.Finding{}, legacyReferenceColumn) {
		return false
	}
	for _, column := range legacyResourceColumns {
		if !migrator.HasColumn(&model.Finding{}, column) {
			return false
		}
	}
	return true
}

type resourceKey struct {
	uid      string
	name     string
	typ      string
	platform string
}

func migrateLegacyFindings(ctx context.Context, tx *gorm.DB) error {
	if err := tx.Exec("ALTER TABLE security_findings RENAME TO " + legacyTableName).Error; err != nil {
		return errs.Wrap(err, "rename legacy findings table")
	}

	// Old index names would collide with the fresh schema.
	if err := dropLegacyIndexes(tx); err != nil {
		return err
	}

	if err := createCurrentSchema(tx); err != nil {
		return err
	}

	var legacyRows []map[string]any
	if err := tx.Table(legacyTableName).Find(&legacyRows).Error; err != nil {
		return errs.Wrap(err, "read legacy findings")
	}

	if len(legacyRows) == 0 {
		return dropLegacyTable(tx)
	}

	// Collapses repeated resources across legacy rows to one inserted row.
	// Lives only for the duration of the migration.
	resourceIDCache := make(map[resourceKey]uint64)

	for _, row := range legacyRows {
		key := resourceKey{
			uid:      asString(row["resource_uid"]),
			name:     asString(row["resource_name"]),
			typ:      asString(row["resource_type"]),
			platform: asString(row["resource_platform"]),
		}

		resourceID, ok := resourceIDCache[key]
		if !ok {
			resource := model.Resource{
				UID:      key.uid,
				Name:     key.name,
				Type:     key.typ,
				Platform: key.platform,
			}
			if err := tx.Create(&resource).Error; err != nil {
				return errs.Wrap(err, "insert migrated resource")
			}
			resourceID = resource.ID
			resourceIDCache[key] = resourceID
		}

		findingID, err := asUint64(row["id"])
		if err != nil {
			return errs.Wrap(err, "read legacy finding id")
		}

		findingTime, err := coerceTime(row["time"])
		if err != nil {
			return err
		}

		rawData, ok := coerceJSONObject(row["raw_data"])
		if !ok {
			logging.Warn(ctx, "legacy raw_data not a JSON object, keeping empty",
				slog.Uint64("finding_id", findingID))
		}
		encodedRawData, err := json.Marshal(rawData)
		if err != nil {
			return errs.Wrap(err, "encode migrated raw data")
		}

		// The numeric identifier is preserved so foreign keys elsewhere
		// remain valid.
		migrated := model.Finding{
			ID:            findingID,
			FindingUID:    asString(row["finding_uid"]),
			Standard:      asString(row["standard"]),
			SchemaVersion: asString(row["schema_version"]),
			Status:        asString(row["status"]),
			SeverityID:    asInt(row["severity_id"]),
			Severity:      asString(row["severity"]),
			RiskScore:     asInt(row["risk_score"]),
			Title:         asString(row["title"]),
			Description:   asString(row["description"]),
			CategoryName:  asString(row["category_name"]),
			ClassName:     asString(row["class_name"]),
			TypeName:      asString(row["type_name"]),
			Domain:        asString(row["domain"]),
			ActivityName:  asString(row["activity_name"]),
			Time:          findingTime,
			Source:        asString(row["source"]),
			ResourceID:    resourceID,
			RawData:       string(encodedRawData),
		}
		if err := tx.Omit("Resource", "ReferenceItems").Create(&migrated).Error; err != nil {
			return errs.Wrap(err, "insert migrated finding")
		}

		referencePayload, ok := coerceJSONObject(row[legacyReferenceColumn])
		if !ok {
			logging.Warn(ctx, "legacy references_json not a JSON object, dropping references",
				slog.Uint64("finding_id", findingID))
		}
		for refType, values := range extractReferenceValues(referencePayload) {
			for _, value := range values {
				item := model.ReferenceItem{
					FindingID:      findingID,
					ReferenceType:  string(refType),
					ReferenceValue: value,
				}
				if err := tx.Create(&item).Error; err != nil {
					return errs.Wrap(err, "insert migrated reference item")
				}
			}
		}
	}

	return dropLegacyTable(tx)
}

func dropLegacyTable(tx *gorm.DB) error {
	if err := tx.Migrator().DropTable(legacyTableName); err != nil {
		return errs.Wrap(err, "drop legacy findings table")
	}
	return nil
}

func dropLegacyIndexes(tx *gorm.DB) error {
	var indexRows []struct {
		Name string
	}
	switch tx.Dialector.Name() {
	case "sqlite":
		if err := tx.Raw(
			"SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name NOT LIKE 'sqlite_autoindex%'",
			legacyTableName,
		).Scan(&indexRows).Error; err != nil {
			return errs.Wrap(err, "list legacy indexes")
		}
	case "postgres":
		// Constraint-backed indexes are renamed along with the table and
		// cannot be dropped directly; only standalone indexes collide.
		if err := tx.Raw(`
			SELECT c.relname AS name
			FROM pg_index x
			JOIN pg_class c ON c.oid = x.indexrelid
			JOIN pg_class t ON t.oid = x.indrelid
			WHERE t.relname = ?
			  AND NOT x.indisprimary
			  AND NOT EXISTS (SELECT 1 FROM pg_constraint con WHERE con.conindid = x.indexrelid)`,
			legacyTableName,
		).Scan(&indexRows).Error; err != nil {
			return errs.Wrap(err, "list legacy indexes")
		}
	default:
		return fmt.Errorf("unsupported dialect for legacy migration: %s", tx.Dialector.Name())
	}

	for _, row := range indexRows {
		if row.Name == "" {
			continue
		}
		if err := tx.Exec(fmt.Sprintf("DROP INDEX IF EXISTS %q", row.Name)).Error; err != nil {
			return errs.Wrapf(err, "drop legacy index %q", row.Name)
		}
	}
	return nil
}

// extractReferenceValues pulls each reference kind from the legacy combined
// blob: a bare string becomes a one-element list, a list is deduplicated
// and sorted, anything else becomes empty.
func extractReferenceValues(payload map[string]any) map[finding.ReferenceType][]string {
	normalized := make(map[finding.ReferenceType][]string, 4)
	for _, refType := range finding.ReferenceTypes() {
		normalized[refType] = finding.SortedUnique(coerceStringList(payload[string(refType)]))
	}
	return normalized
}

func coerceStringList(value any) []string {
	switch typed := value.(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil
		}
		return []string{typed}
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			candidate := asString(item)
			if strings.TrimSpace(candidate) != "" {
				out = append(out, candidate)
			}
		}
		return out
	default:
		return nil
	}
}

// coerceJSONObject tolerates both structured and string-encoded JSON.
// Malformed or non-object input degrades to an empty object; the second
// return reports whether the value was usable.
func coerceJSONObject(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case nil:
		return map[string]any{}, true
	case map[string]any:
		return typed, true
	case string:
		return decodeJSONObject([]byte(typed))
	case []byte:
		return decodeJSONObject(typed)
	default:
		return map[string]any{}, false
	}
}

func decodeJSONObject(raw []byte) (map[string]any, bool) {
	decoded := map[string]any{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return map[string]any{}, false
	}
	return decoded, true
}

// coerceTime accepts a native timestamp or an ISO-8601 string. Anything
// else fails the migration run.
func coerceTime(value any) (time.Time, error) {
	switch typed := value.(type) {
	case time.Time:
		return typed, nil
	case string:
		return parseTimeString(typed)
	case []byte:
		return parseTimeString(string(typed))
	default:
		return time.Time{}, fmt.Errorf("unsupported datetime value during migration: %v", value)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimeString(value string) (time.Time, error) {
	candidate := strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, candidate); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported datetime value during migration: %q", value)
}

// syncIdentitySequences resynchronizes auto-increment counters after rows
// were inserted with explicit ids. Only server-based engines keep identity
// state that can fall behind; sqlite needs nothing.
func syncIdentitySequences(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}

	for _, table := range []string{"finding_resources", "security_findings", "finding_reference_items"} {
		stmt := fmt.Sprintf(
			"SELECT setval(pg_get_serial_sequence('%s','id'), COALESCE((SELECT MAX(id) FROM %s), 1), true)",
			table, table,
		)
		if err := tx.Exec(stmt).Error; err != nil {
			return errs.Wrapf(err, "sync identity sequence for %s", table)
		}
	}
	return nil
}

func asString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprintf("%v", typed)
	}
}

func asInt(value any) int {
	parsed, err := asUint64(value)
	if err != nil {
		return 0
	}
	return int(parsed)
}

func asUint64(value any) (uint64, error) {
	switch typed := value.(type) {
	case int:
		return uint64(typed), nil
	case int32:
		return uint64(typed), nil
	case int64:
		return uint64(typed), nil
	case uint64:
		return typed, nil
	case float64:
		return uint64(typed), nil
	case []byte:
		return strconv.ParseUint(string(typed), 10, 64)
	case string:
		return strconv.ParseUint(typed, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported numeric value: %v", value)
	}
}
