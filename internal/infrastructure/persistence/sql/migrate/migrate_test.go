package migrate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"tesa/internal/infrastructure/persistence/sql/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "migrate.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

const legacyTableDDL = `
CREATE TABLE security_findings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	finding_uid TEXT NOT NULL,
	standard TEXT,
	schema_version TEXT,
	status TEXT,
	severity_id INTEGER,
	severity TEXT,
	risk_score INTEGER,
	title TEXT,
	description TEXT,
	category_name TEXT,
	class_name TEXT,
	type_name TEXT,
	domain TEXT,
	activity_name TEXT,
	time TEXT,
	source TEXT,
	resource_uid TEXT,
	resource_name TEXT,
	resource_type TEXT,
	resource_platform TEXT,
	references_json TEXT,
	raw_data TEXT
)`

func createLegacyTable(t *testing.T, db *gorm.DB) {
	t.Helper()

	if err := db.Exec(legacyTableDDL).Error; err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	if err := db.Exec(
		"CREATE UNIQUE INDEX ix_security_findings_finding_uid ON security_findings (finding_uid)",
	).Error; err != nil {
		t.Fatalf("create legacy index: %v", err)
	}
}

func insertLegacyRow(t *testing.T, db *gorm.DB, id int, uid string, referencesJSON string, rawData string) {
	t.Helper()

	err := db.Exec(`
		INSERT INTO security_findings (
			id, finding_uid, standard, schema_version, status, severity_id,
			severity, risk_score, title, description, category_name, class_name,
			type_name, domain, activity_name, time, source, resource_uid,
			resource_name, resource_type, resource_platform, references_json, raw_data
		) VALUES (?, ?, 'OCSF', '1.0.0', 'open', 4, 'high', 80, 'Privilege escalation',
			'legacy finding', 'Infrastructure Security', 'Security Finding',
			'Privilege Escalation', 'infrastructure', 'Create',
			'2026-02-11T09:30:00.123456+00:00', 'iam', 'role-7', 'admin-role',
			'iam_role', 'aws', ?, ?)`,
		id, uid, referencesJSON, rawData,
	).Error
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
}

func TestRunCreatesSchemaFromScratch(t *testing.T) {
	db := openTestDB(t)

	if err := Run(context.Background(), db); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	migrator := db.Migrator()
	for _, table := range []any{&model.Resource{}, &model.Finding{}, &model.ReferenceItem{}} {
		if !migrator.HasTable(table) {
			t.Fatalf("table for %T missing after Run()", table)
		}
	}
	if !migrator.HasColumn(&model.Finding{}, "resource_id") {
		t.Fatal("resource_id column missing after Run()")
	}
}

func TestRunIsIdempotentOnCurrentSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run(first) error = %v", err)
	}

	resource := model.Resource{UID: "svc-1", Name: "checkout", Type: "service", Platform: "saas"}
	if err := db.Create(&resource).Error; err != nil {
		t.Fatalf("insert resource: %v", err)
	}
	row := model.Finding{
		FindingUID: "uid-1",
		Time:       time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC),
		ResourceID: resource.ID,
		RawData:    "{}",
	}
	if err := db.Omit("Resource", "ReferenceItems").Create(&row).Error; err != nil {
		t.Fatalf("insert finding: %v", err)
	}

	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run(second) error = %v", err)
	}

	var count int64
	if err := db.Model(&model.Finding{}).Count(&count).Error; err != nil {
		t.Fatalf("count findings: %v", err)
	}
	if count != 1 {
		t.Fatalf("finding rows = %d, want 1", count)
	}
}

func TestRunMigratesLegacyLayout(t *testing.T) {
	db := openTestDB(t)
	createLegacyTable(t, db)
	insertLegacyRow(t, db, 7, "uid-legacy-1",
		`{"cve": ["CVE-2026-0001"], "cwe": ["CWE-269", "CWE-269"]}`,
		`{"privileged_access": true}`,
	)

	if err := Run(context.Background(), db); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if db.Migrator().HasTable(legacyTableName) {
		t.Fatal("legacy table still present after migration")
	}

	var resources []model.Resource
	if err := db.Find(&resources).Error; err != nil {
		t.Fatalf("read resources: %v", err)
	}
	if len(resources) != 1 {
		t.Fatalf("resource rows = %d, want 1", len(resources))
	}
	if resources[0].UID != "role-7" || resources[0].Platform != "aws" {
		t.Fatalf("migrated resource = %+v", resources[0])
	}

	var migrated model.Finding
	if err := db.Where("finding_uid = ?", "uid-legacy-1").Take(&migrated).Error; err != nil {
		t.Fatalf("read migrated finding: %v", err)
	}
	if migrated.ID != 7 {
		t.Fatalf("migrated id = %d, want preserved 7", migrated.ID)
	}
	if migrated.ResourceID != resources[0].ID {
		t.Fatalf("migrated resource_id = %d, want %d", migrated.ResourceID, resources[0].ID)
	}
	if migrated.RiskScore != 80 || migrated.SeverityID != 4 {
		t.Fatalf("migrated scores = %d/%d", migrated.RiskScore, migrated.SeverityID)
	}
	wantTime := time.Date(2026, 2, 11, 9, 30, 0, 123456000, time.UTC)
	if !migrated.Time.UTC().Equal(wantTime) {
		t.Fatalf("migrated time = %v, want %v", migrated.Time.UTC(), wantTime)
	}

	var items []model.ReferenceItem
	if err := db.Where("finding_id = ?", migrated.ID).Order("reference_type asc").Find(&items).Error; err != nil {
		t.Fatalf("read reference items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("reference rows = %d, want 2", len(items))
	}
	if items[0].ReferenceType != "cve" || items[0].ReferenceValue != "CVE-2026-0001" {
		t.Fatalf("reference[0] = %+v", items[0])
	}
	if items[1].ReferenceType != "cwe" || items[1].ReferenceValue != "CWE-269" {
		t.Fatalf("reference[1] = %+v", items[1])
	}
}

func TestRunMigratesLegacyStringReference(t *testing.T) {
	db := openTestDB(t)
	createLegacyTable(t, db)
	insertLegacyRow(t, db, 1, "uid-legacy-1", `{"cwe": "CWE-269"}`, `{}`)

	if err := Run(context.Background(), db); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var items []model.ReferenceItem
	if err := db.Find(&items).Error; err != nil {
		t.Fatalf("read reference items: %v", err)
	}
	if len(items) != 1 || items[0].ReferenceValue != "CWE-269" {
		t.Fatalf("reference items = %+v, want single coerced CWE-269", items)
	}
}

func TestRunDropsEmptyLegacyTable(t *testing.T) {
	db := openTestDB(t)
	createLegacyTable(t, db)

	if err := Run(context.Background(), db); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if db.Migrator().HasTable(legacyTableName) {
		t.Fatal("legacy table still present")
	}
	var count int64
	if err := db.Model(&model.Finding{}).Count(&count).Error; err != nil {
		t.Fatalf("count findings: %v", err)
	}
	if count != 0 {
		t.Fatalf("finding rows = %d, want 0", count)
	}
}

func TestRunRejectsUnknownLayout(t *testing.T) {
	db := openTestDB(t)
	if err := db.Exec("CREATE TABLE security_findings (id INTEGER PRIMARY KEY, blob TEXT)").Error; err != nil {
		t.Fatalf("create foreign table: %v", err)
	}

	err := Run(context.Background(), db)
	if !errors.Is(err, ErrUnsupportedSchema) {
		t.Fatalf("Run() error = %v, want ErrUnsupportedSchema", err)
	}
}

func TestCoerceJSONObject(t *testing.T) {
	cases := []struct {
		name   string
		value  any
		wantOK bool
		length int
	}{
		{name: "nil", value: nil, wantOK: true, length: 0},
		{name: "map", value: map[string]any{"k": "v"}, wantOK: true, length: 1},
		{name: "json string", value: `{"k": "v"}`, wantOK: true, length: 1},
		{name: "malformed string", value: `{`, wantOK: false, length: 0},
		{name: "json array", value: `[1,2]`, wantOK: false, length: 0},
		{name: "number", value: 42, wantOK: false, length: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := coerceJSONObject(tc.value)
			if ok != tc.wantOK {
				t.Fatalf("coerceJSONObject(%#v) ok = %v, want %v", tc.value, ok, tc.wantOK)
			}
			if got == nil {
				t.Fatal("coerceJSONObject() returned nil map")
			}
			if len(got) != tc.length {
				t.Fatalf("coerceJSONObject(%#v) len = %d, want %d", tc.value, len(got), tc.length)
			}
		})
	}
}

func TestCoerceTime(t *testing.T) {
	native := time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC)
	if got, err := coerceTime(native); err != nil || !got.Equal(native) {
		t.Fatalf("coerceTime(time.Time) = %v, %v", got, err)
	}

	parsed, err := coerceTime("2026-02-11T09:30:00.123456+00:00")
	if err != nil {
		t.Fatalf("coerceTime(iso string) error = %v", err)
	}
	if parsed.Nanosecond() != 123456000 {
		t.Fatalf("coerceTime() nanos = %d", parsed.Nanosecond())
	}

	if _, err := coerceTime("yesterday"); err == nil {
		t.Fatal("coerceTime(yesterday) error = nil, want error")
	}
	if _, err := coerceTime(42); err == nil {
		t.Fatal("coerceTime(42) error = nil, want error")
	}
}
