package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"tesa/internal/domain/finding"
	"tesa/internal/infrastructure/persistence/sql/model"
	"tesa/internal/infrastructure/persistence/sql/uow"
)

func setupFindingRepository(t *testing.T) (*FindingRepository, *gorm.DB) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "findings.sqlite")
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

	repo := NewFindingRepository(db, uow.NewUnitOfWork(db))
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return repo, db
}

func storedFinding(uid string, at time.Time, score int) finding.SecurityFinding {
	return finding.SecurityFinding{
		FindingUID:    uid,
		Standard:      finding.StandardOCSF,
		SchemaVersion: finding.CurrentSchemaVersion,
		Status:        finding.StatusOpen,
		SeverityID:    3,
		Severity:      finding.SeverityMedium,
		RiskScore:     score,
		Title:         "finding " + uid,
		Description:   "test finding",
		CategoryName:  "Application Security",
		ClassName:     finding.ClassSecurityFinding,
		TypeName:      "Sql Injection",
		Domain:        finding.DomainApplication,
		ActivityName:  finding.ActivityCreate,
		Time:          at,
		Source:        "sast",
		Resource: finding.FindingResource{
			UID:      "svc-1",
			Name:     "checkout",
			Type:     "service",
			Platform: "saas",
		},
		References: finding.FindingReferences{
			CVE: []string{"CVE-2026-0001"},
		},
		RawData: map[string]any{"severity": "3"},
	}
}

func TestAddAndListRoundtrip(t *testing.T) {
	repo, _ := setupFindingRepository(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC)

	if err := repo.Add(ctx, []finding.SecurityFinding{storedFinding("uid-1", at, 30)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	items, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("List() len = %d, want 1", len(items))
	}

	got := items[0]
	if got.FindingUID != "uid-1" {
		t.Fatalf("finding_uid = %q", got.FindingUID)
	}
	if !got.Time.UTC().Equal(at) {
		t.Fatalf("time = %v, want %v", got.Time.UTC(), at)
	}
	if got.Resource.Name != "checkout" || got.Resource.Platform != "saas" {
		t.Fatalf("resource = %+v", got.Resource)
	}
	if len(got.References.CVE) != 1 || got.References.CVE[0] != "CVE-2026-0001" {
		t.Fatalf("cve refs = %v", got.References.CVE)
	}
	if got.RawData["severity"] != "3" {
		t.Fatalf("raw_data = %v", got.RawData)
	}
}

func TestAddUpsertsByFindingUID(t *testing.T) {
	repo, db := setupFindingRepository(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC)

	first := storedFinding("uid-1", at, 30)
	if err := repo.Add(ctx, []finding.SecurityFinding{first}); err != nil {
		t.Fatalf("Add(first) error = %v", err)
	}

	updated := first
	updated.RiskScore = 60
	updated.Status = finding.StatusResolved
	updated.References = finding.FindingReferences{
		CWE: []string{"CWE-89", "CWE-89", "CWE-20"},
	}
	if err := repo.Add(ctx, []finding.SecurityFinding{updated}); err != nil {
		t.Fatalf("Add(updated) error = %v", err)
	}

	var findingCount int64
	if err := db.Model(&model.Finding{}).Count(&findingCount).Error; err != nil {
		t.Fatalf("count findings: %v", err)
	}
	if findingCount != 1 {
		t.Fatalf("finding rows = %d, want 1", findingCount)
	}

	items, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := items[0]
	if got.RiskScore != 60 || got.Status != finding.StatusResolved {
		t.Fatalf("updated row = score %d status %q", got.RiskScore, got.Status)
	}
	if len(got.References.CVE) != 0 {
		t.Fatalf("stale cve refs survived: %v", got.References.CVE)
	}
	if len(got.References.CWE) != 2 || got.References.CWE[0] != "CWE-20" || got.References.CWE[1] != "CWE-89" {
		t.Fatalf("cwe refs = %v, want deduplicated sorted pair", got.References.CWE)
	}
}

func TestAddReusesResourceRows(t *testing.T) {
	repo, db := setupFindingRepository(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC)

	a := storedFinding("uid-1", at, 30)
	b := storedFinding("uid-2", at.Add(time.Minute), 50)
	c := storedFinding("uid-3", at.Add(2*time.Minute), 70)
	c.Resource.Platform = "aws"

	if err := repo.Add(ctx, []finding.SecurityFinding{a, b, c}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	var resourceCount int64
	if err := db.Model(&model.Resource{}).Count(&resourceCount).Error; err != nil {
		t.Fatalf("count resources: %v", err)
	}
	if resourceCount != 2 {
		t.Fatalf("resource rows = %d, want 2", resourceCount)
	}
}

func TestListWindowAndOrder(t *testing.T) {
	repo, _ := setupFindingRepository(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)

	batch := []finding.SecurityFinding{
		storedFinding("uid-1", at, 10),
		storedFinding("uid-2", at.Add(time.Hour), 20),
		storedFinding("uid-3", at.Add(2*time.Hour), 30),
	}
	if err := repo.Add(ctx, batch); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	items, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("List() len = %d, want 2", len(items))
	}
	// Newest two, returned oldest first.
	if items[0].FindingUID != "uid-2" || items[1].FindingUID != "uid-3" {
		t.Fatalf("List() uids = %q,%q", items[0].FindingUID, items[1].FindingUID)
	}

	empty, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("List(0) error = %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("List(0) len = %d, want 0", len(empty))
	}
}

func TestSummaryBucketsStoredScores(t *testing.T) {
	repo, _ := setupFindingRepository(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)

	batch := []finding.SecurityFinding{
		storedFinding("uid-1", at, 20),
		storedFinding("uid-2", at.Add(time.Minute), 50),
		storedFinding("uid-3", at.Add(2*time.Minute), 80),
		storedFinding("uid-4", at.Add(3*time.Minute), 100),
	}
	if err := repo.Add(ctx, batch); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	summary, err := repo.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	want := finding.RiskSummary{Low: 1, Medium: 1, High: 1, Critical: 1}
	if summary != want {
		t.Fatalf("Summary() = %+v, want %+v", summary, want)
	}
}
