package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"tesa/internal/domain/finding"
	"tesa/internal/errs"
	"tesa/internal/infrastructure/persistence/sql/migrate"
	"tesa/internal/infrastructure/persistence/sql/model"
	"tesa/internal/ports"
)

// summaryListBound caps the window Summary aggregates over.
const summaryListBound = 100000

// FindingRepository is the durable FindingStore variant backed by a
// relational database through gorm.
type FindingRepository struct {
	db  *gorm.DB
	uow ports.UnitOfWork
}

var _ ports.FindingStore = (*FindingRepository)(nil)

func NewFindingRepository(db *gorm.DB, uow ports.UnitOfWork) *FindingRepository {
	return &FindingRepository{db: db, uow: uow}
}

func (r *FindingRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

// Init brings the physical schema to the current layout. Must complete
// before Add/List/Summary serve traffic.
func (r *FindingRepository) Init(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	return migrate.Run(ctx, r.db)
}

// Add persists the batch in one transaction. A finding whose UID is
// already stored is overwritten in place; its reference items are fully
// replaced so the stored set reflects exactly the latest write.
func (r *FindingRepository) Add(ctx context.Context, findings []finding.SecurityFinding) error {
	if len(findings) == 0 {
		return nil
	}

	if ports.TxFromContext(ctx) != nil {
		db, err := r.dbFromContext(ctx)
		if err != nil {
			return err
		}

		for _, item := range findings {
			if err := upsertFinding(db, item); err != nil {
				return err
			}
		}
		return nil
	}

	return r.uow.WithTx(ctx, func(txCtx context.Context) error {
		return r.Add(txCtx, findings)
	})
}

// List returns at most limit findings ascending by time (oldest of the
// returned window first). Resource and reference rows are eagerly loaded.
func (r *FindingRepository) List(ctx context.Context, limit int) ([]finding.SecurityFinding, error) {
	if limit <= 0 {
		return nil, nil
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.Finding
	if err := db.
		Preload("Resource").
		Preload("ReferenceItems", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("reference_value asc")
		}).
		Order("time desc, id desc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query findings")
	}

	items := make([]finding.SecurityFinding, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		item, err := mapFinding(rows[i])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *FindingRepository) Summary(ctx context.Context) (finding.RiskSummary, error) {
	items, err := r.List(ctx, summaryListBound)
	if err != nil {
		return finding.RiskSummary{}, err
	}
	return finding.SummarizeScores(items), nil
}

func upsertFinding(db *gorm.DB, item finding.SecurityFinding) error {
	resourceID, err := getOrCreateResource(db, item.Resource)
	if err != nil {
		return err
	}

	rawData, err := encodeRawData(item.RawData)
	if err != nil {
		return err
	}

	var existing model.Finding
	err = db.Where("finding_uid = ?", item.FindingUID).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := toRow(item, resourceID, rawData)
		if err := db.Omit("Resource", "ReferenceItems").Create(&row).Error; err != nil {
			return errs.Wrap(err, "insert finding")
		}
		return replaceReferenceItems(db, row.ID, item.References)
	case err != nil:
		return errs.Wrap(err, "query finding by uid")
	}

	updates := toRow(item, resourceID, rawData)
	updates.ID = existing.ID
	if err := db.Omit("Resource", "ReferenceItems").Save(&updates).Error; err != nil {
		return errs.Wrap(err, "update finding")
	}
	return replaceReferenceItems(db, existing.ID, item.References)
}

// getOrCreateResource resolves the resource row by the 4-tuple identity
// key, creating it when absent.
func getOrCreateResource(db *gorm.DB, resource finding.FindingResource) (uint64, error) {
	var existing model.Resource
	err := db.Where("uid = ? AND name = ? AND type = ? AND platform = ?",
		resource.UID, resource.Name, resource.Type, resource.Platform).
		Take(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, errs.Wrap(err, "query resource")
	}

	created := model.Resource{
		UID:      resource.UID,
		Name:     resource.Name,
		Type:     resource.Type,
		Platform: resource.Platform,
	}
	if err := db.Create(&created).Error; err != nil {
		return 0, errs.Wrap(err, "insert resource")
	}
	return created.ID, nil
}

// replaceReferenceItems deletes then recreates the reference set, never
// appending, so stale values cannot linger after an update.
func replaceReferenceItems(db *gorm.DB, findingID uint64, references finding.FindingReferences) error {
	if err := db.Where("finding_id = ?", findingID).Delete(&model.ReferenceItem{}).Error; err != nil {
		return errs.Wrap(err, "delete reference items")
	}

	for _, refType := range finding.ReferenceTypes() {
		for _, value := range finding.SortedUnique(references.ByType(refType)) {
			row := model.ReferenceItem{
				FindingID:      findingID,
				ReferenceType:  string(refType),
				ReferenceValue: value,
			}
			if err := db.Create(&row).Error; err != nil {
				return errs.Wrap(err, "insert reference item")
			}
		}
	}
	return nil
}

func toRow(item finding.SecurityFinding, resourceID uint64, rawData string) model.Finding {
	return model.Finding{
		FindingUID:    item.FindingUID,
		Standard:      string(item.Standard),
		SchemaVersion: item.SchemaVersion,
		Status:        string(item.Status),
		SeverityID:    item.SeverityID,
		Severity:      string(item.Severity),
		RiskScore:     item.RiskScore,
		Title:         item.Title,
		Description:   item.Description,
		CategoryName:  item.CategoryName,
		ClassName:     string(item.ClassName),
		TypeName:      item.TypeName,
		Domain:        string(item.Domain),
		ActivityName:  string(item.ActivityName),
		Time:          item.Time,
		Source:        item.Source,
		ResourceID:    resourceID,
		RawData:       rawData,
	}
}

func mapFinding(row model.Finding) (finding.SecurityFinding, error) {
	references := finding.FindingReferences{}
	for _, item := range row.ReferenceItems {
		switch finding.ReferenceType(item.ReferenceType) {
		case finding.ReferenceCVE:
			references.CVE = append(references.CVE, item.ReferenceValue)
		case finding.ReferenceCWE:
			references.CWE = append(references.CWE, item.ReferenceValue)
		case finding.ReferenceOWASP:
			references.OWASP = append(references.OWASP, item.ReferenceValue)
		case finding.ReferenceMITREAttack:
			references.MITREAttack = append(references.MITREAttack, item.ReferenceValue)
		}
	}

	rawData, err := decodeRawData(row.RawData)
	if err != nil {
		return finding.SecurityFinding{}, err
	}

	return finding.SecurityFinding{
		FindingUID:    row.FindingUID,
		Standard:      finding.Standard(row.Standard),
		SchemaVersion: finding.CurrentSchemaVersion,
		Status:        finding.Status(row.Status),
		SeverityID:    row.SeverityID,
		Severity:      finding.Severity(row.Severity),
		RiskScore:     row.RiskScore,
		Title:         row.Title,
		Description:   row.Description,
		CategoryName:  row.CategoryName,
		ClassName:     finding.Class(row.ClassName),
		TypeName:      row.TypeName,
		Domain:        finding.Domain(row.Domain),
		ActivityName:  finding.Activity(row.ActivityName),
		Time:          row.Time,
		Source:        row.Source,
		Resource: finding.FindingResource{
			UID:      row.Resource.UID,
			Name:     row.Resource.Name,
			Type:     row.Resource.Type,
			Platform: row.Resource.Platform,
		},
		References: references,
		RawData:    rawData,
	}, nil
}

func encodeRawData(rawData map[string]any) (string, error) {
	if rawData == nil {
		rawData = map[string]any{}
	}
	encoded, err := json.Marshal(rawData)
	if err != nil {
		return "", errs.Wrap(err, "encode raw data")
	}
	return string(encoded), nil
}

func decodeRawData(rawData string) (map[string]any, error) {
	if rawData == "" {
		return map[string]any{}, nil
	}

	decoded := map[string]any{}
	if err := json.Unmarshal([]byte(rawData), &decoded); err != nil {
		return nil, errs.Wrap(err, "decode raw data")
	}
	return decoded, nil
}
