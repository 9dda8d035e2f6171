package model

// ReferenceItem is one external catalog reference of a finding.
// (finding_id, reference_type, reference_value) is unique so re-inserting
// the same reference set stays idempotent.
type ReferenceItem struct {
	ID             uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	FindingID      uint64 `gorm:"column:finding_id;not null;index;uniqueIndex:uq_finding_reference_item"`
	ReferenceType  string `gorm:"column:reference_type;type:text;not null;index;uniqueIndex:uq_finding_reference_item"`
	ReferenceValue string `gorm:"column:reference_value;type:text;not null;index;uniqueIndex:uq_finding_reference_item"`
}

func (ReferenceItem) TableName() string {
	return "finding_reference_items"
}
