package model

// Resource rows are deduplicated by the (uid, name, type, platform)
// identity tuple.
type Resource struct {
	ID       uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	UID      string `gorm:"column:uid;type:text;not null;index;uniqueIndex:uq_finding_resources_identity"`
	Name     string `gorm:"column:name;type:text;not null;uniqueIndex:uq_finding_resources_identity"`
	Type     string `gorm:"column:type;type:text;not null;uniqueIndex:uq_finding_resources_identity"`
	Platform string `gorm:"column:platform;type:text;not null;uniqueIndex:uq_finding_resources_identity"`
}

func (Resource) TableName() string {
	return "finding_resources"
}
