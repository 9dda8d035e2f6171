package model

import "time"

// Finding is the persisted form of one normalized security finding.
// RawData holds the original signal metadata as a JSON object encoded to
// text.
type Finding struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	FindingUID    string    `gorm:"column:finding_uid;type:text;not null;uniqueIndex"`
	Standard      string    `gorm:"column:standard;type:text;not null"`
	SchemaVersion string    `gorm:"column:schema_version;type:text;not null"`
	Status        string    `gorm:"column:status;type:text;not null"`
	SeverityID    int       `gorm:"column:severity_id;not null"`
	Severity      string    `gorm:"column:severity;type:text;not null"`
	RiskScore     int       `gorm:"column:risk_score;not null"`
	Title         string    `gorm:"column:title;type:text;not null"`
	Description   string    `gorm:"column:description;type:text;not null"`
	CategoryName  string    `gorm:"column:category_name;type:text;not null"`
	ClassName     string    `gorm:"column:class_name;type:text;not null"`
	TypeName      string    `gorm:"column:type_name;type:text;not null"`
	Domain        string    `gorm:"column:domain;type:text;not null;index"`
	ActivityName  string    `gorm:"column:activity_name;type:text;not null"`
	Time          time.Time `gorm:"column:time;not null;index"`
	Source        string    `gorm:"column:source;type:text;not null;index"`
	ResourceID    uint64    `gorm:"column:resource_id;not null;index"`
	RawData       string    `gorm:"column:raw_data;type:text;not null"`

	Resource       Resource        `gorm:"foreignKey:ResourceID"`
	ReferenceItems []ReferenceItem `gorm:"foreignKey:FindingID"`
}

func (Finding) TableName() string {
	return "security_findings"
}
