package finding

import "time"

// ThreatSignal is one raw, unscored security event as delivered by an
// external detector. Metadata is open-ended; only specific keys are read
// during normalization and the whole map is retained verbatim as RawData.
type ThreatSignal struct {
	Source     string
	SignalType string
	Severity   int
	DetectedAt time.Time
	Metadata   map[string]any
}

// FindingResource is the asset a finding is attributed to. The 4-tuple of
// its fields is the resource identity: two resources with the same tuple
// are the same resource.
type FindingResource struct {
	UID      string
	Name     string
	Type     string
	Platform string
}

// FindingReferences holds the external catalog references of a finding,
// one deduplicated ascending-sorted list per reference kind.
type FindingReferences struct {
	CVE         []string
	CWE         []string
	OWASP       []string
	MITREAttack []string
}

// ByType returns the reference values for one kind.
func (r FindingReferences) ByType(refType ReferenceType) []string {
	switch refType {
	case ReferenceCVE:
		return r.CVE
	case ReferenceCWE:
		return r.CWE
	case ReferenceOWASP:
		return r.OWASP
	case ReferenceMITREAttack:
		return r.MITREAttack
	default:
		return nil
	}
}

// SecurityFinding is one normalized, risk-scored security observation in
// the OCSF taxonomy.
type SecurityFinding struct {
	FindingUID    string
	Standard      Standard
	SchemaVersion string
	Status        Status
	SeverityID    int
	Severity      Severity
	RiskScore     int
	Title         string
	Description   string
	CategoryName  string
	ClassName     Class
	TypeName      string
	Domain        Domain
	ActivityName  Activity
	Time          time.Time
	Source        string
	Resource      FindingResource
	References    FindingReferences
	RawData       map[string]any
}

// RiskSummary counts findings per risk bucket.
type RiskSummary struct {
	Low      int
	Medium   int
	High     int
	Critical int
}
