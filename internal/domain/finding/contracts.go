package finding

import "strings"

// Standard is the taxonomy a finding is expressed in. OCSF is the only
// supported standard.
type Standard string

const StandardOCSF Standard = "OCSF"

// CurrentSchemaVersion is the schema version stamped on every finding
// produced by this service.
const CurrentSchemaVersion = "1.1.0"

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
	StatusSuppressed Status = "suppressed"
)

var knownStatuses = map[Status]struct{}{
	StatusOpen:       {},
	StatusInProgress: {},
	StatusResolved:   {},
	StatusClosed:     {},
	StatusSuppressed: {},
}

// ParseStatus maps free-form input to a known status. Unrecognized values
// fall back to StatusOpen so an invalid variant never reaches storage.
func ParseStatus(value string) Status {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := knownStatuses[candidate]; ok {
		return candidate
	}
	return StatusOpen
}

type Severity string

const (
	SeverityInformational Severity = "informational"
	SeverityLow           Severity = "low"
	SeverityMedium        Severity = "medium"
	SeverityHigh          Severity = "high"
	SeverityCritical      Severity = "critical"
)

var severityByID = map[int]Severity{
	1: SeverityInformational,
	2: SeverityLow,
	3: SeverityMedium,
	4: SeverityHigh,
	5: SeverityCritical,
}

// SeverityLabel resolves a numeric severity id to its label. Unknown ids
// fall back to informational.
func SeverityLabel(severityID int) Severity {
	if label, ok := severityByID[severityID]; ok {
		return label
	}
	return SeverityInformational
}

type Domain string

const (
	DomainApplication    Domain = "application"
	DomainInfrastructure Domain = "infrastructure"
	DomainIdentity       Domain = "identity"
	DomainCloud          Domain = "cloud"
	DomainContainer      Domain = "container"
	DomainOther          Domain = "other"
)

var knownDomains = map[Domain]struct{}{
	DomainApplication:    {},
	DomainInfrastructure: {},
	DomainIdentity:       {},
	DomainCloud:          {},
	DomainContainer:      {},
	DomainOther:          {},
}

// ParseDomain maps free-form input to a known domain. Unrecognized values
// fall back to DomainOther.
func ParseDomain(value string) Domain {
	candidate := Domain(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := knownDomains[candidate]; ok {
		return candidate
	}
	return DomainOther
}

type Class string

const ClassSecurityFinding Class = "Security Finding"

type Activity string

const ActivityCreate Activity = "Create"

// ReferenceType identifies one of the external vulnerability/technique
// catalogs a finding may point into.
type ReferenceType string

const (
	ReferenceCVE         ReferenceType = "cve"
	ReferenceCWE         ReferenceType = "cwe"
	ReferenceOWASP       ReferenceType = "owasp"
	ReferenceMITREAttack ReferenceType = "mitre_attack"
)

// ReferenceTypes lists all reference kinds in their canonical order.
func ReferenceTypes() []ReferenceType {
	return []ReferenceType{ReferenceCVE, ReferenceCWE, ReferenceOWASP, ReferenceMITREAttack}
}

var knownReferenceTypes = map[ReferenceType]struct{}{
	ReferenceCVE:         {},
	ReferenceCWE:         {},
	ReferenceOWASP:       {},
	ReferenceMITREAttack: {},
}

func IsReferenceType(value string) bool {
	_, ok := knownReferenceTypes[ReferenceType(value)]
	return ok
}
