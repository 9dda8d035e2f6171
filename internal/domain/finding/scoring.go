package finding

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// applicationSources and infrastructureSources drive domain inference when
// the signal carries no explicit domain in its metadata.
var applicationSources = map[string]struct{}{
	"sast": {}, "dast": {}, "sca": {}, "cicd": {}, "code": {},
}

var infrastructureSources = map[string]struct{}{
	"iam": {}, "cloud": {}, "cspm": {}, "k8s": {}, "host": {}, "network": {},
}

var categoryByDomain = map[Domain]string{
	DomainApplication:    "Application Security",
	DomainInfrastructure: "Infrastructure Security",
	DomainIdentity:       "Identity Security",
	DomainCloud:          "Cloud Security",
	DomainContainer:      "Container Security",
}

// ComputeRiskScore derives the 1-10 base score: clamped severity doubled
// once per set context flag (internet exposure, privileged access), capped
// at 10.
func ComputeRiskScore(signal ThreatSignal) int {
	severity := clampSeverity(signal.Severity)

	exposureFactor := 1
	if isTruthy(signal.Metadata["internet_exposed"]) {
		exposureFactor = 2
	}
	privilegedFactor := 1
	if isTruthy(signal.Metadata["privileged_access"]) {
		privilegedFactor = 2
	}

	raw := severity * exposureFactor * privilegedFactor
	if raw > 10 {
		return 10
	}
	return raw
}

// BuildFinding normalizes one raw signal into a canonical finding. It is
// pure and never fails: every malformed or missing metadata field has a
// defined default.
func BuildFinding(signal ThreatSignal) SecurityFinding {
	severityID := clampSeverity(signal.Severity)
	domain := resolveDomain(signal)

	resource := FindingResource{
		UID:      metadataString(signal.Metadata, "asset_id", signal.Source),
		Name:     metadataString(signal.Metadata, "asset_name", signal.Source),
		Type:     metadataString(signal.Metadata, "asset_type", "service"),
		Platform: metadataString(signal.Metadata, "platform", "saas"),
	}
	references := FindingReferences{
		CVE:         toStringList(signal.Metadata["cve"]),
		CWE:         toStringList(signal.Metadata["cwe"]),
		OWASP:       toStringList(signal.Metadata["owasp"]),
		MITREAttack: toStringList(signal.Metadata["mitre_attack"]),
	}

	return SecurityFinding{
		FindingUID:    FindingUID(signal.Source, signal.SignalType, signal.DetectedAt),
		Standard:      StandardOCSF,
		SchemaVersion: CurrentSchemaVersion,
		Status:        ParseStatus(metadataString(signal.Metadata, "status", string(StatusOpen))),
		SeverityID:    severityID,
		Severity:      SeverityLabel(severityID),
		RiskScore:     ComputeRiskScore(signal) * 10,
		Title:         metadataString(signal.Metadata, "title", signal.Source+":"+signal.SignalType),
		Description: metadataString(signal.Metadata, "description",
			"Derived finding from normalized threat signal and context risk factors."),
		CategoryName: categoryName(domain),
		ClassName:    ClassSecurityFinding,
		TypeName:     metadataString(signal.Metadata, "type_name", defaultTypeName(signal.SignalType)),
		Domain:       domain,
		ActivityName: ActivityCreate,
		Time:         signal.DetectedAt,
		Source:       signal.Source,
		Resource:     resource,
		References:   references,
		RawData:      signal.Metadata,
	}
}

// FindingUID derives the stable finding identifier: a UUIDv5 over the URL
// namespace of "{source}:{signal_type}:{detected_at RFC3339Nano}". The
// construction is an external contract; identical inputs always produce the
// identical UID, which is what makes re-ingestion idempotent.
func FindingUID(source string, signalType string, detectedAt time.Time) string {
	key := source + ":" + signalType + ":" + detectedAt.Format(time.RFC3339Nano)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// SummarizeScores buckets findings by risk score. Scores are multiples of
// 10 in [10,100], so the buckets partition as low={10,20,30},
// medium={40,50,60}, high={70,80}, critical={90,100}.
func SummarizeScores(findings []SecurityFinding) RiskSummary {
	var summary RiskSummary
	for _, item := range findings {
		switch {
		case item.RiskScore <= 30:
			summary.Low++
		case item.RiskScore <= 60:
			summary.Medium++
		case item.RiskScore <= 80:
			summary.High++
		default:
			summary.Critical++
		}
	}
	return summary
}

func clampSeverity(severity int) int {
	if severity < 1 {
		return 1
	}
	if severity > 5 {
		return 5
	}
	return severity
}

func resolveDomain(signal ThreatSignal) Domain {
	if raw, ok := signal.Metadata["domain"]; ok {
		explicit := strings.ToLower(strings.TrimSpace(stringify(raw)))
		if explicit != "" {
			return ParseDomain(explicit)
		}
	}

	source := strings.ToLower(signal.Source)
	if _, ok := applicationSources[source]; ok {
		return DomainApplication
	}
	if _, ok := infrastructureSources[source]; ok {
		return DomainInfrastructure
	}
	return DomainOther
}

func categoryName(domain Domain) string {
	if name, ok := categoryByDomain[domain]; ok {
		return name
	}
	return "Security Operations"
}

func defaultTypeName(signalType string) string {
	words := strings.Fields(strings.ReplaceAll(signalType, "_", " "))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	return strings.Join(words, " ")
}

func metadataString(metadata map[string]any, key string, fallback string) string {
	value, ok := metadata[key]
	if !ok {
		return fallback
	}
	return stringify(value)
}

func stringify(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", typed)
	}
}

// toStringList coerces an open-ended metadata value into a string list: a
// single string becomes a one-element list, list elements are stringified
// with blanks dropped, anything else becomes empty.
func toStringList(value any) []string {
	switch typed := value.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil
		}
		return []string{typed}
	case []string:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if strings.TrimSpace(item) != "" {
				out = append(out, item)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			candidate := stringify(item)
			if strings.TrimSpace(candidate) != "" {
				out = append(out, candidate)
			}
		}
		return out
	default:
		return nil
	}
}

// isTruthy mirrors the lenient truthiness the ingestion contract allows for
// context flags: explicit booleans, non-zero numbers, and non-empty
// strings/collections all count as set.
func isTruthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case int:
		return typed != 0
	case int64:
		return typed != 0
	case float64:
		return typed != 0
	case []any:
		return len(typed) > 0
	case map[string]any:
		return len(typed) > 0
	default:
		return true
	}
}
