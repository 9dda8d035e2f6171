package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"tesa/internal/bootstrap"
	"tesa/internal/bootstrap/logging"
	"tesa/internal/domain/finding"
	"tesa/internal/errs"
	"tesa/internal/usecase/findings"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the findings HTTP API",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *findings.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := app.InitStore(ctx); err != nil {
			return errs.Wrap(err, "initialize store")
		}

		addr, _ := cmd.Flags().GetString("addr")
		addr = strings.TrimSpace(addr)
		if addr == "" {
			addr = app.Config.HTTP.Addr
		}

		server := &http.Server{
			Addr:    addr,
			Handler: newFindingsAPIHandler(svc),
		}

		logging.Info(ctx, "findings api server started", slog.String("addr", addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx, "findings api server failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "serve findings api")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (defaults to http.addr from config)")
}

type threatSignalIn struct {
	Source     string         `json:"source"`
	SignalType string         `json:"signal_type"`
	Severity   int            `json:"severity"`
	DetectedAt time.Time      `json:"detected_at"`
	Metadata   map[string]any `json:"metadata"`
}

type findingResourceOut struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Platform string `json:"platform"`
}

type findingReferencesOut struct {
	CVE         []string `json:"cve"`
	CWE         []string `json:"cwe"`
	OWASP       []string `json:"owasp"`
	MITREAttack []string `json:"mitre_attack"`
}

type securityFindingOut struct {
	FindingUID    string               `json:"finding_uid"`
	Standard      string               `json:"standard"`
	SchemaVersion string               `json:"schema_version"`
	Status        string               `json:"status"`
	SeverityID    int                  `json:"severity_id"`
	Severity      string               `json:"severity"`
	RiskScore     int                  `json:"risk_score"`
	Title         string               `json:"title"`
	Description   string               `json:"description"`
	CategoryName  string               `json:"category_name"`
	ClassName     string               `json:"class_name"`
	TypeName      string               `json:"type_name"`
	Domain        string               `json:"domain"`
	ActivityName  string               `json:"activity_name"`
	Time          time.Time            `json:"time"`
	Source        string               `json:"source"`
	Resource      findingResourceOut   `json:"resource"`
	References    findingReferencesOut `json:"references"`
	RawData       map[string]any       `json:"raw_data"`
}

type ingestSignalsRequest struct {
	Signals []threatSignalIn `json:"signals"`
}

type ingestSignalsResponse struct {
	Ingested int                  `json:"ingested"`
	Findings []securityFindingOut `json:"findings"`
}

type ingestFindingsRequest struct {
	Findings []securityFindingOut `json:"findings"`
}

type ingestFindingsResponse struct {
	Ingested int `json:"ingested"`
}

type listFindingsResponse struct {
	Findings []securityFindingOut `json:"findings"`
}

type findingsSummaryOut struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

type apiErrorResponse struct {
	Error string `json:"error"`
}

type findingsAPIHandler struct {
	svc *findings.Service
}

func newFindingsAPIHandler(svc *findings.Service) http.Handler {
	h := &findingsAPIHandler{svc: svc}

	router := chi.NewRouter()
	router.Get("/healthz", h.handleHealth)
	router.Route("/api", func(r chi.Router) {
		r.Post("/signals", h.handleIngestSignals)
		r.Post("/findings", h.handleIngestFindings)
		r.Get("/findings", h.handleListFindings)
		r.Get("/findings/summary", h.handleSummary)
	})
	return router
}

func (h *findingsAPIHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeAPIJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *findingsAPIHandler) handleIngestSignals(w http.ResponseWriter, r *http.Request) {
	var req ingestSignalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	signals := make([]finding.ThreatSignal, 0, len(req.Signals))
	for i, in := range req.Signals {
		signal, err := toDomainSignal(in)
		if err != nil {
			writeAPIError(w, http.StatusUnprocessableEntity, fmt.Sprintf("signal %d: %v", i, err))
			return
		}
		signals = append(signals, signal)
	}

	items, err := h.svc.IngestSignals(r.Context(), signals)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]securityFindingOut, 0, len(items))
	for _, item := range items {
		out = append(out, toFindingOut(item))
	}
	writeAPIJSON(w, http.StatusOK, ingestSignalsResponse{
		Ingested: len(out),
		Findings: out,
	})
}

func (h *findingsAPIHandler) handleIngestFindings(w http.ResponseWriter, r *http.Request) {
	var req ingestFindingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]finding.SecurityFinding, 0, len(req.Findings))
	for i, in := range req.Findings {
		item, err := fromFindingOut(in)
		if err != nil {
			writeAPIError(w, http.StatusUnprocessableEntity, fmt.Sprintf("finding %d: %v", i, err))
			return
		}
		items = append(items, item)
	}

	if err := h.svc.IngestFindings(r.Context(), items); err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIJSON(w, http.StatusOK, ingestFindingsResponse{Ingested: len(items)})
}

func (h *findingsAPIHandler) handleListFindings(w http.ResponseWriter, r *http.Request) {
	limit := findings.DefaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}

	items, err := h.svc.List(r.Context(), limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]securityFindingOut, 0, len(items))
	for _, item := range items {
		out = append(out, toFindingOut(item))
	}
	writeAPIJSON(w, http.StatusOK, listFindingsResponse{Findings: out})
}

func (h *findingsAPIHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIJSON(w, http.StatusOK, findingsSummaryOut{
		Low:      summary.Low,
		Medium:   summary.Medium,
		High:     summary.High,
		Critical: summary.Critical,
	})
}

func toDomainSignal(in threatSignalIn) (finding.ThreatSignal, error) {
	if strings.TrimSpace(in.Source) == "" {
		return finding.ThreatSignal{}, errors.New("source is required")
	}
	if strings.TrimSpace(in.SignalType) == "" {
		return finding.ThreatSignal{}, errors.New("signal_type is required")
	}
	if in.Severity < 1 || in.Severity > 5 {
		return finding.ThreatSignal{}, errors.New("severity must be between 1 and 5")
	}
	if in.DetectedAt.IsZero() {
		return finding.ThreatSignal{}, errors.New("detected_at is required")
	}

	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return finding.ThreatSignal{
		Source:     in.Source,
		SignalType: in.SignalType,
		Severity:   in.Severity,
		DetectedAt: in.DetectedAt,
		Metadata:   metadata,
	}, nil
}

func toFindingOut(item finding.SecurityFinding) securityFindingOut {
	return securityFindingOut{
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
		Resource: findingResourceOut{
			UID:      item.Resource.UID,
			Name:     item.Resource.Name,
			Type:     item.Resource.Type,
			Platform: item.Resource.Platform,
		},
		References: findingReferencesOut{
			CVE:         emptyIfNil(item.References.CVE),
			CWE:         emptyIfNil(item.References.CWE),
			OWASP:       emptyIfNil(item.References.OWASP),
			MITREAttack: emptyIfNil(item.References.MITREAttack),
		},
		RawData: item.RawData,
	}
}

func fromFindingOut(in securityFindingOut) (finding.SecurityFinding, error) {
	if strings.TrimSpace(in.FindingUID) == "" {
		return finding.SecurityFinding{}, errors.New("finding_uid is required")
	}
	if in.Time.IsZero() {
		return finding.SecurityFinding{}, errors.New("time is required")
	}

	severityID := in.SeverityID
	if severityID < 1 {
		severityID = 1
	}
	if severityID > 5 {
		severityID = 5
	}

	rawData := in.RawData
	if rawData == nil {
		rawData = map[string]any{}
	}

	return finding.SecurityFinding{
		FindingUID:    in.FindingUID,
		Standard:      finding.StandardOCSF,
		SchemaVersion: finding.CurrentSchemaVersion,
		Status:        finding.ParseStatus(in.Status),
		SeverityID:    severityID,
		Severity:      finding.SeverityLabel(severityID),
		RiskScore:     in.RiskScore,
		Title:         in.Title,
		Description:   in.Description,
		CategoryName:  in.CategoryName,
		ClassName:     finding.ClassSecurityFinding,
		TypeName:      in.TypeName,
		Domain:        finding.ParseDomain(in.Domain),
		ActivityName:  finding.ActivityCreate,
		Time:          in.Time,
		Source:        in.Source,
		Resource: finding.FindingResource{
			UID:      in.Resource.UID,
			Name:     in.Resource.Name,
			Type:     in.Resource.Type,
			Platform: in.Resource.Platform,
		},
		References: finding.FindingReferences{
			CVE:         in.References.CVE,
			CWE:         in.References.CWE,
			OWASP:       in.References.OWASP,
			MITREAttack: in.References.MITREAttack,
		},
		RawData: rawData,
	}, nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeAPIJSON(w, status, apiErrorResponse{Error: message})
}

func writeAPIJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
