package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Report describes one completed analysis in a transport-friendly format.
// Verdict carries the ensemble or video verdict exactly as the gateway
// produced it.
type Report struct {
	AnalysisID    string          `json:"analysis_id"`
	CreatedAt     string          `json:"created_at,omitempty"`
	MediaKind     string          `json:"media_kind"`
	Filename      string          `json:"filename"`
	SizeBytes     int64           `json:"size_bytes,omitempty"`
	SHA256        string          `json:"sha256,omitempty"`
	Verdict       json.RawMessage `json:"verdict,omitempty"`
	Reliable      bool            `json:"reliable"`
	Cached        bool            `json:"cached"`
	CacheDistance int             `json:"cache_distance,omitempty"`
	ElapsedMS     float64         `json:"elapsed_ms"`
}

// BatchEntry pairs one batch upload with its outcome. Exactly one of Report
// and Error is set.
type BatchEntry struct {
	Filename string  `json:"filename"`
	Report   *Report `json:"report,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// BatchResponse wraps per-file batch outcomes in upload order.
type BatchResponse struct {
	Results []BatchEntry `json:"results"`
}

// DetectorStatus reports the runtime state of one registered detector.
type DetectorStatus struct {
	Name     string `json:"name"`
	Modality string `json:"modality"`
	Loaded   bool   `json:"loaded"`
	Device   string `json:"device,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DetectorsResponse summarizes registry health for API consumers.
type DetectorsResponse struct {
	RegisteredCount int              `json:"registered_count"`
	AllLoaded       bool             `json:"all_loaded"`
	Detectors       []DetectorStatus `json:"detectors"`
}

// HistoryEntry describes one persisted analysis.
type HistoryEntry struct {
	AnalysisID     string          `json:"analysis_id"`
	CreatedAt      string          `json:"created_at,omitempty"`
	MediaKind      string          `json:"media_kind"`
	Filename       string          `json:"filename"`
	SizeBytes      int64           `json:"size_bytes,omitempty"`
	SHA256         string          `json:"sha256,omitempty"`
	IsFake         bool            `json:"is_fake"`
	Confidence     float64         `json:"confidence"`
	Method         string          `json:"method,omitempty"`
	FramesAnalyzed int             `json:"frames_analyzed,omitempty"`
	ModelScores    json.RawMessage `json:"model_scores,omitempty"`
	ElapsedMS      float64         `json:"elapsed_ms,omitempty"`
}

// HistoryResponse wraps a collection of history entries.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// HistorySummary provides aggregate analysis counts keyed by media kind.
type HistorySummary struct {
	Total  int            `json:"total"`
	Fakes  int            `json:"fakes"`
	ByKind map[string]int `json:"by_kind,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// DependencySummary aggregates dependency readiness for status output.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missing_required"`
	MissingOptional int    `json:"missing_optional"`
	Severity        string `json:"severity,omitempty"`
	Detail          string `json:"detail,omitempty"`
}

// StatusLine is a labeled check outcome rendered by the status command.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
// SystemChecks, DirectoryChecks, and DependencySummary are filled in
// client-side when a status snapshot is assembled for rendering.
type DaemonStatus struct {
	Running           bool               `json:"running"`
	PID               int                `json:"pid"`
	ListenAddr        string             `json:"listen_addr,omitempty"`
	HistoryDBPath     string             `json:"history_db_path,omitempty"`
	LockFilePath      string             `json:"lock_file_path,omitempty"`
	IntakeActive      bool               `json:"intake_active,omitempty"`
	Detectors         DetectorsResponse  `json:"detectors"`
	History           *HistorySummary    `json:"history,omitempty"`
	Dependencies      []DependencyStatus `json:"dependencies,omitempty"`
	SystemChecks      []StatusLine       `json:"system_checks,omitempty"`
	DirectoryChecks   []StatusLine       `json:"directory_checks,omitempty"`
	DependencySummary *DependencySummary `json:"dependency_summary,omitempty"`
}

// ReadyResponse reports readiness for the /readyz probe.
type ReadyResponse struct {
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// NotifyTestResponse reports the outcome of a notification test.
type NotifyTestResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the uniform error payload for non-2xx API responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
