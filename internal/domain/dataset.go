package domain

import "time"

type DatasetStatus string

const (
	StatusProcessing DatasetStatus = "processing"
	StatusReady      DatasetStatus = "ready"
	StatusFailed     DatasetStatus = "failed"
)

// Stage is the observable milestone of the pipeline state machine,
// persisted in meta.stage so restarts and API consumers can see progress.
type Stage string

const (
	StageEnqueued     Stage = "enqueued"
	StagePrepare      Stage = "prepare"
	StageAnalyzeFiles Stage = "analyze_files"
	StageFinalize     Stage = "finalize"
	StageFailed       Stage = "failed"
)

// Dataset represents one URL-referenced collection of imaging files,
// ingested as a unit.
type Dataset struct {
	DatasetID          string        `json:"dataset_id"`
	Name               string        `json:"name"`
	SourceURL          string        `json:"source_url"`
	OriginalRequestURL string        `json:"original_request_url,omitempty"`
	TeamID             string        `json:"team_id,omitempty"`
	OwnerUserID        string        `json:"owner_user_id,omitempty"`
	Status             DatasetStatus `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	Summary            Summary       `json:"summary"`
	Meta               DatasetMeta   `json:"meta"`
}

// DatasetMeta carries pipeline bookkeeping for a dataset. Overwritten
// field-by-field at stage boundaries, never mutated incrementally.
type DatasetMeta struct {
	Stage      Stage          `json:"stage,omitempty"`
	Ingest     IngestMeta     `json:"ingest,omitzero"`
	Resolution ResolutionMeta `json:"resolution,omitzero"`
	LastError  string         `json:"last_error,omitempty"`
}

type IngestMeta struct {
	Provider string `json:"provider,omitempty"`
}

type ResolutionMeta struct {
	OriginalURL string `json:"original_url,omitempty"`
	ResolvedURL string `json:"resolved_url,omitempty"`
}

// Summary holds the dataset-level counters derived from the per-file
// stream. It is composed once at finalize; the zero value is the
// summary of an empty dataset.
type Summary struct {
	TotalFiles     int `json:"total_files"`
	ScheduledFiles int `json:"scheduled_files"`

	ModalityCounts map[string]int             `json:"modality_counts"`
	Modalities     map[string]ModalityProfile `json:"modalities"`
	MixedModality  bool                       `json:"mixed_modality"`

	KindCounts         map[string]int `json:"kind_counts"`
	ExtCounts          map[string]int `json:"ext_counts"`
	ScheduledExtCounts map[string]int `json:"scheduled_ext_counts"`

	DuplicateBasenameCount     int            `json:"duplicate_basename_count"`
	DuplicateBasenameExtCounts map[string]int `json:"duplicate_basename_ext_counts"`

	Image2DCount  int `json:"image_2d_count"`
	Volume3DCount int `json:"volume_3d_count"`

	// Outliers stays 0 until OOD scoring is wired into the pipeline.
	Outliers int `json:"outliers"`
}

// ModalityProfile is one entry of the summary's per-modality breakdown.
// Confidence is nil until model-level confidences are aggregated.
type ModalityProfile struct {
	Percent    float64  `json:"percent"`
	Confidence *float64 `json:"confidence"`
}

// PipelineJob is one unit of work for the dataset worker.
type PipelineJob struct {
	DatasetID string
	URL       string
}
