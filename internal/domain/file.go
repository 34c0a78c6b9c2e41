package domain

import "time"

type FileKind string

const (
	KindDicom   FileKind = "dicom"
	KindNifti   FileKind = "nifti"
	KindImage   FileKind = "image"
	KindUnknown FileKind = "unknown"
	KindError   FileKind = "error"
)

// FileRecord is the descriptor produced by the analyzer for a single
// file and persisted in the files collection, unique on
// (dataset_id, relpath).
type FileRecord struct {
	DatasetID string    `json:"dataset_id"`
	RelPath   string    `json:"relpath"`
	AbsPath   string    `json:"abspath"`
	Kind      FileKind  `json:"kind"`
	Modality  string    `json:"modality"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`

	// NDim is 0 when dimensionality could not be determined; Dims is
	// nil in that case as well.
	NDim int   `json:"ndim,omitempty"`
	Dims []int `json:"dims,omitempty"`

	ModalityModel ModalityModel `json:"modality_model"`
	Meta          FileMeta      `json:"meta"`
}

// ModalityModel records how the modality label was derived, for
// auditability of the classifier.
type ModalityModel struct {
	Pred           string             `json:"pred"`
	Confidence     float64            `json:"confidence"`
	Version        string             `json:"version"`
	Method         string             `json:"method"`
	Probs          map[string]float64 `json:"probs"`
	HeuristicVotes map[string]float64 `json:"heuristic_votes"`
	Sources        []string           `json:"sources"`
	Details        ModalityDetails    `json:"details"`
}

// ModalityDetails keeps the intermediate signals the heuristics saw.
type ModalityDetails struct {
	AspectRatio   float64 `json:"aspect_ratio,omitempty"`
	Grayscale     bool    `json:"grayscale,omitempty"`
	EdgeDensity   float64 `json:"edge_density,omitempty"`
	IntensityHist []int   `json:"intensity_hist,omitempty"`
}

// FileMeta is the sniffer's per-kind metadata. The kind tag decides
// which fields are populated: DICOM headers for dicom, Error for
// error descriptors, nothing for the rest.
type FileMeta struct {
	SOPClassUID       string `json:"SOPClassUID,omitempty"`
	SeriesInstanceUID string `json:"SeriesInstanceUID,omitempty"`
	StudyInstanceUID  string `json:"StudyInstanceUID,omitempty"`
	BodyPartExamined  string `json:"BodyPartExamined,omitempty"`
	Error             string `json:"error,omitempty"`
}
