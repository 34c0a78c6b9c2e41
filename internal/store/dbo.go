package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/datallboy/datascan/internal/domain"
)

// datasetDBO maps to the datasets table. Summary and meta live in JSON
// columns the same way nested documents would in a document store.
type datasetDBO struct {
	DatasetID          string `db:"dataset_id"`
	Name               string `db:"name"`
	SourceURL          string `db:"source_url"`
	OriginalRequestURL string `db:"original_request_url"`
	TeamID             string `db:"team_id"`
	OwnerUserID        string `db:"owner_user_id"`
	Status             string `db:"status"`
	CreatedAt          int64  `db:"created_at"`
	Summary            string `db:"summary"`
	Meta               string `db:"meta"`
}

// Mapper: DBO to Domain Dataset
func (d *datasetDBO) ToDomain() (*domain.Dataset, error) {
	ds := &domain.Dataset{
		DatasetID:          d.DatasetID,
		Name:               d.Name,
		SourceURL:          d.SourceURL,
		OriginalRequestURL: d.OriginalRequestURL,
		TeamID:             d.TeamID,
		OwnerUserID:        d.OwnerUserID,
		Status:             domain.DatasetStatus(d.Status),
		CreatedAt:          time.Unix(d.CreatedAt, 0).UTC(),
	}

	if d.Summary != "" {
		if err := json.Unmarshal([]byte(d.Summary), &ds.Summary); err != nil {
			return nil, err
		}
	}

	if d.Meta != "" {
		if err := json.Unmarshal([]byte(d.Meta), &ds.Meta); err != nil {
			return nil, err
		}
	}

	return ds, nil
}

// Mapper: Domain Dataset to DBO
func (d *datasetDBO) FromDomain(ds *domain.Dataset) error {
	summaryJSON, err := json.Marshal(ds.Summary)
	if err != nil {
		return err
	}

	metaJSON, err := json.Marshal(ds.Meta)
	if err != nil {
		return err
	}

	d.DatasetID = ds.DatasetID
	d.Name = ds.Name
	d.SourceURL = ds.SourceURL
	d.OriginalRequestURL = ds.OriginalRequestURL
	d.TeamID = ds.TeamID
	d.OwnerUserID = ds.OwnerUserID
	d.Status = string(ds.Status)
	d.CreatedAt = ds.CreatedAt.Unix()
	d.Summary = string(summaryJSON)
	d.Meta = string(metaJSON)
	return nil
}

// fileDBO maps to the files table
type fileDBO struct {
	DatasetID     string         `db:"dataset_id"`
	RelPath       string         `db:"relpath"`
	AbsPath       string         `db:"abspath"`
	Kind          string         `db:"kind"`
	Modality      string         `db:"modality"`
	SizeBytes     int64          `db:"size_bytes"`
	NDim          sql.NullInt64  `db:"ndim"`
	Dims          sql.NullString `db:"dims"`
	ModalityModel string         `db:"modality_model"`
	Meta          string         `db:"meta"`
	CreatedAt     int64          `db:"created_at"`
}

// Mapper: DBO to Domain FileRecord
func (f *fileDBO) ToDomain() (*domain.FileRecord, error) {
	rec := &domain.FileRecord{
		DatasetID: f.DatasetID,
		RelPath:   f.RelPath,
		AbsPath:   f.AbsPath,
		Kind:      domain.FileKind(f.Kind),
		Modality:  f.Modality,
		SizeBytes: f.SizeBytes,
		CreatedAt: time.Unix(f.CreatedAt, 0).UTC(),
	}

	if f.NDim.Valid {
		rec.NDim = int(f.NDim.Int64)
	}

	if f.Dims.Valid && f.Dims.String != "" {
		if err := json.Unmarshal([]byte(f.Dims.String), &rec.Dims); err != nil {
			return nil, err
		}
	}

	if f.ModalityModel != "" {
		if err := json.Unmarshal([]byte(f.ModalityModel), &rec.ModalityModel); err != nil {
			return nil, err
		}
	}

	if f.Meta != "" {
		if err := json.Unmarshal([]byte(f.Meta), &rec.Meta); err != nil {
			return nil, err
		}
	}

	return rec, nil
}

// Mapper: Domain FileRecord to DBO
func (f *fileDBO) FromDomain(rec *domain.FileRecord) error {
	modelJSON, err := json.Marshal(rec.ModalityModel)
	if err != nil {
		return err
	}

	metaJSON, err := json.Marshal(rec.Meta)
	if err != nil {
		return err
	}

	f.DatasetID = rec.DatasetID
	f.RelPath = rec.RelPath
	f.AbsPath = rec.AbsPath
	f.Kind = string(rec.Kind)
	f.Modality = rec.Modality
	f.SizeBytes = rec.SizeBytes
	f.CreatedAt = rec.CreatedAt.Unix()
	f.ModalityModel = string(modelJSON)
	f.Meta = string(metaJSON)

	f.NDim = sql.NullInt64{Int64: int64(rec.NDim), Valid: rec.NDim > 0}

	if len(rec.Dims) > 0 {
		dimsJSON, err := json.Marshal(rec.Dims)
		if err != nil {
			return err
		}
		f.Dims = sql.NullString{String: string(dimsJSON), Valid: true}
	} else {
		f.Dims = sql.NullString{}
	}

	return nil
}
