package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/datallboy/datascan/internal/domain"
)

// summaryBuilder accumulates the dataset-level counters while the
// analyze stage streams files past it. All mutation happens on the
// controller goroutine; nothing here is shared.
type summaryBuilder struct {
	scheduled int
	total     int

	modalityCounts     map[string]int
	kindCounts         map[string]int
	extCounts          map[string]int
	scheduledExtCounts map[string]int

	duplicateBasenameCount     int
	duplicateBasenameExtCounts map[string]int
	seenBasenames              map[basenameKey]struct{}

	dicomSeriesCounts map[string]int

	image2DCount  int
	volume3DCount int
}

type basenameKey struct {
	ext      string
	basename string
}

func newSummaryBuilder() *summaryBuilder {
	return &summaryBuilder{
		modalityCounts:             make(map[string]int),
		kindCounts:                 make(map[string]int),
		extCounts:                  make(map[string]int),
		scheduledExtCounts:         make(map[string]int),
		duplicateBasenameExtCounts: make(map[string]int),
		seenBasenames:              make(map[basenameKey]struct{}),
		dicomSeriesCounts:          make(map[string]int),
	}
}

// noteScheduled records a path the walker produced, before its
// analysis completes. The basename key catches filename collisions
// across subdirectories, which often indicate label leakage or copy
// artifacts.
func (b *summaryBuilder) noteScheduled(path string) {
	b.scheduled++

	ext := fileExt(path)
	b.scheduledExtCounts[ext]++

	key := basenameKey{ext: ext, basename: strings.ToLower(filepath.Base(path))}
	if _, dup := b.seenBasenames[key]; dup {
		b.duplicateBasenameCount++
		b.duplicateBasenameExtCounts[ext]++
	} else {
		b.seenBasenames[key] = struct{}{}
	}
}

// noteCompleted folds one finished descriptor into the counters.
func (b *summaryBuilder) noteCompleted(rec *domain.FileRecord) {
	b.total++

	modality := rec.Modality
	if modality == "" {
		modality = "unknown"
	}
	b.modalityCounts[modality]++

	kind := string(rec.Kind)
	if kind == "" {
		kind = "unknown"
	}
	b.kindCounts[kind]++

	b.extCounts[fileExt(rec.AbsPath)]++

	if rec.Kind == domain.KindDicom && rec.Meta.SeriesInstanceUID != "" {
		b.dicomSeriesCounts[rec.Meta.SeriesInstanceUID]++
	}

	switch {
	case rec.NDim >= 3:
		b.volume3DCount++
	case rec.NDim == 2:
		b.image2DCount++
	}
}

// build composes the summary at the finalize boundary. DICOM series
// with two or more instances count as one 3D volume each.
func (b *summaryBuilder) build() domain.Summary {
	volumes := b.volume3DCount
	for _, n := range b.dicomSeriesCounts {
		if n >= 2 {
			volumes++
		}
	}

	return domain.Summary{
		TotalFiles:                 b.total,
		ScheduledFiles:             b.scheduled,
		ModalityCounts:             b.modalityCounts,
		Modalities:                 buildModalitiesProfile(b.modalityCounts, b.total),
		MixedModality:              isMixedModality(b.modalityCounts),
		KindCounts:                 b.kindCounts,
		ExtCounts:                  b.extCounts,
		ScheduledExtCounts:         b.scheduledExtCounts,
		DuplicateBasenameCount:     b.duplicateBasenameCount,
		DuplicateBasenameExtCounts: b.duplicateBasenameExtCounts,
		Image2DCount:               b.image2DCount,
		Volume3DCount:              volumes,
		Outliers:                   0,
	}
}

// buildModalitiesProfile converts raw counts into per-modality
// percentages. Confidence stays nil until model-level confidences are
// aggregated.
func buildModalitiesProfile(counts map[string]int, total int) map[string]domain.ModalityProfile {
	res := make(map[string]domain.ModalityProfile, len(counts))
	denom := total
	if denom == 0 {
		denom = 1
	}
	for modality, count := range counts {
		res[modality] = domain.ModalityProfile{
			Percent: float64(count) / float64(denom) * 100,
		}
	}
	return res
}

// isMixedModality reports whether more than one non-unknown modality
// is present.
func isMixedModality(counts map[string]int) bool {
	var nonZero int
	for modality, count := range counts {
		if count > 0 && modality != "unknown" {
			nonZero++
		}
	}
	return nonZero > 1
}

// fileExt returns the lowercased extension, with the compound
// ".nii.gz" recognised specifically and "none" for extensionless
// files.
func fileExt(path string) string {
	base := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(base, ".nii.gz") {
		return ".nii.gz"
	}
	ext := filepath.Ext(base)
	if ext == "" {
		return "none"
	}
	return ext
}
