package analyze

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/datallboy/datascan/internal/domain"
	"golang.org/x/sync/semaphore"
)

// Analyzer turns one file path into a persisted descriptor. The
// semaphore bounds the CPU-heavy sniff/decode/classify work to the
// configured file concurrency; callers may have more analyses in
// flight than permits.
type Analyzer struct {
	cls     Classifier
	predLog *PredictionLogger
	sem     *semaphore.Weighted
}

func NewAnalyzer(cls Classifier, predLog *PredictionLogger, fileConcurrency int) *Analyzer {
	if fileConcurrency < 1 {
		fileConcurrency = 1
	}
	return &Analyzer{
		cls:     cls,
		predLog: predLog,
		sem:     semaphore.NewWeighted(int64(fileConcurrency)),
	}
}

// Analyze produces the descriptor for path relative to scanRoot. A
// per-file failure never fails the dataset: it yields an error-kind
// descriptor instead. The returned error is non-nil only on context
// cancellation.
func (a *Analyzer) Analyze(ctx context.Context, datasetID, scanRoot, path string, now time.Time) (*domain.FileRecord, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer a.sem.Release(1)

	relpath, err := filepath.Rel(scanRoot, path)
	if err != nil {
		relpath = filepath.Base(path)
	}

	rec := &domain.FileRecord{
		DatasetID: datasetID,
		RelPath:   filepath.ToSlash(relpath),
		AbsPath:   path,
		CreatedAt: now,
	}

	a.analyzeInto(rec, path)
	return rec, nil
}

// analyzeInto fills rec from the sniff cascade and, for decodable 2D
// images, the modality inference. Panics from malformed inputs are
// converted into error-kind descriptors.
func (a *Analyzer) analyzeInto(rec *domain.FileRecord, path string) {
	defer func() {
		if r := recover(); r != nil {
			rec.Kind = domain.KindError
			rec.Modality = "unknown"
			rec.ModalityModel = fallbackModality("unknown")
			rec.Meta = domain.FileMeta{Error: fmt.Sprintf("analyzer panic: %v", r)}
		}
	}()

	info := Sniff(path)
	rec.Kind = info.Kind
	rec.SizeBytes = info.SizeBytes
	rec.NDim = info.NDim
	rec.Dims = info.Dims
	rec.Meta = info.Meta

	var model domain.ModalityModel
	if info.Kind == domain.KindImage {
		if img := loadImage(path); img != nil {
			// OCR text extraction is not wired yet; keyword votes
			// only fire once it is.
			model = InferModality(a.cls, img, filepath.Base(path), parentFolders(path, 3), "")
			a.predLog.Log(path, model)
		} else {
			model = fallbackModality(info.Modality)
		}
	} else {
		model = fallbackModality(info.Modality)
	}

	rec.Modality = model.Pred
	rec.ModalityModel = model
}

func loadImage(path string) image.Image {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil
	}
	return img
}

// parentFolders returns up to n trailing directory names of the
// file's parent, the classifier's folder context.
func parentFolders(path string, n int) []string {
	dir := filepath.Dir(path)
	parts := strings.Split(filepath.ToSlash(dir), "/")

	var names []string
	for _, p := range parts {
		if p != "" {
			names = append(names, p)
		}
	}
	if len(names) > n {
		names = names[len(names)-n:]
	}
	return names
}
