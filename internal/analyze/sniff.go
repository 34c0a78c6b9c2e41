package analyze

import (
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/datallboy/datascan/internal/domain"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// SniffInfo is the best-effort format classification for one file.
type SniffInfo struct {
	Kind      domain.FileKind
	Modality  string
	NDim      int
	Dims      []int
	SizeBytes int64
	Meta      domain.FileMeta
}

var imageSuffixes = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff"}

// Sniff classifies a file by a deterministic cascade of suffix and
// magic checks. It never fails: unreadable or unrecognised files come
// back as kind=unknown (or the matched kind with empty dims).
func Sniff(path string) SniffInfo {
	sizeBytes := safeStatSize(path)
	suffix := strings.ToLower(fullSuffix(path))

	// NIfTI
	if strings.HasSuffix(suffix, ".nii") || strings.HasSuffix(suffix, ".nii.gz") {
		return sniffNifti(path, sizeBytes)
	}

	// DICOM: magic first, then extension
	if looksLikeDicom(path) || strings.HasSuffix(suffix, ".dcm") {
		if info, ok := sniffDicom(path, sizeBytes); ok {
			return info
		}
	}

	// 2D images
	for _, sfx := range imageSuffixes {
		if strings.HasSuffix(suffix, sfx) {
			return sniffImage(path, sizeBytes)
		}
	}

	return SniffInfo{Kind: domain.KindUnknown, Modality: "unknown", SizeBytes: sizeBytes}
}

func sniffImage(path string, sizeBytes int64) SniffInfo {
	info := SniffInfo{Kind: domain.KindImage, Modality: "unknown", NDim: 2, SizeBytes: sizeBytes}

	f, err := os.Open(path)
	if err != nil {
		return info
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return info
	}

	info.Dims = []int{cfg.Width, cfg.Height}
	return info
}

// fullSuffix joins all extensions so "a.nii.gz" is seen whole.
func fullSuffix(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[i:]
	}
	return filepath.Ext(base)
}

func safeStatSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
