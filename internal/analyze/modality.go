package analyze

import (
	"image"
	"regexp"
	"strings"

	"github.com/datallboy/datascan/internal/domain"
)

// modalityLabels is the closed label set, in tie-break order.
var modalityLabels = []string{"CT", "MR", "XRAY", "US", "OPTICAL", "OTHER"}

// Classifier produces a probability distribution over the modality
// labels for a decoded image. Implementations must be safe for
// concurrent use.
type Classifier interface {
	Predict(img image.Image) map[string]float64
	Version() string
}

// UniformClassifier is the stand-in until a trained model is wired:
// it abstains by spreading probability evenly, leaving the decision to
// the heuristics.
type UniformClassifier struct{}

func (UniformClassifier) Predict(image.Image) map[string]float64 {
	return map[string]float64{"CT": 0.2, "MR": 0.2, "XRAY": 0.2, "US": 0.2, "OPTICAL": 0.2}
}

func (UniformClassifier) Version() string { return "v1.0.0" }

var (
	reUltrasound = regexp.MustCompile(`\bus\b|us_|ultrasound`)
	reCT         = regexp.MustCompile(`\bct\b|ctscan`)
	reMR         = regexp.MustCompile(`\bmr\b|mri`)
)

// InferModality combines classifier probabilities with additive
// heuristic votes from image statistics, filename/folder tokens and
// OCR keyword hits. The label with the highest vote wins; confidence
// is the winner's share of all non-negative votes.
func InferModality(cls Classifier, img image.Image, filename string, folderNames []string, ocrText string) domain.ModalityModel {
	votes := make(map[string]float64, len(modalityLabels))
	for _, k := range modalityLabels {
		votes[k] = 0
	}

	var details domain.ModalityDetails

	probs := cls.Predict(img)

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	// Aspect ratio: near-square frames lean ultrasound or MR
	if h > 0 {
		aspect := float64(w) / float64(h)
		details.AspectRatio = aspect
		if aspect > 0.7 && aspect < 1.5 {
			votes["US"] += 0.2
			votes["MR"] += 0.2
		}
	}

	stats := sampleImageStats(img)
	details.Grayscale = stats.grayscale
	details.EdgeDensity = stats.edgeDensity
	details.IntensityHist = stats.hist[:5]

	if stats.grayscale {
		votes["CT"] += 0.2
		votes["MR"] += 0.2
		votes["XRAY"] += 0.2
	} else {
		votes["OPTICAL"] += 0.3
	}

	if stats.edgeDensity > 0.2 {
		votes["XRAY"] += 0.15
	}

	// Filename/folder heuristics
	nameJoined := strings.ToLower(filename + " " + strings.Join(folderNames, " "))
	if reUltrasound.MatchString(nameJoined) {
		votes["US"] += 1
	}
	if reCT.MatchString(nameJoined) {
		votes["CT"] += 1
	}
	if reMR.MatchString(nameJoined) {
		votes["MR"] += 1
	}
	if strings.Contains(nameJoined, "xray") || strings.Contains(nameJoined, "cr") || strings.Contains(nameJoined, "dx") {
		votes["XRAY"] += 1
	}

	// OCR keyword hits
	ocr := strings.ToLower(ocrText)
	if ocr != "" {
		if strings.Contains(ocr, "mhz") || strings.Contains(ocr, "depth") || strings.Contains(ocr, "gain") {
			votes["US"] += 0.8
		}
		if strings.Contains(ocr, "kvp") || strings.Contains(ocr, "mas") {
			votes["XRAY"] += 0.8
		}
		if strings.Contains(ocr, "te") || strings.Contains(ocr, "tr") {
			votes["MR"] += 0.8
		}
	}

	// Add classifier probabilities last
	for k, p := range probs {
		votes[k] += p
	}

	pred := modalityLabels[0]
	for _, k := range modalityLabels {
		if votes[k] > votes[pred] {
			pred = k
		}
	}

	var sum float64
	for _, v := range votes {
		if v > 0 {
			sum += v
		}
	}
	var confidence float64
	if sum > 0 {
		confidence = votes[pred] / sum
	}

	return domain.ModalityModel{
		Pred:           pred,
		Confidence:     confidence,
		Version:        cls.Version(),
		Method:         "cnn+heuristics",
		Probs:          probs,
		HeuristicVotes: votes,
		Sources:        []string{"cnn", "heuristics"},
		Details:        details,
	}
}

// fallbackModality is used when no pixels are available, carrying the
// sniffer's label through with zero confidence.
func fallbackModality(label string) domain.ModalityModel {
	if label == "" {
		label = "unknown"
	}
	return domain.ModalityModel{
		Pred:       label,
		Confidence: 0,
		Version:    "n/a",
		Method:     "fallback",
		Sources:    []string{"sniff"},
	}
}

type imageStats struct {
	grayscale   bool
	edgeDensity float64
	hist        []int
}

// sampleImageStats computes grayscale-ness, a 32-bin intensity
// histogram and a cheap gradient edge density on a subsampled grid.
func sampleImageStats(img image.Image) imageStats {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	stats := imageStats{grayscale: true, hist: make([]int, 32)}
	if w == 0 || h == 0 {
		return stats
	}

	// Subsample to at most ~128 points per axis to bound CPU cost on
	// large scans.
	stepX, stepY := w/128, h/128
	if stepX < 1 {
		stepX = 1
	}
	if stepY < 1 {
		stepY = 1
	}

	gray := make([][]float64, 0, h/stepY+1)

	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		row := make([]float64, 0, w/stepX+1)
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			if !closeEnough(r, g) || !closeEnough(g, b) {
				stats.grayscale = false
			}
			lum := (float64(r) + float64(g) + float64(b)) / 3 / 65535
			row = append(row, lum)
			bin := int(lum * 32)
			if bin > 31 {
				bin = 31
			}
			stats.hist[bin]++
		}
		gray = append(gray, row)
	}

	// Gradient magnitude above threshold approximates Canny density
	// well enough for a 0.15 vote.
	const edgeThreshold = 0.25
	var edges, total int
	for y := 1; y < len(gray); y++ {
		for x := 1; x < len(gray[y]); x++ {
			if x >= len(gray[y-1]) {
				continue
			}
			dx := gray[y][x] - gray[y][x-1]
			dy := gray[y][x] - gray[y-1][x]
			if abs(dx)+abs(dy) > edgeThreshold {
				edges++
			}
			total++
		}
	}
	if total > 0 {
		stats.edgeDensity = float64(edges) / float64(total)
	}

	return stats
}

func closeEnough(a, b uint32) bool {
	d := int64(a) - int64(b)
	if d < 0 {
		d = -d
	}
	// 16-bit channels; tolerate rounding from 8-bit sources
	return d <= 257
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
