package analyze

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/datallboy/datascan/internal/domain"
)

// PredictionLogger appends one JSON line per modality prediction, for
// offline evaluation of the classifier. Best-effort: a nil logger or
// a write failure never affects analysis.
type PredictionLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

type predictionEntry struct {
	Time       time.Time          `json:"time"`
	Path       string             `json:"path"`
	Pred       string             `json:"pred"`
	Confidence float64            `json:"confidence"`
	Method     string             `json:"method"`
	Version    string             `json:"version"`
	Probs      map[string]float64 `json:"probs,omitempty"`
}

// NewPredictionLogger opens path for appending. An empty path returns
// a disabled logger.
func NewPredictionLogger(path string) (*PredictionLogger, error) {
	if path == "" {
		return &PredictionLogger{}, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &PredictionLogger{file: f, enc: json.NewEncoder(f)}, nil
}

func (p *PredictionLogger) Log(path string, model domain.ModalityModel) {
	if p == nil || p.file == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_ = p.enc.Encode(predictionEntry{
		Time:       time.Now().UTC(),
		Path:       path,
		Pred:       model.Pred,
		Confidence: model.Confidence,
		Method:     model.Method,
		Version:    model.Version,
		Probs:      model.Probs,
	})
}

func (p *PredictionLogger) Close() error {
	if p == nil || p.file == nil {
		return nil
	}
	return p.file.Close()
}
