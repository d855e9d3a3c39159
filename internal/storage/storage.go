package storage

import (
	"sync"

	"github.com/lehigh-university-libraries/resizer/internal/models"
)

// RunState is the observable state of the upload controller: a busy flag and
// the processed image collection. Readers always get copies.
type RunState struct {
	images []models.ProcessedImage
	busy   bool
	mu     sync.RWMutex
}

func New() *RunState {
	return &RunState{
		images: []models.ProcessedImage{},
	}
}

func (s *RunState) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

func (s *RunState) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = busy
}

// Append adds images to the end of the collection
func (s *RunState) Append(images ...models.ProcessedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, images...)
}

// Replace swaps the whole collection
func (s *RunState) Replace(images []models.ProcessedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = make([]models.ProcessedImage, len(images))
	copy(s.images, images)
}

func (s *RunState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = []models.ProcessedImage{}
}

func (s *RunState) Images() []models.ProcessedImage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.ProcessedImage, len(s.images))
	copy(result, s.images)
	return result
}

func (s *RunState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}
