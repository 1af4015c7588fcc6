package coach

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/lowaak/cadence-coach/cadence-coach-app/internal/sensor"
)

// preferences remembers the last device bound for each sensor family so the
// next session reconnects to the same hardware without a pick step.
type preferences struct {
	path   string
	logger *log.Logger

	mu        sync.Mutex
	preferred map[sensor.FamilyID]string // family -> device address
}

func newPreferences(path string, logger *log.Logger) *preferences {
	p := &preferences{
		path:      path,
		logger:    logger,
		preferred: make(map[sensor.FamilyID]string),
	}
	p.load()
	return p
}

func (p *preferences) load() {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.Printf("preferences: error reading %s: %v", p.path, err)
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := json.Unmarshal(data, &p.preferred); err != nil {
		p.logger.Printf("preferences: error parsing %s: %v", p.path, err)
		p.preferred = make(map[sensor.FamilyID]string)
	}
}

func (p *preferences) getPreferredDevice(family sensor.FamilyID) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.preferred[family]
}

func (p *preferences) setPreferredDevice(family sensor.FamilyID, address string) {
	p.mu.Lock()
	if p.preferred[family] == address {
		p.mu.Unlock()
		return
	}
	p.preferred[family] = address
	data, err := json.MarshalIndent(p.preferred, "", "  ")
	p.mu.Unlock()

	if err != nil {
		p.logger.Printf("preferences: error encoding preferences: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		p.logger.Printf("preferences: error creating directory for %s: %v", p.path, err)
		return
	}
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		p.logger.Printf("preferences: error writing %s: %v", p.path, err)
	}
}
