package data

import (
	"sync"

	"gorm.io/gorm"

	"github.com/communityfund/funding/src/fundingd/types"
)

var (
	settingsCache map[string]string
	settingsMu    sync.RWMutex
)

// LoadSettings loads all operator-editable settings from the database into
// the in-memory cache.
func LoadSettings(db *gorm.DB) error {
	var settings []types.Setting
	if err := db.Find(&settings).Error; err != nil {
		return err
	}

	settingsMu.Lock()
	defer settingsMu.Unlock()

	settingsCache = make(map[string]string)
	for _, s := range settings {
		settingsCache[s.Name] = s.Value
	}

	return nil
}

// GetSetting retrieves a setting value by name, or def when unset.
func GetSetting(name, def string) string {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	if v, ok := settingsCache[name]; ok && v != "" {
		return v
	}
	return def
}

// RefreshSettings reloads settings from database.
func RefreshSettings(db *gorm.DB) error {
	return LoadSettings(db)
}
