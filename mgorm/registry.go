package mgorm

import (
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/gaelgael5/mycoach-sub001/domain"
	"github.com/gaelgael5/mycoach-sub001/privacy"
)

// DialectorOpener is an alias for a function that returns a gorm.Dialector
// for a given DSN.
type DialectorOpener = func(string) gorm.Dialector

var (
	registryMu sync.RWMutex
	providers  = make(map[string]DialectorOpener)
)

// Register adds a new database provider to the registry.
func Register(name string, opener DialectorOpener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providers[name] = opener
}

// Options controls storage construction.
type Options struct {
	// SkipAutoMigrate leaves schema management to external migrations.
	SkipAutoMigrate bool

	// GormConfig overrides the default gorm.Config.
	GormConfig *gorm.Config
}

// NewStorage opens the named database and returns the repository wired with
// the given cipher.
func NewStorage(name, dsn string, cipher *privacy.Cipher, opts *Options) (domain.Storage, error) {
	registryMu.RLock()
	opener, ok := providers[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("mgorm: unknown storage provider %q", name)
	}

	if opts == nil {
		opts = &Options{}
	}
	gormConfig := opts.GormConfig
	if gormConfig == nil {
		gormConfig = &gorm.Config{}
	}

	db, err := gorm.Open(opener(dsn), gormConfig)
	if err != nil {
		return nil, err
	}

	repo := NewRepository(db, cipher)
	if !opts.SkipAutoMigrate {
		if err := repo.AutoMigrate(); err != nil {
			return nil, err
		}
	}

	return repo, nil
}
