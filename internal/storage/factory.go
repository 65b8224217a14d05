package storage

import (
	"fmt"

	"github.com/bridgeml/bridge/pkg/config"
)

// StorageFactory creates storage instances based on configuration
type StorageFactory struct {
	config *config.StorageConfig
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(config *config.StorageConfig) *StorageFactory {
	return &StorageFactory{config: config}
}

// CreateStorage creates an object store based on the configured type
func (sf *StorageFactory) CreateStorage() (ObjectStore, error) {
	switch sf.config.Type {
	case "minio":
		return NewMinioStore(sf.config)
	case "local":
		return NewLocalStore(sf.config.LocalPath)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", sf.config.Type)
	}
}
