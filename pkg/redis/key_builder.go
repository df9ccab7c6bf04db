package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	// Set key prefix based on environment
	prefix := "prod"
	if environment == "development" || environment == "staging" {
		prefix = "staging"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// Catalog key builders
func (kb *KeyBuilder) KeyCatalogRugs() string {
	return kb.BuildKey(KeyCatalogRugs)
}

func (kb *KeyBuilder) KeyCatalogRooms(filterHash string) string {
	return kb.BuildKey(fmt.Sprintf(KeyCatalogRooms, filterHash))
}

func (kb *KeyBuilder) KeyCatalogOptions() string {
	return kb.BuildKey(KeyCatalogOptions)
}

// KeyCatalogPattern matches every catalog cache entry for invalidation
func (kb *KeyBuilder) KeyCatalogPattern() string {
	return kb.BuildKey("catalog:*")
}
