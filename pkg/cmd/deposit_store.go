package cmd

import (
	"fmt"
	"strings"

	"github.com/vaultbridge/txflow/pkg/registry"
	"github.com/vaultbridge/txflow/pkg/registry/memory"
	"github.com/vaultbridge/txflow/pkg/registry/redisstore"
)

func NewDepositStore(url string) registry.DepositStore {
	switch parseStoreProvider(url) {
	case "redis":
		store, err := redisstore.NewStore(url)
		if err != nil {
			panic(fmt.Errorf("failed to create redis deposit store: %w", err))
		}

		return store
	default:
		return memory.NewStore()
	}
}

func parseStoreProvider(url string) string {
	parts := strings.Split(url, "://")
	if len(parts) > 1 && (parts[0] == "redis" || parts[0] == "rediss") {
		return "redis"
	}

	return "memory"
}
