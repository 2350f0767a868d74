package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Dipuraj1New/careerireland-portals/internal/config"
)

// ReceiptStore persists confirmation-page screenshots. The adapters yield raw
// PNG bytes plus a predictable name; this sink turns them into a durable
// artifact and a URL the case management app can show to the user.
type ReceiptStore struct {
	cfg config.ReceiptsConfig
	log *zap.Logger
}

func NewReceiptStore(cfg config.ReceiptsConfig, logger *zap.Logger) *ReceiptStore {
	return &ReceiptStore{cfg: cfg, log: logger.Named("receipt_store")}
}

// Save writes the screenshot under the configured directory and returns the
// public URL for the stored receipt.
func (r *ReceiptStore) Save(_ context.Context, name string, data []byte) (string, error) {
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid receipt name %q", name)
	}
	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create receipts directory: %w", err)
	}
	path := filepath.Join(r.cfg.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write receipt %s: %w", name, err)
	}
	r.log.Debug("Receipt stored.", zap.String("path", path), zap.Int("bytes", len(data)))
	return strings.TrimRight(r.cfg.BaseURL, "/") + "/" + name, nil
}
