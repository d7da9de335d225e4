//go:build !(darwin && cgo)

package infra

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// platformChecker has no native implementation here; the caller falls back.
func platformChecker(logger *zap.Logger) domain.AccessibilityChecker {
	return nil
}
