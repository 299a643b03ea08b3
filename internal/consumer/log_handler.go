package consumer

import (
	"context"

	"github.com/sergeJAVA/contractor-service/pkg/db/models"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
)

// LogHandler records each received snapshot. It is the default handler of
// the reference consumer binary.
func LogHandler(logg *logger.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, c *models.Contractor) error {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"contractor_id": c.ID,
			"name":          c.Name,
			"is_active":     c.IsActive,
		}), "contractor change received")
		return nil
	})
}
