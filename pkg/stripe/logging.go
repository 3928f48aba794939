package stripe

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// leveledLogger routes stripe-go's request logging through the service
// logger. stripe-go logs retries at info and failed requests at error.
type leveledLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func newLeveledLogger(ctx context.Context, logg *logger.Logger) *leveledLogger {
	return &leveledLogger{ctx: logg.WithField(ctx, "component", "stripe"), logg: logg}
}

func (l *leveledLogger) Debugf(format string, v ...any) {
	l.logg.Debug(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Infof(format string, v ...any) {
	l.logg.Debug(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Warnf(format string, v ...any) {
	l.logg.Warn(l.ctx, fmt.Sprintf(format, v...))
}

// Errorf is logged at warn: the caller turns the same failure into an
// error response and logs it there.
func (l *leveledLogger) Errorf(format string, v ...any) {
	l.logg.Warn(l.ctx, fmt.Sprintf(format, v...))
}
