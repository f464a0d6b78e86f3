package firmware

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
)

// ZapConsole is the console capability backed by a zap logger. It is the
// console the CLI hands the loader; tests substitute a recording double.
type ZapConsole struct {
	logger *zap.Logger
}

// Compile-time check to ensure ZapConsole implements Console
var _ interfaces.Console = (*ZapConsole)(nil)

// NewZapConsole creates a console writing through the given logger.
// A nil logger silently discards output.
func NewZapConsole(logger *zap.Logger) *ZapConsole {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapConsole{logger: logger}
}

// Print writes one formatted diagnostic line at info level.
func (c *ZapConsole) Print(format string, args ...interface{}) {
	c.logger.Info(fmt.Sprintf(format, args...))
}
