// Package log holds the process-wide logger.
package log

import (
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
)

// Logger is the root logger, components derive their own with Named.
var Logger logSDK.Logger

func init() {
	var err error
	if Logger, err = logSDK.NewConsoleWithName("disaster-alert", logSDK.LevelInfo); err != nil {
		logSDK.Shared.Panic("new logger", zap.Error(err))
	}
}
