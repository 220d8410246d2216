package logs

import (
	"strings"

	"github.com/fsandov/airbrake-go/pkg/airbrake"
	"github.com/fsandov/airbrake-go/pkg/config"
	"github.com/fsandov/airbrake-go/pkg/env"
	"github.com/fsandov/airbrake-go/pkg/notifiers"
	"go.uber.org/zap"
)

const defaultNotifyLevels = "error"

// AutoInitNotifiers registers an Airbrake notifier for the levels listed in
// AIRBRAKE_LOG_LEVELS (comma separated, default "error") when AIRBRAKE_PROJECT_ID
// and AIRBRAKE_API_KEY are set. The process-wide notifier is created if needed.
func AutoInitNotifiers() {
	logger := GetLogger()
	if _, ok := env.Lookup("AIRBRAKE_PROJECT_ID"); !ok {
		return
	}
	if _, ok := env.Lookup("AIRBRAKE_API_KEY"); !ok {
		return
	}

	n := airbrake.Default()
	if n == nil {
		var err error
		n, err = airbrake.Init(config.Config{}, airbrake.WithLogger(logger.zap))
		if err != nil {
			logger.zap.Error("Failed to init Airbrake notifier", zap.Error(err))
			return
		}
	}

	levels, _ := env.Lookup("AIRBRAKE_LOG_LEVELS")
	if levels == "" {
		levels = defaultNotifyLevels
	}
	notifier := notifiers.NewAirbrakeNotifier(n, logger.appName)
	for _, lvl := range strings.Split(levels, ",") {
		lvl = strings.ToLower(strings.TrimSpace(lvl))
		if lvl == "" {
			continue
		}
		logger.AddNotifier(lvl, notifier)
		logger.zap.Info("Airbrake notifier configured", zap.String("level", lvl),
			zap.String("environment", n.Config().Environment))
	}
}
