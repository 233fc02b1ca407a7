// Package logflags configures the named, level-gated loggers used across
// the planner and deoptimizer, in place of the original runtime's
// compile-time MVM_LOG_DEOPTS toggle. Each subsystem gets its own logrus
// entry so a caller can turn on "deopt" tracing without also enabling
// "plan" tracing.
package logflags

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu   sync.Mutex
	deopt,
	plan bool

	deoptLogger = newLogger("deopt")
	planLogger  = newLogger("plan")
)

func newLogger(fields ...string) *logrus.Entry {
	logger := logrus.New()
	logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	e := logrus.NewEntry(logger)
	for _, f := range fields {
		e = e.WithField("layer", f)
	}
	return e
}

// Setup parses a comma-separated list of logger names (as accepted by
// delve's own --log-dest/--log flags) and enables debug-level logging for
// each one named. Recognized names: "deopt", "plan", "all".
func Setup(spec string) {
	mu.Lock()
	defer mu.Unlock()
	deopt, plan = false, false
	for _, name := range strings.Split(spec, ",") {
		switch strings.TrimSpace(name) {
		case "deopt":
			deopt = true
		case "plan":
			plan = true
		case "all":
			deopt, plan = true, true
		}
	}
	if deopt {
		deoptLogger.Logger.SetLevel(logrus.DebugLevel)
	}
	if plan {
		planLogger.Logger.SetLevel(logrus.DebugLevel)
	}
}

// SetupFromEnv is a convenience wrapper that reads the SPESH_LOG
// environment variable, mirroring delve reading its own log flags from the
// environment in headless contexts.
func SetupFromEnv() {
	if v := os.Getenv("SPESH_LOG"); v != "" {
		Setup(v)
	}
}

// Deopt reports whether deopt-layer debug logging is enabled.
func Deopt() bool {
	mu.Lock()
	defer mu.Unlock()
	return deopt
}

// Plan reports whether plan-layer debug logging is enabled.
func Plan() bool {
	mu.Lock()
	defer mu.Unlock()
	return plan
}

// DeoptLogger returns the logger for the deoptimizer/frame reconstructor.
func DeoptLogger() *logrus.Entry { return deoptLogger }

// PlanLogger returns the logger for the plan builder.
func PlanLogger() *logrus.Entry { return planLogger }
