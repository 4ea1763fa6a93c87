package logsvc

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/user"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelFatal {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelNames[l]
}

func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	if strings.EqualFold(s, "warning") {
		return LevelWarn, nil
	}
	return LevelInfo, errors.Errorf("unknown log level %q", s)
}

// Logger writes to a std logger and reports warnings and errors to rollbar.
//
// The args of a log call may hold errors, a map[string]interface{} of extra data
// and the user.User the entry is about; the user is only sent to rollbar as the person.
type Logger struct {
	std    *log.Logger
	min    Level
	report bool
	scope  string
}

var _ core.Logger = (*Logger)(nil)

// New configures rollbar from conf; reporting stays off in debug and test mode.
func New(std *log.Logger, conf *core.Config) *Logger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(rollbarerrors.StackTracer)

	min, err := ParseLevel(conf.LogLevel)
	if err != nil && conf.LogLevel != "" {
		std.Printf("WARN %v, using %s", err, min)
	}
	report := conf.RollbarToken != "" && !conf.Debug && !conf.TestMode
	rollbar.SetEnabled(report)

	return &Logger{std: std, min: min, report: report}
}

// With returns a logger prefixing its messages with scope.
func (l *Logger) With(scope string) *Logger {
	cp := *l
	if cp.scope != "" {
		scope = cp.scope + "." + scope
	}
	cp.scope = scope
	return &cp
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log(LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log(LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args) }

func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log(LevelFatal, msg, args)
	rollbar.Wait()
	os.Exit(1)
}

func (l *Logger) log(level Level, msg string, args []interface{}) {
	if level < l.min {
		return
	}
	entry := splitArgs(args)
	_ = l.std.Output(3, l.format(level, msg, entry))
	if l.report && level >= LevelWarn {
		l.sendReport(level, msg, entry)
	}
}

func (l *Logger) scoped(msg string) string {
	if l.scope == "" {
		return msg
	}
	return "[" + l.scope + "] " + msg
}

func (l *Logger) format(level Level, msg string, e entry) string {
	var b strings.Builder
	b.WriteString(level.String())
	b.WriteByte(' ')
	b.WriteString(l.scoped(msg))
	for _, k := range e.keys() {
		fmt.Fprintf(&b, " %s=%v", k, e.extras[k])
	}
	for _, err := range e.errs {
		if msg != err.Error() && !strings.HasSuffix(msg, err.Error()) {
			fmt.Fprintf(&b, "\n\t%v", err)
		}
	}
	for _, arg := range e.rest {
		fmt.Fprintf(&b, "\n\t%+v", arg)
	}
	return b.String()
}

func (l *Logger) sendReport(level Level, msg string, e entry) {
	if e.usr != nil {
		rollbar.SetPerson(e.usr.ID, e.usr.Username, e.usr.Email)
	} else {
		rollbar.ClearPerson()
	}

	extras := make(map[string]interface{}, len(e.extras)+1)
	for k, v := range e.extras {
		extras[k] = v
	}
	if l.scope != "" {
		extras["scope"] = l.scope
	}

	lvl := rollbar.WARN
	switch level {
	case LevelError:
		lvl = rollbar.ERR
	case LevelFatal:
		lvl = rollbar.CRIT
	}
	if len(e.errs) > 0 {
		rollbar.ErrorWithExtras(lvl, errors.Wrap(e.errs[0], l.scoped(msg)), extras)
		return
	}
	rollbar.MessageWithExtras(lvl, l.scoped(msg), extras)
}

type entry struct {
	errs   []error
	extras map[string]interface{}
	usr    *user.User
	rest   []interface{}
}

func (e entry) keys() []string {
	keys := make([]string, 0, len(e.extras))
	for k := range e.extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func splitArgs(args []interface{}) entry {
	e := entry{extras: map[string]interface{}{}}
	for _, arg := range args {
		switch a := arg.(type) {
		case nil:
		case error:
			e.errs = append(e.errs, a)
		case map[string]interface{}:
			for k, v := range a {
				e.extras[k] = v
			}
		case user.User:
			if e.usr == nil {
				e.usr = &a
			}
		case *user.User:
			if e.usr == nil && a != nil {
				e.usr = a
			}
		default:
			e.rest = append(e.rest, a)
		}
	}
	return e
}
