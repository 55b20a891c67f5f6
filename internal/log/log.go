// Package log is CockpitVM's leveled logger. It mirrors the shape of the
// teacher's internal "log" package (imported throughout the teacher tree as
// github.com/probeum/go-probeum/log): package-level Trace/Debug/Info/Warn/
// Error/Crit functions, call-site capture via go-stack/stack, and
// terminal-aware coloring via fatih/color, mattn/go-colorable and
// mattn/go-isatty. The teacher's own log package body was not part of the
// retrieved pack, so this implementation is original, built from the same
// dependencies its call sites require.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a log severity level, ordered from most to least verbose.
type Lvl int

const (
	LvlTrace Lvl = iota
	LvlDebug
	LvlInfo
	LvlWarn
	LvlError
	LvlCrit
)

func (l Lvl) String() string {
	switch l {
	case LvlTrace:
		return "TRACE"
	case LvlDebug:
		return "DEBUG"
	case LvlInfo:
		return "INFO"
	case LvlWarn:
		return "WARN"
	case LvlError:
		return "ERROR"
	case LvlCrit:
		return "CRIT"
	default:
		return "?????"
	}
}

func (l Lvl) color() *color.Color {
	switch l {
	case LvlTrace, LvlDebug:
		return color.New(color.FgHiBlack)
	case LvlInfo:
		return color.New(color.FgCyan)
	case LvlWarn:
		return color.New(color.FgYellow)
	case LvlError:
		return color.New(color.FgRed)
	case LvlCrit:
		return color.New(color.FgHiRed, color.Bold)
	default:
		return color.New()
	}
}

// Ctx is a flat slice of alternating key/value pairs, the same convention
// the teacher's call sites use (log.Error("msg", "key", val, ...)).
type Ctx []any

// Logger is a leveled, contextual logger. The zero value is not usable; use
// New or Root.
type Logger struct {
	mu      *sync.Mutex
	out     io.Writer
	color   bool
	minLvl  Lvl
	baseCtx Ctx
	name    string
}

var root = New(os.Stderr)

// Root returns the package-level default logger, matching the teacher's
// convention of package-level Trace/Debug/.../Crit functions backed by a
// singleton root logger.
func Root() *Logger { return root }

// New builds a Logger writing to w. Color is auto-detected via
// mattn/go-isatty against the underlying file descriptor when w is an
// *os.File, and always routed through mattn/go-colorable so ANSI escapes
// render correctly on Windows consoles too.
func New(w io.Writer) *Logger {
	useColor := false
	cw := w
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		cw = colorable.NewColorable(f)
	}
	return &Logger{
		mu:     &sync.Mutex{},
		out:    cw,
		color:  useColor,
		minLvl: LvlInfo,
	}
}

// SetLevel changes the minimum level that is emitted.
func (lg *Logger) SetLevel(l Lvl) { lg.minLvl = l }

// New returns a child logger with additional static context merged in,
// matching the teacher's log.New(ctx...) idiom used to tag component
// loggers (e.g. log.New("module", "flash")).
func (lg *Logger) New(ctx ...any) *Logger {
	child := *lg
	child.baseCtx = append(append(Ctx{}, lg.baseCtx...), ctx...)
	return &child
}

func (lg *Logger) write(lvl Lvl, msg string, ctx Ctx) {
	if lvl < lg.minLvl {
		return
	}
	// Call-site capture: skip write and the level method (Info, Error, ...).
	cs := stack.Caller(2)

	lg.mu.Lock()
	defer lg.mu.Unlock()

	ts := time.Now().Format("15:04:05.000")
	levelStr := fmt.Sprintf("%-5s", lvl.String())
	if lg.color {
		levelStr = lvl.color().Sprint(levelStr)
	}
	fmt.Fprintf(lg.out, "%s[%s] %s %s", ts, levelStr, msg, fmt.Sprintf("%+v", cs))
	all := append(append(Ctx{}, lg.baseCtx...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(lg.out, " %v=%v", all[i], all[i+1])
	}
	fmt.Fprintln(lg.out)
}

func (lg *Logger) Trace(msg string, ctx ...any) { lg.write(LvlTrace, msg, ctx) }
func (lg *Logger) Debug(msg string, ctx ...any) { lg.write(LvlDebug, msg, ctx) }
func (lg *Logger) Info(msg string, ctx ...any)  { lg.write(LvlInfo, msg, ctx) }
func (lg *Logger) Warn(msg string, ctx ...any)  { lg.write(LvlWarn, msg, ctx) }
func (lg *Logger) Error(msg string, ctx ...any) { lg.write(LvlError, msg, ctx) }
func (lg *Logger) Crit(msg string, ctx ...any)  { lg.write(LvlCrit, msg, ctx) }

// Package-level convenience functions delegate to Root(), matching the
// teacher's call sites (log.Error("...", ...) with no receiver).
func Trace(msg string, ctx ...any) { root.write(LvlTrace, msg, ctx) }
func Debug(msg string, ctx ...any) { root.write(LvlDebug, msg, ctx) }
func Info(msg string, ctx ...any)  { root.write(LvlInfo, msg, ctx) }
func Warn(msg string, ctx ...any)  { root.write(LvlWarn, msg, ctx) }
func Error(msg string, ctx ...any) { root.write(LvlError, msg, ctx) }
func Crit(msg string, ctx ...any)  { root.write(LvlCrit, msg, ctx) }

// Dump writes a full structural rendering of v at Trace level, for the rare
// case a one-line ctx pair isn't enough to explain a malformed frame or
// request (e.g. while chasing a protocol desync in the lab).
func Dump(label string, v any) {
	if root.minLvl > LvlTrace {
		return
	}
	Trace(label, "dump", spew.Sdump(v))
}

// NewContext returns a child of the root logger, e.g.
// log.NewContext("module", "vm").
func NewContext(ctx ...any) *Logger { return root.New(ctx...) }
