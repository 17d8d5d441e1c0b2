package internal

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

var (
	ErrParseStrToLevel = errors.New("string can't be parsed to level, use: `error`, `warn`, `info`, `debug`")
)

type Level int

const (
	ERR Level = iota
	WRN
	INF
	DBG
)

func (l Level) String() string { return [4]string{"Error", "Warn", "Info", "Debug"}[l] }

func NewStdLog(opts ...Option) *StdLog {
	l := &StdLog{
		out: os.Stderr,
		lvl: INF,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.fatal = log.New(l.out, "\033[31mFATAL\033[0m: ", log.Ldate|log.Ltime)
	l.err = log.New(l.out, "\033[31mERR\033[0m: ", log.Ldate|log.Ltime)
	l.wrn = log.New(l.out, "\033[33mWRN\033[0m: ", log.Ldate|log.Ltime)
	l.inf = log.New(l.out, "\033[32mINF\033[0m: ", log.Ldate|log.Ltime)
	l.dbg = log.New(l.out, "\033[35mDBG\033[0m: ", log.Ldate|log.Ltime)
	return l
}

type StdLog struct {
	fatal, err, wrn, inf, dbg *log.Logger
	out                       io.Writer
	lvl                       Level
}

func (l *StdLog) Debug(format string, v ...interface{}) {
	if l.lvl < DBG {
		return
	}
	l.dbg.Printf(format, v...)
}

func (l *StdLog) Info(format string, v ...interface{}) {
	if l.lvl < INF {
		return
	}
	l.inf.Printf(format, v...)
}

func (l *StdLog) Warn(format string, v ...interface{}) {
	if l.lvl < WRN {
		return
	}
	l.wrn.Printf(format, v...)
}

func (l *StdLog) Error(format string, v ...interface{}) {
	if l.lvl < ERR {
		return
	}
	l.err.Printf(format, v...)
}

func (l *StdLog) Fatal(format string, v ...interface{}) {
	l.fatal.Printf(format, v...)
	os.Exit(1)
}

type Option func(l *StdLog)

func WithLevel(level Level) Option { return func(l *StdLog) { l.lvl = level } }

// WithOutput redirects every level to w.
func WithOutput(w io.Writer) Option { return func(l *StdLog) { l.out = w } }

func ParseLevel(lvl string) (Level, error) {
	levels := map[string]Level{
		strings.ToLower(ERR.String()): ERR,
		strings.ToLower(WRN.String()): WRN,
		strings.ToLower(INF.String()): INF,
		strings.ToLower(DBG.String()): DBG,
	}
	level, ok := levels[strings.ToLower(lvl)]
	if !ok {
		return INF, fmt.Errorf("%s %w", lvl, ErrParseStrToLevel)
	}
	return level, nil
}
