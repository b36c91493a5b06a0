// Copyright 2022 The AmazeChain Authors
// This file is part of the AmazeChain library.
//
// The AmazeChain library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The AmazeChain library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the AmazeChain library. If not, see <http://www.gnu.org/licenses/>.

package log

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-stack/stack"
	"github.com/sirupsen/logrus"
)

var (
	std = logrus.StandardLogger()
)

type logger struct {
	ctx []interface{}
}

func (l *logger) fields(ctx []interface{}, skip int) logrus.Fields {
	field := make(logrus.Fields, len(ctx)/2+1)
	field["prefix"] = fmt.Sprintf("%k", stack.Caller(skip+1))
	ctx = newContext(l.ctx, ctx)
	for i := 0; i < len(ctx); i += 2 {
		k, ok := ctx[i].(string)
		if !ok {
			k = fmt.Sprint(ctx[i])
		}
		if s, ok := ctx[i+1].(TerminalStringer); ok {
			field[k] = s.TerminalString()
		} else if err, ok := ctx[i+1].(error); ok {
			field[k] = err.Error()
		} else {
			field[k] = ctx[i+1]
		}
	}
	return field
}

// levels maps the package levels onto logrus. Crit is written as an error, the process
// exits right after.
var levels = map[Lvl]logrus.Level{
	LvlCrit:  logrus.ErrorLevel,
	LvlError: logrus.ErrorLevel,
	LvlWarn:  logrus.WarnLevel,
	LvlInfo:  logrus.InfoLevel,
	LvlDebug: logrus.DebugLevel,
	LvlTrace: logrus.TraceLevel,
}

func (l *logger) write(msg string, lvl Lvl, ctx []interface{}, skip int) {
	level, ok := levels[lvl]
	if !ok {
		return
	}
	field := l.fields(ctx, skip)
	terminal.WithFields(field).Log(level, msg)
	std.WithFields(field).Log(level, msg)
}

func (l *logger) New(ctx ...interface{}) Logger {
	child := &logger{ctx: newContext(l.ctx, ctx)}
	return child
}

func newContext(prefix []interface{}, suffix []interface{}) []interface{} {
	normalizedSuffix := normalize(suffix)
	newCtx := make([]interface{}, len(prefix)+len(normalizedSuffix))
	n := copy(newCtx, prefix)
	copy(newCtx[n:], normalizedSuffix)
	return newCtx
}

func (l *logger) Trace(msg string, ctx ...interface{}) {
	l.write(msg, LvlTrace, ctx, skipLevel)
}

func (l *logger) Debug(msg string, ctx ...interface{}) {
	l.write(msg, LvlDebug, ctx, skipLevel)
}

func (l *logger) Info(msg string, ctx ...interface{}) {
	l.write(msg, LvlInfo, ctx, skipLevel)
}

func (l *logger) Warn(msg string, ctx ...interface{}) {
	l.write(msg, LvlWarn, ctx, skipLevel)
}

func (l *logger) Error(msg string, ctx ...interface{}) {
	l.write(msg, LvlError, ctx, skipLevel)
}

func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.write(msg, LvlCrit, ctx, skipLevel)
	os.Exit(1)
}

func normalize(ctx []interface{}) []interface{} {
	if len(ctx) == 1 {
		if ctxMap, ok := ctx[0].(Ctx); ok {
			ctx = ctxMap.toArray()
		}
	}

	if len(ctx)%2 != 0 {
		ctx = append(ctx, nil, "error", "Normalized odd number of arguments by adding nil")
	}

	return ctx
}

// Ctx is a map of key/value pairs to pass as context to a log function.
type Ctx map[string]interface{}

// toArray flattens c with its keys sorted, so that the fields of a record keep a
// stable order.
func (c Ctx) toArray() []interface{} {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	arr := make([]interface{}, 0, len(c)*2)
	for _, k := range keys {
		arr = append(arr, k, c[k])
	}
	return arr
}
