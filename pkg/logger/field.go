package logger

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field is a typed key/value attached to a log record.
type Field struct {
	key   string
	kind  fieldKind
	str   string
	num   int64
	float float64
	ts    time.Time
	err   error
	any   interface{}
}

type fieldKind uint8

const (
	kindString fieldKind = iota
	kindInt
	kindFloat
	kindBool
	kindTime
	kindDuration
	kindError
	kindAny
)

func (f Field) AddTo(e *zerolog.Event) {
	switch f.kind {
	case kindString:
		e.Str(f.key, f.str)
	case kindInt:
		e.Int64(f.key, f.num)
	case kindFloat:
		e.Float64(f.key, f.float)
	case kindBool:
		e.Bool(f.key, f.num != 0)
	case kindTime:
		e.Time(f.key, f.ts)
	case kindDuration:
		e.Int64(f.key, f.num/int64(time.Millisecond))
	case kindError:
		e.AnErr(f.key, f.err)
	default:
		e.Interface(f.key, f.any)
	}
}

func (f Field) addToContext(c zerolog.Context) zerolog.Context {
	switch f.kind {
	case kindString:
		return c.Str(f.key, f.str)
	case kindInt:
		return c.Int64(f.key, f.num)
	case kindFloat:
		return c.Float64(f.key, f.float)
	case kindBool:
		return c.Bool(f.key, f.num != 0)
	case kindTime:
		return c.Time(f.key, f.ts)
	case kindDuration:
		return c.Int64(f.key, f.num/int64(time.Millisecond))
	case kindError:
		return c.AnErr(f.key, f.err)
	default:
		return c.Interface(f.key, f.any)
	}
}

// KeyValue returns the field in a form suitable for JSON aggregation.
func (f Field) KeyValue() (string, interface{}) {
	switch f.kind {
	case kindString:
		return f.key, f.str
	case kindInt:
		return f.key, f.num
	case kindFloat:
		return f.key, f.float
	case kindBool:
		return f.key, f.num != 0
	case kindTime:
		return f.key, f.ts.UTC().Format(time.RFC3339Nano)
	case kindDuration:
		return f.key, f.num / int64(time.Millisecond)
	case kindError:
		if f.err == nil {
			return f.key, nil
		}
		return f.key, f.err.Error()
	default:
		return f.key, f.any
	}
}

func String(key, value string) Field { return Field{key: key, kind: kindString, str: value} }

func Int(key string, value int) Field { return Field{key: key, kind: kindInt, num: int64(value)} }

func Int64(key string, value int64) Field { return Field{key: key, kind: kindInt, num: value} }

func Uint64(key string, value uint64) Field { return Field{key: key, kind: kindInt, num: int64(value)} }

func Float64(key string, value float64) Field {
	return Field{key: key, kind: kindFloat, float: value}
}

func Bool(key string, value bool) Field {
	f := Field{key: key, kind: kindBool}
	if value {
		f.num = 1
	}
	return f
}

func Time(key string, value time.Time) Field { return Field{key: key, kind: kindTime, ts: value} }

// Duration is logged in whole milliseconds.
func Duration(key string, value time.Duration) Field {
	return Field{key: key, kind: kindDuration, num: int64(value)}
}

func Error(err error) Field { return Field{key: "error", kind: kindError, err: err} }

func Any(key string, value interface{}) Field { return Field{key: key, kind: kindAny, any: value} }

func Strings(key string, values []string) Field {
	return String(key, strings.Join(values, ","))
}
