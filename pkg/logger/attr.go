package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Error returns an "error" attribute, or an empty one for a nil error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups the non-nil errors under "errors".
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Key(key string) slog.Attr {
	return slog.String("key", key)
}

func Region(region string) slog.Attr {
	return slog.String("region", region)
}

func JobID(id string) slog.Attr {
	return slog.String("job_id", id)
}

func MessageID(id string) slog.Attr {
	return slog.String("message_id", id)
}

// Batch records a batch index and its recipient count.
func Batch(index, size int) slog.Attr {
	return slog.Group("batch", slog.Int("index", index), slog.Int("size", size))
}

func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Transition records a status change as "from -> to".
func Transition(from, to string) slog.Attr {
	return slog.String("transition", from+" -> "+to)
}
