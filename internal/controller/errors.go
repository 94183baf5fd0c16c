package controller

import (
	"context"
	"errors"

	"fun-with-ai/internal/llm"
	"fun-with-ai/internal/storage"
)

// GenericNotice is the only failure text ever shown to a user.
const GenericNotice = "Something Went Wrong!"

const (
	KindTransport = "transport"
	KindAPI       = "api"
	KindStorage   = "storage"
	KindUnknown   = "unknown"
)

// Classify names the kind of a failure for logs and metrics.
func Classify(err error) string {
	if k, ok := llm.KindOf(err); ok {
		return string(k)
	}
	var se *storage.Error
	if errors.As(err, &se) {
		return KindStorage
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransport
	}
	return KindUnknown
}

// Notifier shows the generic notice to the user.
type Notifier interface {
	Notify(notice string)
}

type NotifierFunc func(notice string)

func (f NotifierFunc) Notify(notice string) { f(notice) }
