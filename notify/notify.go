// notify/notify.go

package notify

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// INotifier shows short-lived error messages to the user. Implementations
// must not block and must not fail.
type INotifier interface {
	Error(ctx context.Context, message string)
}

// LogNotifier writes every notification to the log.
type LogNotifier struct {
	log logrus.FieldLogger
}

// NewLogNotifier constructor
func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: log.WithField("notification", true)}
}

func (n *LogNotifier) Error(ctx context.Context, message string) {
	n.log.Warn(message)
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *Recorder) Error(ctx context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, message)
}

// Messages returns a copy of what was recorded so far.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.messages...)
}

// Last returns the most recent message, if any.
func (r *Recorder) Last() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.messages) == 0 {
		return "", false
	}
	return r.messages[len(r.messages)-1], true
}

// Multi fans a notification out to several sinks.
type Multi []INotifier

func (m Multi) Error(ctx context.Context, message string) {
	for _, n := range m {
		n.Error(ctx, message)
	}
}

type recorderKey struct{}

// WithRecorder attaches a per-request recorder to ctx.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// RecorderFrom returns the recorder attached by WithRecorder.
func RecorderFrom(ctx context.Context) (*Recorder, bool) {
	r, ok := ctx.Value(recorderKey{}).(*Recorder)
	return r, ok
}

// ContextRecorder forwards notifications to the recorder carried by ctx, so a
// request handler can echo the message raised while serving it.
type ContextRecorder struct{}

func (ContextRecorder) Error(ctx context.Context, message string) {
	if r, ok := RecorderFrom(ctx); ok {
		r.Error(ctx, message)
	}
}
