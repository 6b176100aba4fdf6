package logger

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// LogPublisher publishes a formatted log line to the device's log topic.
// The MQTT transport satisfies this interface once it is connected.
type LogPublisher interface {
	PublishLog(payload []byte) bool
}

// Hook mirrors log entries to an MQTT log topic. It is registered with logrus
// at startup and stays silent until a publisher is attached on the first
// successful transport connection.
//
// The publisher must not log from within its publish path.
type Hook struct {
	mutex     sync.Mutex
	publisher LogPublisher
	formatter logrus.Formatter
}

// NewHook returns a hook without a publisher. Install it with
// logrus.AddHook().
func NewHook() *Hook {
	return &Hook{
		formatter: &logrus.TextFormatter{
			TimestampFormat:  "2006-01-02 15:04:05",
			FullTimestamp:    true,
			DisableColors:    true,
			DisableSorting:   false,
			DisableTimestamp: false,
		},
	}
}

// SetPublisher attaches (or replaces) the publisher the hook mirrors to.
func (h *Hook) SetPublisher(publisher LogPublisher) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.publisher = publisher
}

// Levels implements the logrus.Hook interface.
func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements the logrus.Hook interface.
func (h *Hook) Fire(entry *logrus.Entry) error {
	h.mutex.Lock()
	publisher := h.publisher
	h.mutex.Unlock()
	if publisher == nil {
		return nil
	}
	payload, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	publisher.PublishLog(payload)
	return nil
}
