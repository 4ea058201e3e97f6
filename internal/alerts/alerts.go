package alerts

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bowerhall/chatbridge/internal/logger"
	"github.com/bowerhall/chatbridge/internal/stranger"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityCritical
)

type NotifyFunc func(message string)

type Alerter struct {
	mu        sync.Mutex
	notify    NotifyFunc
	cooldowns map[string]time.Time
	cooldown  time.Duration
	now       func() time.Time
}

func New(notify NotifyFunc, cooldown time.Duration) *Alerter {
	return &Alerter{
		notify:    notify,
		cooldowns: make(map[string]time.Time),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (a *Alerter) Alert(severity Severity, component, message string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := fmt.Sprintf("%s:%s", component, message)

	if lastSent, ok := a.cooldowns[key]; ok {
		if a.now().Sub(lastSent) < a.cooldown {
			logger.Debug("alert suppressed (cooldown)", "component", component, "message", message)
			return
		}
	}

	var text string
	switch severity {
	case SeverityCritical:
		text = fmt.Sprintf("🚨 %s: %s", component, message)
	case SeverityWarn:
		text = fmt.Sprintf("⚠️ %s: %s", component, message)
	default:
		text = fmt.Sprintf("ℹ️ %s: %s", component, message)
	}

	if err != nil {
		text += fmt.Sprintf("\n\nError: %v", err)
	}

	if a.notify != nil {
		a.notify(text)
		a.cooldowns[key] = a.now()
		logger.Info("alert sent", "component", component, "severity", severity)
	}
}

func (a *Alerter) Critical(component, message string, err error) {
	a.Alert(SeverityCritical, component, message, err)
}

func (a *Alerter) Warn(component, message string, err error) {
	a.Alert(SeverityWarn, component, message, err)
}

// Sink adapts the alerter to the stranger client's error sink. Callback
// panics are critical; transport and protocol failures are warnings keyed
// by their summary so a flapping server does not flood the chat.
func (a *Alerter) Sink(component string) func(error) {
	return func(err error) {
		logger.Error("stranger client error", "component", component, "error", err)

		var cbErr *stranger.CallbackError
		if errors.As(err, &cbErr) {
			a.Critical(component, "handler for "+cbErr.Callback+" panicked", err)
			return
		}

		var tErr *stranger.TransportError
		if errors.As(err, &tErr) {
			endpoint, _, _ := strings.Cut(tErr.URL, "?")
			a.Warn(component, tErr.Method+" "+endpoint+" failed", err)
			return
		}

		a.Warn(component, "session error", err)
	}
}
