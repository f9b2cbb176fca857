package services

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const DefaultNotifierCooldown = 5 * time.Second

type NoticeKind = string

const (
	NoticeSendFailed        = NoticeKind("send.failed")
	NoticePartialAttachment = NoticeKind("send.partial")
	NoticeTransportDegraded = NoticeKind("transport.degraded")
	NoticeTransportRestored = NoticeKind("transport.restored")
)

type Notice struct {
	Kind      NoticeKind
	SessionID string
	Err       error
	// Suppressed counts notices of the same kind dropped since the last delivery
	Suppressed int
}

// Notifier forwards user facing notices of one session to a sink,
// letting at most one notice per kind through per cooldown.
type Notifier struct {
	sessionID string
	cooldown  time.Duration
	sink      func(Notice)

	lock       sync.Mutex
	limiters   map[NoticeKind]*rate.Limiter
	suppressed map[NoticeKind]int
	now        func() time.Time
}

func NewNotifier(sessionID string, cooldown time.Duration, sink func(Notice)) *Notifier {
	if cooldown <= 0 {
		cooldown = DefaultNotifierCooldown
	}
	return &Notifier{
		sessionID:  sessionID,
		cooldown:   cooldown,
		sink:       sink,
		limiters:   make(map[NoticeKind]*rate.Limiter),
		suppressed: make(map[NoticeKind]int),
		now:        time.Now,
	}
}

// Notify reports whether the notice reached the sink.
func (v *Notifier) Notify(kind NoticeKind, err error) bool {
	v.lock.Lock()
	limiter, ok := v.limiters[kind]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(v.cooldown), 1)
		v.limiters[kind] = limiter
	}
	if !limiter.AllowN(v.now(), 1) {
		v.suppressed[kind]++
		v.lock.Unlock()
		return false
	}
	notice := Notice{
		Kind:       kind,
		SessionID:  v.sessionID,
		Err:        err,
		Suppressed: v.suppressed[kind],
	}
	delete(v.suppressed, kind)
	v.lock.Unlock()

	if v.sink != nil {
		v.sink(notice)
	}
	return true
}
