package service

import (
	"context"
	"sync"
	"time"

	"loyalty-rewards-be/internal/model"
	"loyalty-rewards-be/pkg/tour"
)

type stepScheduler struct {
	mu    sync.Mutex
	funcs []func()
}

type stepTimer struct{}

func (stepTimer) Stop() bool { return true }

func (s *stepScheduler) AfterFunc(_ time.Duration, f func()) tour.Timer {
	s.mu.Lock()
	s.funcs = append(s.funcs, f)
	s.mu.Unlock()
	return stepTimer{}
}

// FireAll runs every scheduled reveal. Stale ones are dropped by the controller.
func (s *stepScheduler) FireAll() {
	s.mu.Lock()
	funcs := s.funcs
	s.funcs = nil
	s.mu.Unlock()
	for _, f := range funcs {
		f()
	}
}

type sentMessage struct {
	UserID string
	Type   string
	Data   interface{}
}

type fakeDelivery struct {
	mu        sync.Mutex
	connected []string
	sent      []sentMessage
}

func (d *fakeDelivery) Send(userID string, msgType string, data interface{}) {
	d.record(userID, msgType, data)
}

func (d *fakeDelivery) SendLocal(userID string, msgType string, data interface{}) {
	d.record(userID, msgType, data)
}

func (d *fakeDelivery) ConnectedUsers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.connected...)
}

func (d *fakeDelivery) record(userID, msgType string, data interface{}) {
	d.mu.Lock()
	d.sent = append(d.sent, sentMessage{UserID: userID, Type: msgType, Data: data})
	d.mu.Unlock()
}

func (d *fakeDelivery) messages(msgType string) []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []sentMessage
	for _, m := range d.sent {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type recordingFlags struct {
	mu      sync.Mutex
	changes []tour.FlagChange
}

func (r *recordingFlags) TourFlagChanged(_ context.Context, ch tour.FlagChange) {
	r.mu.Lock()
	r.changes = append(r.changes, ch)
	r.mu.Unlock()
}

func (r *recordingFlags) all() []tour.FlagChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tour.FlagChange(nil), r.changes...)
}

type fakeTourEventRepo struct {
	mu     sync.Mutex
	events []model.TourEvent
	err    error
}

func (r *fakeTourEventRepo) Create(_ context.Context, e *model.TourEvent) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.events = append(r.events, *e)
	r.mu.Unlock()
	return nil
}

func (r *fakeTourEventRepo) FindByUserID(_ context.Context, userID string, limit, offset int) ([]model.TourEvent, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []model.TourEvent
	for _, e := range r.events {
		if e.UserID == userID {
			matched = append(matched, e)
		}
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return []model.TourEvent{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}
