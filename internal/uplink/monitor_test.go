package uplink

import (
	"context"
	"errors"
	"testing"
	"time"

	"vital-signs-monitor/internal/alerting"
	"vital-signs-monitor/internal/pipeline"
	"vital-signs-monitor/internal/vitals"
)

type fakeProber struct {
	err error
}

func (p *fakeProber) Probe(context.Context) error { return p.err }

type fakePublisher struct {
	measurements []vitals.Measurement
	alerts       []alerting.Event
	err          error
}

func (p *fakePublisher) PublishMeasurement(_ context.Context, m vitals.Measurement) error {
	p.measurements = append(p.measurements, m)
	return p.err
}

func (p *fakePublisher) PublishAlert(_ context.Context, a alerting.Event) error {
	p.alerts = append(p.alerts, a)
	return p.err
}

type fakeControl struct {
	online     bool
	setCalls   int
	flushCalls int
	flush      pipeline.FlushResult
}

func (c *fakeControl) Online() bool { return c.online }

func (c *fakeControl) SetOnline(online bool) {
	c.setCalls++
	c.online = online
}

func (c *fakeControl) FlushCachedData() pipeline.FlushResult {
	c.flushCalls++
	return c.flush
}

func TestMonitorGoesOffline(t *testing.T) {
	control := &fakeControl{online: true}
	monitor := NewMonitor(&fakeProber{err: errors.New("connection refused")}, &fakePublisher{}, control, true, noopLogger())

	if err := monitor.Check(context.Background(), time.Now()); err != nil {
		t.Fatalf("probe failures are a state, not an error: %v", err)
	}
	if control.online {
		t.Fatal("failed probe should switch the pipeline offline")
	}
}

func TestMonitorNoopWhenStateUnchanged(t *testing.T) {
	control := &fakeControl{online: true}
	monitor := NewMonitor(&fakeProber{}, &fakePublisher{}, control, true, noopLogger())

	_ = monitor.Check(context.Background(), time.Now())
	if control.setCalls != 0 {
		t.Fatal("matching state should not toggle connectivity")
	}
	if control.flushCalls != 0 {
		t.Fatal("matching state should not flush")
	}
}

func TestMonitorReplaysOnReconnect(t *testing.T) {
	m := vitals.Measurement{ID: "m-1", PatientID: "p-1", Type: vitals.SpO2, Value: 88}
	a := alerting.Event{ID: "a-1", PatientID: "p-1"}
	control := &fakeControl{
		online: false,
		flush: pipeline.FlushResult{
			Status:       pipeline.FlushFlushed,
			Measurements: []vitals.Measurement{m},
			Alerts:       []alerting.Event{a},
		},
	}
	publisher := &fakePublisher{}
	monitor := NewMonitor(&fakeProber{}, publisher, control, true, noopLogger())

	_ = monitor.Check(context.Background(), time.Now())

	if !control.online {
		t.Fatal("successful probe should switch the pipeline online")
	}
	if control.flushCalls != 1 {
		t.Fatalf("reconnect should flush once, got %d", control.flushCalls)
	}
	if len(publisher.measurements) != 1 || publisher.measurements[0].ID != "m-1" {
		t.Fatalf("flushed measurement should be republished, got %+v", publisher.measurements)
	}
	if len(publisher.alerts) != 1 || publisher.alerts[0].ID != "a-1" {
		t.Fatalf("flushed alert should be republished, got %+v", publisher.alerts)
	}
}

func TestMonitorAutoFlushDisabled(t *testing.T) {
	control := &fakeControl{online: false, flush: pipeline.FlushResult{Status: pipeline.FlushFlushed}}
	monitor := NewMonitor(&fakeProber{}, &fakePublisher{}, control, false, noopLogger())

	_ = monitor.Check(context.Background(), time.Now())

	if !control.online {
		t.Fatal("probe should still toggle connectivity")
	}
	if control.flushCalls != 0 {
		t.Fatal("auto flush disabled: the cache must stay buffered")
	}
}
