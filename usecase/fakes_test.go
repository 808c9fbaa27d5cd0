package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/solana-sos/emergency/domain/entities"
)

type fakeDevice struct {
	mu         sync.Mutex
	openErr    error
	forceErr   error
	restoreErr error
	gainErr    error
	opens      int
	forced     []float32
	restored   []float32
	profiles   []entities.MicrophoneProfile
}

func (d *fakeDevice) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	return d.openErr
}

func (d *fakeDevice) ForceOutputVolume(ctx context.Context, level float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.forceErr != nil {
		return d.forceErr
	}
	d.forced = append(d.forced, level)
	return nil
}

func (d *fakeDevice) RestoreUserVolume(ctx context.Context, level float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.restoreErr != nil {
		return d.restoreErr
	}
	d.restored = append(d.restored, level)
	return nil
}

func (d *fakeDevice) AdjustMicrophoneGain(ctx context.Context, profile entities.MicrophoneProfile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gainErr != nil {
		return d.gainErr
	}
	d.profiles = append(d.profiles, profile)
	return nil
}

func (d *fakeDevice) restoredCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.restored)
}

type fakePipeline struct {
	filterErr     error
	effectiveness float32
}

func (p *fakePipeline) FilterNoise(ctx context.Context, pcm []byte) ([]byte, float32, error) {
	if p.filterErr != nil {
		return nil, 0, p.filterErr
	}
	return pcm[:len(pcm)/2], p.effectiveness, nil
}

func (p *fakePipeline) Enhance(ctx context.Context, pcm []byte) ([]byte, error) {
	return append(append([]byte(nil), pcm...), pcm...), nil
}

type dialCall struct {
	number   string
	location string
}

type fakeTransport struct {
	mu         sync.Mutex
	dialErr    error
	deliverErr error
	shareErr   error
	dials      []dialCall
	contexts   []entities.DispatcherContext
	locations  []entities.Coordinates
}

func (t *fakeTransport) Dial(ctx context.Context, number, locationHint string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dialErr != nil {
		return t.dialErr
	}
	t.dials = append(t.dials, dialCall{number: number, location: locationHint})
	return nil
}

func (t *fakeTransport) DeliverContext(ctx context.Context, dispatcherContext entities.DispatcherContext) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deliverErr != nil {
		return t.deliverErr
	}
	t.contexts = append(t.contexts, dispatcherContext)
	return nil
}

func (t *fakeTransport) ShareLocation(ctx context.Context, location entities.Coordinates) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shareErr != nil {
		return t.shareErr
	}
	t.locations = append(t.locations, location)
	return nil
}

func (t *fakeTransport) dialed() []dialCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]dialCall(nil), t.dials...)
}

type fakeRecords struct {
	mu      sync.Mutex
	err     error
	records []*entities.EmergencyCallData
}

func (r *fakeRecords) RecordCall(ctx context.Context, record *entities.EmergencyCallData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, record)
	return nil
}

func (r *fakeRecords) GetByID(ctx context.Context, id string) (*entities.EmergencyCallData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.ID == id {
			return record, nil
		}
	}
	return nil, nil
}

func (r *fakeRecords) ListRecent(ctx context.Context, limit int) ([]*entities.EmergencyCallData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entities.EmergencyCallData(nil), r.records...), nil
}

func (r *fakeRecords) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeRecords) all() []*entities.EmergencyCallData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entities.EmergencyCallData(nil), r.records...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []entities.EmergencyEvent
}

func (p *fakePublisher) Publish(event entities.EmergencyEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePublisher) types() []entities.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]entities.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

// waitFor polls cond until it holds or the test times out
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

// advanceUntilDone moves the mock clock forward until done delivers
func advanceUntilDone(t *testing.T, mock *clock.Mock, done <-chan error) error {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for restoration")
		}
		mock.Add(time.Second)
		time.Sleep(time.Millisecond)
	}
}
