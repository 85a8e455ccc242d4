package timeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestTimeline(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "timeline.db")
	svc, err := NewService(dbPath)
	if err != nil {
		t.Fatalf("failed to create timeline service: %v", err)
	}
	t.Cleanup(func() {
		_ = svc.Close()
		_ = os.RemoveAll(dir)
	})
	return svc
}

func TestAddEventFillsDefaults(t *testing.T) {
	svc := newTestTimeline(t)

	evt := &Event{Direction: DirectionSystem, Kind: KindStatus, Content: "qr_ready"}
	if err := svc.AddEvent(evt); err != nil {
		t.Fatalf("add event: %v", err)
	}
	if evt.EventID == "" {
		t.Fatal("expected generated event id")
	}
	if evt.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
	if evt.ID == 0 {
		t.Fatal("expected row id")
	}
}

func TestAddEventIgnoresDuplicateEventID(t *testing.T) {
	svc := newTestTimeline(t)

	for i := 0; i < 2; i++ {
		err := svc.AddEvent(&Event{
			EventID:   "WAMSG1",
			Direction: DirectionInbound,
			Peer:      "12025550165@s.whatsapp.net",
			Kind:      KindMessage,
			Content:   "hello",
		})
		if err != nil {
			t.Fatalf("add event %d: %v", i, err)
		}
	}

	n, err := svc.Count(KindMessage)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 message event, got %d", n)
	}
}

func TestGetEventsFiltersAndOrders(t *testing.T) {
	svc := newTestTimeline(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	events := []*Event{
		{Timestamp: base, Direction: DirectionSystem, Kind: KindStatus, Content: "initializing"},
		{Timestamp: base.Add(time.Minute), Direction: DirectionInbound, Peer: "a@c.us", Kind: KindMessage, Content: "hi"},
		{Timestamp: base.Add(2 * time.Minute), Direction: DirectionOutbound, Peer: "a@c.us", Kind: KindSend, Content: "reply", Status: DeliverySent},
		{Timestamp: base.Add(3 * time.Minute), Direction: DirectionOutbound, Peer: "b@c.us", Kind: KindSend, Content: "x", Status: DeliveryFailed},
	}
	for _, e := range events {
		if err := svc.AddEvent(e); err != nil {
			t.Fatalf("add event: %v", err)
		}
	}

	all, err := svc.GetEvents(FilterArgs{})
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
	if all[0].Peer != "b@c.us" || all[3].Content != "initializing" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	peer, err := svc.GetEvents(FilterArgs{Peer: "a@c.us"})
	if err != nil {
		t.Fatalf("get events by peer: %v", err)
	}
	if len(peer) != 2 {
		t.Fatalf("expected 2 events for peer, got %d", len(peer))
	}

	sends, err := svc.GetEvents(FilterArgs{Kind: KindSend, Limit: 1})
	if err != nil {
		t.Fatalf("get sends: %v", err)
	}
	if len(sends) != 1 || sends[0].Status != DeliveryFailed {
		t.Fatalf("unexpected sends: %+v", sends)
	}

	inbound, err := svc.GetEvents(FilterArgs{Direction: DirectionInbound})
	if err != nil {
		t.Fatalf("get inbound: %v", err)
	}
	if len(inbound) != 1 || inbound[0].Content != "hi" {
		t.Fatalf("unexpected inbound: %+v", inbound)
	}

	paged, err := svc.GetEvents(FilterArgs{Offset: 3})
	if err != nil {
		t.Fatalf("get paged: %v", err)
	}
	if len(paged) != 1 || paged[0].Content != "initializing" {
		t.Fatalf("unexpected page: %+v", paged)
	}
}

func TestGetEventsDateRange(t *testing.T) {
	svc := newTestTimeline(t)
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := svc.AddEvent(&Event{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Direction: DirectionSystem,
			Kind:      KindStatus,
			Content:   "ready",
		}); err != nil {
			t.Fatalf("add event: %v", err)
		}
	}

	start := base.Add(30 * time.Minute)
	end := base.Add(90 * time.Minute)
	got, err := svc.GetEvents(FilterArgs{StartDate: &start, EndDate: &end})
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event in range, got %d", len(got))
	}
}

func TestPruneRemovesOlderEvents(t *testing.T) {
	svc := newTestTimeline(t)
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		if err := svc.AddEvent(&Event{
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Direction: DirectionInbound,
			Kind:      KindMessage,
			Peer:      "a@c.us",
			Content:   "hi",
		}); err != nil {
			t.Fatalf("add event: %v", err)
		}
	}

	n, err := svc.Prune(base.Add(36 * time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 pruned events, got %d", n)
	}
	left, err := svc.Count("")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if left != 2 {
		t.Fatalf("expected 2 remaining events, got %d", left)
	}

	n, err = svc.Prune(base)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected nothing pruned, got %d", n)
	}
}
