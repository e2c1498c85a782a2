package relay

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
)

func TestResolveMode(t *testing.T) {
	tests := []struct {
		copyOn, forwardOn bool
		want              Mode
	}{
		{true, false, ModeCopy},
		{true, true, ModeCopy},
		{false, true, ModeForward},
		{false, false, ModeNone},
	}
	for _, tt := range tests {
		if got := ResolveMode(tt.copyOn, tt.forwardOn); got != tt.want {
			t.Errorf("ResolveMode(%v, %v) = %q, want %q", tt.copyOn, tt.forwardOn, got, tt.want)
		}
	}
}

func TestDeliverGroup_TwelvePhotosCopy(t *testing.T) {
	ft := newFakeTransport()
	e := NewEngine(ft, ModeCopy)

	group := bus.MediaGroup{SourceChat: -1, GroupID: "g1"}
	for i := 1; i <= 12; i++ {
		text := ""
		if i == 1 {
			text = "Trip"
		}
		group.Items = append(group.Items, photo(-1, i, "g1", text))
	}

	report := e.DeliverGroup(context.Background(), group, []bus.ChatHandle{-2})
	out, _ := report.Outcome(-2)
	if out.State != StateDelivered || out.Fallback {
		t.Fatalf("outcome = %+v, want delivered without fallback", out)
	}

	calls := ft.callsTo(-2)
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2 batches", len(calls))
	}
	if calls[0].Op != "send_batch" || len(calls[0].ItemIDs) != 10 || calls[0].Caption != "Trip" {
		t.Errorf("batch 1 = %+v", calls[0])
	}
	if !reflect.DeepEqual(calls[1].ItemIDs, []int{11, 12}) || calls[1].Caption != "" {
		t.Errorf("batch 2 = %+v", calls[1])
	}
}

func TestDeliverGroup_MixedPhotosAndDocument(t *testing.T) {
	ft := newFakeTransport()
	e := NewEngine(ft, ModeCopy)

	group := bus.MediaGroup{SourceChat: -1, GroupID: "g2", Items: []bus.InboundItem{
		photo(-1, 1, "g2", "Report"),
		photo(-1, 2, "g2", ""),
		document(-1, 3, "g2", ""),
	}}
	e.DeliverGroup(context.Background(), group, []bus.ChatHandle{-2})

	calls := ft.callsTo(-2)
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if !reflect.DeepEqual(calls[0].ItemIDs, []int{1, 2}) || calls[0].Caption != "Report" {
		t.Errorf("photo batch = %+v", calls[0])
	}
	if !reflect.DeepEqual(calls[1].ItemIDs, []int{3}) || calls[1].Caption != "" {
		t.Errorf("document batch = %+v", calls[1])
	}
}

func TestDeliverItem_TextOnlyCopy(t *testing.T) {
	ft := newFakeTransport()
	e := NewEngine(ft, ModeCopy)

	report := e.DeliverItem(context.Background(), textItem(-1, 5, "hello https://example.com"), []bus.ChatHandle{-2})
	if out, _ := report.Outcome(-2); out.State != StateDelivered {
		t.Fatalf("state = %q, want delivered", out.State)
	}
	calls := ft.allCalls()
	if len(calls) != 1 || calls[0].Op != "send_text" || !calls[0].LinkPreview {
		t.Fatalf("calls = %+v, want one send_text with link preview", calls)
	}
	if report.Ref != "-1/5" {
		t.Errorf("Ref = %q", report.Ref)
	}
}

func TestDeliverItem_CopyMediaKeepsCaption(t *testing.T) {
	ft := newFakeTransport()
	e := NewEngine(ft, ModeCopy)

	e.DeliverItem(context.Background(), photo(-1, 5, "", "look"), []bus.ChatHandle{-2})
	calls := ft.allCalls()
	if len(calls) != 1 || calls[0].Op != "send_media" || calls[0].Caption != "look" {
		t.Fatalf("calls = %+v, want one send_media with caption", calls)
	}
}

func TestDeliverItem_EmptySkipped(t *testing.T) {
	ft := newFakeTransport()
	e := NewEngine(ft, ModeCopy)

	report := e.DeliverItem(context.Background(), textItem(-1, 5, ""), []bus.ChatHandle{-2})
	if out, _ := report.Outcome(-2); out.State != StateSkipped {
		t.Errorf("state = %q, want skipped", out.State)
	}
	if n := len(ft.allCalls()); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
}

func TestDeliverItem_Forward(t *testing.T) {
	ft := newFakeTransport()
	e := NewEngine(ft, ModeForward)

	e.DeliverItem(context.Background(), textItem(-1, 5, "hi"), []bus.ChatHandle{-2, -3})
	for _, dest := range []bus.ChatHandle{-2, -3} {
		calls := ft.callsTo(dest)
		if len(calls) != 1 || calls[0].Op != "forward_message" {
			t.Errorf("dest %d calls = %+v, want one forward", dest, calls)
		}
	}
}

func TestDeliverItem_FailureRecorded(t *testing.T) {
	ft := newFakeTransport()
	ft.failOn = func(c call) bool { return c.Dest == -2 }
	e := NewEngine(ft, ModeCopy)

	report := e.DeliverItem(context.Background(), textItem(-1, 5, "hi"), []bus.ChatHandle{-2, -3})
	failed, _ := report.Outcome(-2)
	if failed.State != StateFailed {
		t.Errorf("dest -2 state = %q, want failed", failed.State)
	}
	var delErr *DeliveryError
	if !errors.As(failed.Err, &delErr) || delErr.Op != "send_text" || !errors.Is(failed.Err, errSend) {
		t.Errorf("dest -2 err = %v, want DeliveryError(send_text) wrapping errSend", failed.Err)
	}
	if ok, _ := report.Outcome(-3); ok.State != StateDelivered {
		t.Errorf("dest -3 state = %q, want delivered despite -2 failing", ok.State)
	}
}

func TestDeliverGroup_ForwardFailsFallsBack(t *testing.T) {
	ft := newFakeTransport()
	ft.failOn = func(c call) bool { return c.Op == "forward_group" }
	e := NewEngine(ft, ModeForward)

	group := bus.MediaGroup{SourceChat: -1, GroupID: "g3", Items: []bus.InboundItem{
		photo(-1, 1, "g3", "cap"),
		photo(-1, 2, "g3", ""),
		photo(-1, 3, "g3", ""),
	}}
	report := e.DeliverGroup(context.Background(), group, []bus.ChatHandle{-2})

	out, _ := report.Outcome(-2)
	if !out.Fallback || out.Attempted != 3 || out.Delivered != 3 {
		t.Fatalf("outcome = %+v, want fallback over 3 items", out)
	}
	if out.State != StatePartiallyDelivered {
		t.Errorf("state = %q, want partially_delivered", out.State)
	}
	if !errors.Is(out.Err, errSend) {
		t.Errorf("err = %v, want the forward error", out.Err)
	}

	calls := ft.callsTo(-2)
	if len(calls) != 4 || calls[0].Op != "forward_group" {
		t.Fatalf("calls = %+v, want forward_group then 3 singles", calls)
	}
	for i, c := range calls[1:] {
		if c.Op != "send_media" || c.ItemIDs[0] != i+1 {
			t.Errorf("fallback call %d = %+v", i, c)
		}
	}
	if calls[1].Caption != "cap" || calls[2].Caption != "" || calls[3].Caption != "" {
		t.Errorf("captions = %q %q %q, want caption on the first item only", calls[1].Caption, calls[2].Caption, calls[3].Caption)
	}
}

func TestDeliverGroup_CopyBatchFailsFallsBackPerItem(t *testing.T) {
	ft := newFakeTransport()
	failedItem := 2
	ft.failOn = func(c call) bool {
		return c.Op == "send_batch" || (c.Op == "send_media" && c.ItemIDs[0] == failedItem)
	}
	e := NewEngine(ft, ModeCopy)

	group := bus.MediaGroup{SourceChat: -1, GroupID: "g4", Items: []bus.InboundItem{
		photo(-1, 1, "g4", ""),
		photo(-1, 2, "g4", "second"),
		textItem(-1, 3, "ignored"),
		photo(-1, 4, "g4", ""),
	}}
	report := e.DeliverGroup(context.Background(), group, []bus.ChatHandle{-2})
	out, _ := report.Outcome(-2)
	if out.State != StatePartiallyDelivered || out.Attempted != 3 || out.Delivered != 2 {
		t.Fatalf("outcome = %+v, want 2 of 3 delivered", out)
	}
	var delErr *DeliveryError
	if !errors.As(out.Err, &delErr) || delErr.Op != "send_batch" {
		t.Errorf("err = %v, want send_batch DeliveryError", out.Err)
	}

	singles := ft.callsTo(-2)[1:]
	// The caption rides on the first attempted item, whichever item it came from.
	if singles[0].ItemIDs[0] != 1 || singles[0].Caption != "second" {
		t.Errorf("first single = %+v", singles[0])
	}
}

func TestDeliverGroup_FallbackAllFail(t *testing.T) {
	ft := newFakeTransport()
	ft.failOn = func(call) bool { return true }
	e := NewEngine(ft, ModeCopy)

	group := bus.MediaGroup{SourceChat: -1, GroupID: "g5", Items: []bus.InboundItem{
		photo(-1, 1, "g5", ""), photo(-1, 2, "g5", ""),
	}}
	out, _ := e.DeliverGroup(context.Background(), group, []bus.ChatHandle{-2}).Outcome(-2)
	if out.State != StateFailed || out.Delivered != 0 || out.Attempted != 2 {
		t.Errorf("outcome = %+v, want failed with 2 attempts", out)
	}
}

func TestDeliverGroup_StopsAtFirstFailedBatch(t *testing.T) {
	ft := newFakeTransport()
	ft.failOn = func(c call) bool { return c.Op == "send_batch" && len(c.ItemIDs) == 10 }
	e := NewEngine(ft, ModeCopy)

	group := bus.MediaGroup{SourceChat: -1, GroupID: "g6"}
	for i := 1; i <= 12; i++ {
		group.Items = append(group.Items, photo(-1, i, "g6", ""))
	}
	e.DeliverGroup(context.Background(), group, []bus.ChatHandle{-2})

	var batches, singles int
	for _, c := range ft.callsTo(-2) {
		switch c.Op {
		case "send_batch":
			batches++
		case "send_media":
			singles++
		}
	}
	if batches != 1 || singles != 12 {
		t.Errorf("batches=%d singles=%d, want 1 failed batch then 12 singles", batches, singles)
	}
}

func TestDeliverGroup_DestinationsIndependent(t *testing.T) {
	ft := newFakeTransport()
	ft.failOn = func(c call) bool { return c.Dest == -2 && c.Op == "send_batch" }
	e := NewEngine(ft, ModeCopy)

	group := bus.MediaGroup{SourceChat: -1, GroupID: "g7", Items: []bus.InboundItem{
		photo(-1, 1, "g7", "x"), photo(-1, 2, "g7", ""),
	}}
	report := e.DeliverGroup(context.Background(), group, []bus.ChatHandle{-2, -3})

	if len(report.Outcomes) != 2 || report.Outcomes[0].Destination != -2 || report.Outcomes[1].Destination != -3 {
		t.Fatalf("outcomes out of order: %+v", report.Outcomes)
	}
	if report.Outcomes[0].State != StatePartiallyDelivered {
		t.Errorf("dest -2 state = %q", report.Outcomes[0].State)
	}
	if report.Outcomes[1].State != StateDelivered || report.Outcomes[1].Fallback {
		t.Errorf("dest -3 outcome = %+v, want plain delivery", report.Outcomes[1])
	}
	if n := len(ft.callsTo(-3)); n != 1 {
		t.Errorf("dest -3 calls = %d, want 1", n)
	}
}

func TestDeliverGroup_TextOnlyGroupSkipped(t *testing.T) {
	ft := newFakeTransport()
	e := NewEngine(ft, ModeCopy)

	group := bus.MediaGroup{SourceChat: -1, GroupID: "g8", Items: []bus.InboundItem{textItem(-1, 1, "words")}}
	out, _ := e.DeliverGroup(context.Background(), group, []bus.ChatHandle{-2}).Outcome(-2)
	if out.State != StateSkipped {
		t.Errorf("state = %q, want skipped", out.State)
	}
}

func TestModeNoneDeliversNothing(t *testing.T) {
	ft := newFakeTransport()
	e := NewEngine(ft, ModeNone)

	r1 := e.DeliverItem(context.Background(), textItem(-1, 1, "hi"), []bus.ChatHandle{-2})
	r2 := e.DeliverGroup(context.Background(), bus.MediaGroup{SourceChat: -1, GroupID: "g", Items: []bus.InboundItem{photo(-1, 2, "g", "")}}, []bus.ChatHandle{-2})
	for _, r := range []Report{r1, r2} {
		if out, _ := r.Outcome(-2); out.State != StateSkipped {
			t.Errorf("%s state = %q, want skipped", r.Ref, out.State)
		}
	}
	if n := len(ft.allCalls()); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
}

// blockingSender counts concurrent calls.
type blockingSender struct {
	fakeTransport
	active, peak atomic.Int32
}

func (b *blockingSender) SendText(ctx context.Context, dest bus.ChatHandle, item bus.InboundItem, lp bool) error {
	n := b.active.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	b.active.Add(-1)
	return nil
}

func TestEngine_BoundsConcurrency(t *testing.T) {
	s := &blockingSender{}
	e := NewEngine(s, ModeCopy, WithMaxConcurrentDestinations(2))

	dests := []bus.ChatHandle{-2, -3, -4, -5, -6}
	report := e.DeliverItem(context.Background(), textItem(-1, 1, "hi"), dests)
	if len(report.Outcomes) != len(dests) {
		t.Fatalf("outcomes = %d", len(report.Outcomes))
	}
	if p := s.peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}
