package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
)

var errSend = errors.New("send rejected")

// call records one outbound transport call.
type call struct {
	Op          string
	Dest        bus.ChatHandle
	ItemIDs     []int
	Caption     string
	LinkPreview bool
}

// fakeTransport records every call and fails the ones matched by failOn.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []call
	lookups map[string]int
	names   map[string]int64

	// failOn returns true when the call should be rejected.
	failOn func(c call) bool

	sources []bus.ChatHandle
	bus     *bus.MessageBus

	// run is called by Run; nil blocks until ctx is done.
	run func(ctx context.Context, b *bus.MessageBus) error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		lookups: make(map[string]int),
		names:   make(map[string]int64),
	}
}

func (f *fakeTransport) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.failOn != nil && f.failOn(c) {
		return errSend
	}
	return nil
}

func (f *fakeTransport) callsTo(dest bus.ChatHandle) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Dest == dest {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) allCalls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeTransport) ResolveIdentifier(_ context.Context, identifier string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups[identifier]++
	id, ok := f.names[identifier]
	if !ok {
		return 0, fmt.Errorf("chat %s not found", identifier)
	}
	return id, nil
}

func (f *fakeTransport) SendText(_ context.Context, dest bus.ChatHandle, item bus.InboundItem, linkPreview bool) error {
	return f.record(call{Op: "send_text", Dest: dest, ItemIDs: []int{item.ItemID}, Caption: item.Text, LinkPreview: linkPreview})
}

func (f *fakeTransport) SendMedia(_ context.Context, dest bus.ChatHandle, item bus.InboundItem, caption string) error {
	return f.record(call{Op: "send_media", Dest: dest, ItemIDs: []int{item.ItemID}, Caption: caption})
}

func (f *fakeTransport) SendBatch(_ context.Context, dest bus.ChatHandle, items []bus.InboundItem, caption string) error {
	ids := make([]int, len(items))
	for i, it := range items {
		ids[i] = it.ItemID
	}
	return f.record(call{Op: "send_batch", Dest: dest, ItemIDs: ids, Caption: caption})
}

func (f *fakeTransport) ForwardMessage(_ context.Context, dest bus.ChatHandle, item bus.InboundItem) error {
	return f.record(call{Op: "forward_message", Dest: dest, ItemIDs: []int{item.ItemID}})
}

func (f *fakeTransport) ForwardGroup(_ context.Context, dest bus.ChatHandle, group bus.MediaGroup) error {
	return f.record(call{Op: "forward_group", Dest: dest, ItemIDs: group.ItemIDs()})
}

func (f *fakeTransport) Subscribe(sources []bus.ChatHandle, msgBus *bus.MessageBus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = sources
	f.bus = msgBus
}

func (f *fakeTransport) Run(ctx context.Context) error {
	f.mu.Lock()
	run, b := f.run, f.bus
	f.mu.Unlock()
	if run == nil {
		<-ctx.Done()
		return nil
	}
	return run(ctx, b)
}

// Fixtures.

func photo(src bus.ChatHandle, id int, group, text string) bus.InboundItem {
	return bus.InboundItem{
		SourceChat: src, ItemID: id, GroupID: group, Text: text,
		Media: &bus.MediaDescriptor{Kind: bus.MediaPhoto, FileID: fmt.Sprintf("photo-%d", id)},
	}
}

func document(src bus.ChatHandle, id int, group, text string) bus.InboundItem {
	return bus.InboundItem{
		SourceChat: src, ItemID: id, GroupID: group, Text: text,
		Media: &bus.MediaDescriptor{Kind: bus.MediaDocument, FileID: fmt.Sprintf("doc-%d", id), MimeType: "application/pdf"},
	}
}

func textItem(src bus.ChatHandle, id int, text string) bus.InboundItem {
	return bus.InboundItem{SourceChat: src, ItemID: id, Text: text}
}
