// Package transporttest provides an in-memory Transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/premium-verification/internal/transport"
)

// SentPrompt records a prompt sent to a channel.
type SentPrompt struct {
	ChannelRef string
	Prompt     transport.Prompt
}

// Fake is a scriptable Transport. Inbound messages are queued with Say or
// Deliver; everything sent outbound is recorded.
type Fake struct {
	mailbox *transport.Mailbox

	mu            sync.Mutex
	nextChannel   int
	channels      map[string]bool
	created       []string
	deleted       []string
	prompts       []SentPrompt
	promptSignal  chan struct{}
	grants        []string
	notifications []transport.AdminNotification

	CreateErr error
	DeleteErr error
	GrantErr  error
	NotifyErr error
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		mailbox:      transport.NewMailbox(64),
		channels:     make(map[string]bool),
		promptSignal: make(chan struct{}, 1024),
	}
}

func (f *Fake) CreateChannel(_ context.Context, userExternalID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.nextChannel++
	ref := fmt.Sprintf("chan-%s-%d", userExternalID, f.nextChannel)
	f.channels[ref] = true
	f.created = append(f.created, ref)
	return ref, nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if !f.channels[channelRef] {
		return transport.ErrChannelNotFound
	}
	delete(f.channels, channelRef)
	f.deleted = append(f.deleted, channelRef)
	f.mailbox.Discard(channelRef)
	return nil
}

func (f *Fake) ChannelExists(_ context.Context, channelRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[channelRef], nil
}

// DropChannel makes a channel unreachable without recording a deletion,
// simulating a channel removed on the platform side.
func (f *Fake) DropChannel(channelRef string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, channelRef)
}

func (f *Fake) SendPrompt(_ context.Context, channelRef string, prompt transport.Prompt) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, SentPrompt{ChannelRef: channelRef, Prompt: prompt})
	f.mu.Unlock()
	f.promptSignal <- struct{}{}
	return nil
}

func (f *Fake) AwaitNextMessage(ctx context.Context, channelRef string, predicate func(transport.Message) bool) (transport.Message, error) {
	return f.mailbox.Await(ctx, channelRef, predicate)
}

func (f *Fake) DiscardPending(_ context.Context, channelRef string) error {
	f.mailbox.Flush(channelRef)
	return nil
}

func (f *Fake) GrantRole(_ context.Context, userExternalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GrantErr != nil {
		return f.GrantErr
	}
	f.grants = append(f.grants, userExternalID)
	return nil
}

func (f *Fake) NotifyAdmins(_ context.Context, notification transport.AdminNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NotifyErr != nil {
		return f.NotifyErr
	}
	f.notifications = append(f.notifications, notification)
	return nil
}

// Say queues a text message from author on the channel.
func (f *Fake) Say(channelRef, author, content string, attachments ...transport.Attachment) {
	if err := f.mailbox.Deliver(channelRef, transport.Message{
		ID:          fmt.Sprintf("msg-%d", time.Now().UnixNano()),
		AuthorID:    author,
		Content:     content,
		Attachments: attachments,
		ReceivedAt:  time.Now(),
	}); err != nil {
		panic(err)
	}
}

// WaitForPrompts blocks until at least n prompts have been sent in total.
func (f *Fake) WaitForPrompts(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if len(f.Prompts()) >= n {
			return true
		}
		select {
		case <-f.promptSignal:
		case <-deadline:
			return false
		}
	}
}

func (f *Fake) Prompts() []SentPrompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentPrompt(nil), f.prompts...)
}

// LastPrompt returns the most recent prompt, or an empty one.
func (f *Fake) LastPrompt() SentPrompt {
	prompts := f.Prompts()
	if len(prompts) == 0 {
		return SentPrompt{}
	}
	return prompts[len(prompts)-1]
}

func (f *Fake) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *Fake) Grants() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.grants...)
}

func (f *Fake) Notifications() []transport.AdminNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.AdminNotification(nil), f.notifications...)
}
