package client

import (
	"context"
	"fmt"
	"time"

	"github.com/yeremiapane/tenant-realtime/models"
)

// Command is a local mutation that can be undone.
type Command interface {
	Apply()
	Rollback()
}

// MutationConflict is returned when the server rejected a mutation that
// had already been applied locally. Local state has been reverted.
type MutationConflict struct {
	Op  string
	Err error
}

func (e *MutationConflict) Error() string {
	return fmt.Sprintf("%s failed, local change reverted: %v", e.Op, e.Err)
}

func (e *MutationConflict) Unwrap() error { return e.Err }

// Execute applies cmd, then runs remote. If remote fails, cmd is rolled
// back and a MutationConflict is returned.
func Execute(ctx context.Context, op string, cmd Command, remote func(context.Context) error) error {
	cmd.Apply()
	if err := remote(ctx); err != nil {
		cmd.Rollback()
		return &MutationConflict{Op: op, Err: err}
	}
	return nil
}

// feedCommand mutates a Feed and remembers the prior value of every item
// it touched.
type feedCommand struct {
	feed   *Feed
	mutate func(items map[uint]models.Notification) map[uint]*models.Notification
	saved  map[uint]*models.Notification
}

func (c *feedCommand) Apply() {
	c.saved = c.feed.update(c.mutate)
}

func (c *feedCommand) Rollback() {
	saved := c.saved
	c.feed.update(func(items map[uint]models.Notification) map[uint]*models.Notification {
		for id, prev := range saved {
			if prev == nil {
				delete(items, id)
				continue
			}
			items[id] = *prev
		}
		return nil
	})
	c.saved = nil
}

// MarkReadCommand marks one notification read in f.
func MarkReadCommand(f *Feed, id uint) Command {
	return &feedCommand{feed: f, mutate: func(items map[uint]models.Notification) map[uint]*models.Notification {
		n, ok := items[id]
		if !ok || n.Status == models.NotificationRead {
			return nil
		}
		prev := n
		items[id] = markRead(n, time.Now().UTC())
		return map[uint]*models.Notification{id: &prev}
	}}
}

// MarkAllReadCommand marks every notification in f read.
func MarkAllReadCommand(f *Feed) Command {
	return &feedCommand{feed: f, mutate: func(items map[uint]models.Notification) map[uint]*models.Notification {
		saved := make(map[uint]*models.Notification)
		now := time.Now().UTC()
		for id, n := range items {
			if n.Status == models.NotificationRead {
				continue
			}
			prev := n
			saved[id] = &prev
			items[id] = markRead(n, now)
		}
		return saved
	}}
}

// DeleteAllCommand empties f.
func DeleteAllCommand(f *Feed) Command {
	return &feedCommand{feed: f, mutate: func(items map[uint]models.Notification) map[uint]*models.Notification {
		saved := make(map[uint]*models.Notification, len(items))
		for id, n := range items {
			prev := n
			saved[id] = &prev
			delete(items, id)
		}
		return saved
	}}
}
