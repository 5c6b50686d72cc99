// Package notify turns CRM deadlines into notifications and delivers them.
package notify

import (
	"context"
	"errors"
)

// ErrPushUnsupported is returned by every push send. Web Push encryption is not implemented.
var ErrPushUnsupported = errors.New("push delivery is not supported")

const (
	ChannelEmail = "email"
	ChannelPush  = "push"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Channel delivers one message to one recipient.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

type PushChannel struct{}

func (PushChannel) Name() string { return ChannelPush }

func (PushChannel) Send(context.Context, Message) error { return ErrPushUnsupported }
