package ws

import "github.com/Wyydra/yacall/internal/core/domain"

// Client is one connected endpoint as the hub sees it.
type Client interface {
	ID() domain.UserID
	SendSignal(signal domain.Signal) error
	SendError(msg string) error
	Close() error
}
