package client

import "github.com/dmitrijs2005/bulletinkeeper/internal/transfer"

// Client is a closable command transport.
type Client interface {
	transfer.Caller
	Close() error
}
