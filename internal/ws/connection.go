package ws

import (
	"context"
	"errors"
	"sync"

	"lichka/internal/models"
	"lichka/internal/presence"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type eventHub interface {
	Join(userID string) presence.Handle
	Leave(userID string, handle presence.Handle)
	Dispatch(ctx context.Context, userID string, session presence.Handle, ev models.ClientEvent)
}

// Connection owns one authenticated duplex session: a reader pump
// feeding client events to the hub and a main loop writing server
// events out. Its lifetime starts after authentication succeeded and
// ends with Leave, so no session state ever exists for a rejected peer.
type Connection struct {
	ws         wsConnection
	hub        eventHub
	userID     string
	fromClient chan models.ClientEvent
	fromServer presence.Handle
	errorCh    chan error
}

func NewConnection(hub eventHub, ws wsConnection, userID string) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		userID:     userID,
		fromClient: make(chan models.ClientEvent),
		fromServer: hub.Join(userID),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Leave(c.userID, c.fromServer)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpEvents(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpEvents(ctx context.Context) error {
	for {
		var ev models.ClientEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			return err
		}
		select {
		case c.fromClient <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case ev := <-c.fromClient:
			c.hub.Dispatch(ctx, c.userID, c.fromServer, ev)
		case ev := <-c.fromServer:
			if err := c.ws.WriteJSON(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
