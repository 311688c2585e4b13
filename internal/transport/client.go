// Package transport is the duplex connection to the game server. Outbound
// intents are queued and written by one goroutine; inbound frames are decoded
// into typed events and handed to a sink in arrival order.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/skirmish-client/internal/logging"
	"github.com/DoyleJ11/skirmish-client/internal/types"
)

var ErrClosed = errors.New("transport closed")
var ErrBackpressure = errors.New("outbound queue full")
var ErrConnectionLost = errors.New("connection lost")

type Options struct {
	WriteTimeout time.Duration
	QueueSize    int
	Logger       *zap.Logger
}

type Client struct {
	conn         *websocket.Conn
	room         string
	out          chan []byte
	writeTimeout time.Duration
	log          *zap.Logger

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to the game server for room.
func Dial(ctx context.Context, url, room string, opts Options) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewClient(conn, room, opts), nil
}

func NewClient(conn *websocket.Conn, room string, opts Options) *Client {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &Client{
		conn:         conn,
		room:         room,
		out:          make(chan []byte, opts.QueueSize),
		writeTimeout: opts.WriteTimeout,
		log:          logging.OrNop(opts.Logger).Named("transport").With(zap.String("room", room)),
		closed:       make(chan struct{}),
	}
}

// Run pumps the connection until ctx ends, Close is called or the connection
// drops. A dropped connection is reported as ErrConnectionLost.
func (c *Client) Run(ctx context.Context, sink func(types.Inbound)) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			_, data, err := c.conn.Read(ctx)
			if err != nil {
				return c.readErr(ctx, err)
			}
			ev, err := types.Decode(data)
			if err != nil {
				c.log.Warn("dropping server frame", zap.Error(err))
				continue
			}
			sink(ev)
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-c.closed:
				return nil
			case frame := <-c.out:
				wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
				err := c.conn.Write(wctx, websocket.MessageText, frame)
				cancel()
				if err != nil {
					return fmt.Errorf("%w: write: %v", ErrConnectionLost, err)
				}
			}
		}
	})

	return g.Wait()
}

func (c *Client) readErr(ctx context.Context, err error) error {
	select {
	case <-c.closed:
		return nil
	default:
	}
	if ctx.Err() != nil {
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return fmt.Errorf("%w: server closed the room", ErrConnectionLost)
	}
	return fmt.Errorf("%w: %v", ErrConnectionLost, err)
}

func (c *Client) send(in types.Intent) error {
	frame, err := types.Encode(c.room, in)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.out <- frame:
		c.log.Debug("queued intent", zap.String("type", in.IntentType()))
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Client) MoveToken(m types.MoveToken) error       { return c.send(m) }
func (c *Client) DeclareSkill(d types.DeclareSkill) error { return c.send(d) }
func (c *Client) StartMatch(s types.StartMatch) error     { return c.send(s) }
func (c *Client) ExecuteMatch(e types.ExecuteMatch) error { return c.send(e) }
func (c *Client) CancelMatch(m types.CancelMatch) error   { return c.send(m) }
func (c *Client) NextTurn() error                         { return c.send(types.NextTurn{}) }

// Close ends the session's connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close(websocket.StatusNormalClosure, "leaving room")
	})
	return err
}
