package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// HandlerFunc answers one method. args is the decoded argument value.
type HandlerFunc func(ctx context.Context, args any) (any, error)

// MethodChannel dispatches named method calls to handlers.
type MethodChannel struct {
	name   string
	codec  MessageCodec
	logger *logrus.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewMethodChannel creates a method channel with the default codec.
func NewMethodChannel(name string, logger *logrus.Logger) *MethodChannel {
	if logger == nil {
		logger = logrus.New()
	}
	return &MethodChannel{
		name:     name,
		codec:    DefaultCodec,
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
	}
}

// Name returns the channel name.
func (c *MethodChannel) Name() string {
	return c.name
}

// Codec returns the channel codec.
func (c *MethodChannel) Codec() MessageCodec {
	return c.codec
}

// Handle registers fn for method, replacing any earlier handler.
func (c *MethodChannel) Handle(method string, fn HandlerFunc) {
	c.mu.Lock()
	c.handlers[method] = fn
	c.mu.Unlock()
}

// Methods returns the registered method names, sorted.
func (c *MethodChannel) Methods() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.handlers))
	for m := range c.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Invoke calls the handler for method. Any failure comes back as a
// *ChannelError.
func (c *MethodChannel) Invoke(ctx context.Context, method string, args any) (any, error) {
	c.mu.RLock()
	fn, ok := c.handlers[method]
	c.mu.RUnlock()

	log := c.logger.WithFields(logrus.Fields{
		"channel": c.name,
		"method":  method,
	})

	if !ok {
		log.Debug("Unknown method")
		return nil, NewChannelError(CodeNotImplemented, fmt.Sprintf("method %q is not implemented", method))
	}

	result, err := fn(ctx, args)
	if err != nil {
		ce := AsChannelError(err)
		log.WithField("code", ce.Code).WithError(err).Debug("Method failed")
		return nil, ce
	}
	log.Debug("Method succeeded")
	return result, nil
}

// Dispatch decodes a wire call, invokes it and returns the wire reply.
func (c *MethodChannel) Dispatch(ctx context.Context, call Call) Reply {
	args, err := c.codec.Decode(call.Args)
	if err != nil {
		return Reply{ID: call.ID, Error: NewChannelError(CodeInvalidArguments, err.Error())}
	}

	result, err := c.Invoke(ctx, call.Method, args)
	if err != nil {
		return Reply{ID: call.ID, Error: AsChannelError(err)}
	}
	return Reply{ID: call.ID, Result: result}
}
