package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/brightdigit/SundialKit-sub003/pkg/config"
	"github.com/brightdigit/SundialKit-sub003/pkg/observability"
	"github.com/brightdigit/SundialKit-sub003/pkg/protocol"
	"github.com/brightdigit/SundialKit-sub003/pkg/session"
	"github.com/brightdigit/SundialKit-sub003/pkg/transport"
	"github.com/brightdigit/SundialKit-sub003/pkg/transport/mem"
)

// chatMessage rides the dictionary transport.
type chatMessage struct {
	Text string
}

func (chatMessage) TypeKey() string { return "chat" }

func (m chatMessage) MarshalGeneric() (protocol.Generic, error) {
	return protocol.Generic{"text": m.Text}, nil
}

func decodeChat(g protocol.Generic) (protocol.Typed, error) {
	s, ok := g["text"].(string)
	if !ok {
		return nil, fmt.Errorf("missing text")
	}
	return chatMessage{Text: s}, nil
}

// blobMessage rides the binary transport when reachable.
type blobMessage struct {
	Data []byte
}

func (blobMessage) TypeKey() string { return "blob" }

func (m blobMessage) MarshalGeneric() (protocol.Generic, error) {
	return protocol.Generic{"data": m.Data}, nil
}

func (m blobMessage) MarshalPayload() ([]byte, error) { return m.Data, nil }

func decodeBlobBinary(data []byte) (protocol.Typed, error) {
	return blobMessage{Data: data}, nil
}

func newRegistry() *protocol.Registry {
	reg := protocol.NewRegistry()
	reg.Register("chat", decodeChat)
	reg.RegisterBinary("blob", decodeBlobBinary)
	return reg
}

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("peerlinkd started", zap.String("app", cfg.AppName))
	zap.L().Info("effective configuration", zap.Any("config", cfg))

	primary, companion, err := mem.NewPair(mem.Options{
		Latency:          time.Duration(cfg.Link.LatencyMS) * time.Millisecond,
		PairingSupported: cfg.Link.PairingSupported,
	})
	if err != nil {
		zap.L().Error("failed to build loopback link", zap.Error(err))
		return 1
	}

	a := session.New(primary, session.Config{Registry: newRegistry(), BinaryTypeKey: cfg.Link.BinaryTypeKey})
	defer a.Close()
	b := session.New(companion, session.Config{Registry: newRegistry(), BinaryTypeKey: cfg.Link.BinaryTypeKey})
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchEvents(ctx, "companion", b)

	// The companion echoes every interactive message.
	inbound := b.Received().Subscribe()
	go func() {
		for {
			ev, err := inbound.Next(ctx)
			if err != nil {
				return
			}
			if ev.Kind == transport.KindInteractive {
				ev.Reply(protocol.Generic{"echo": ev.Message.String(protocol.KeyType)})
			}
		}
	}()

	if err := a.Activate(); err != nil {
		zap.L().Error("activate primary", zap.Error(err))
		return 1
	}
	if err := b.Activate(); err != nil {
		zap.L().Error("activate companion", zap.Error(err))
		return 1
	}
	if !waitActivated(ctx, a) || !waitActivated(ctx, b) {
		zap.L().Error("activation did not complete")
		return 1
	}

	// While unreachable, a dictionary send lands on the queued channel.
	out := a.Send(ctx, chatMessage{Text: "queued while away"}, session.SendOptions{})
	zap.L().Info("send while unreachable", zap.Stringer("outcome", out.Kind), zap.Stringer("transport", out.Transport))

	// Reachability returns: the queued context flushes, and interactive
	// plus binary sends go straight through.
	primary.SetReachable(true)
	companion.SetReachable(true)
	waitReachable(ctx, a)

	out = a.Send(ctx, chatMessage{Text: "hello"}, session.SendOptions{})
	zap.L().Info("interactive send", zap.Stringer("outcome", out.Kind), zap.Any("reply", out.Reply))

	out = a.Send(ctx, blobMessage{Data: []byte{0xde, 0xad, 0xbe, 0xef}}, session.SendOptions{})
	zap.L().Info("binary send", zap.Stringer("outcome", out.Kind), zap.Binary("reply", out.ReplyData))

	// Binary refuses to queue: losing reachability fails it outright.
	primary.SetReachable(false)
	waitUnreachable(ctx, a)
	out = a.Send(ctx, blobMessage{Data: []byte{0x01}}, session.SendOptions{})
	zap.L().Info("binary send while unreachable", zap.Stringer("outcome", out.Kind), zap.Error(out.Err))

	zap.L().Info("node is running; press Ctrl+C to exit")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	return 0
}

// watchEvents logs the companion's view of the link and inbound traffic.
func watchEvents(ctx context.Context, name string, c *session.Controller) {
	reach := c.Reachability().Watch()
	go func() {
		for {
			r, err := reach.Next(ctx)
			if err != nil {
				return
			}
			zap.L().Info("reachability changed", zap.String("node", name), zap.Bool("reachable", r))
		}
	}()
	typed := c.TypedReceived().Subscribe()
	go func() {
		for {
			msg, err := typed.Next(ctx)
			if err != nil {
				return
			}
			zap.L().Info("typed message received", zap.String("node", name), zap.String("typeKey", msg.TypeKey()))
		}
	}()
	diags := c.DecodeDiagnostics().Subscribe()
	go func() {
		for {
			derr, err := diags.Next(ctx)
			if err != nil {
				return
			}
			zap.L().Warn("decode diagnostic", zap.String("node", name), zap.Error(derr))
		}
	}()
}

func waitActivated(ctx context.Context, c *session.Controller) bool {
	w := c.ActivationState().Watch()
	defer w.Cancel()
	deadline, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for {
		s, err := w.Next(deadline)
		if err != nil {
			return false
		}
		if s == transport.Activated {
			return true
		}
	}
}

func waitReachable(ctx context.Context, c *session.Controller) {
	w := c.Reachability().Watch()
	defer w.Cancel()
	deadline, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for {
		r, err := w.Next(deadline)
		if err != nil || r {
			return
		}
	}
}

func waitUnreachable(ctx context.Context, c *session.Controller) {
	w := c.Reachability().Watch()
	defer w.Cancel()
	deadline, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for {
		r, err := w.Next(deadline)
		if err != nil || !r {
			return
		}
	}
}
