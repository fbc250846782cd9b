// Command meshdemo spins up two in-process mesh nodes connected over a
// real loopback WebSocket, the stand-in cmd/meshnode also runs over for the
// out-of-scope BLE radio, and sends one message between them so the
// handshake, encryption and delivery path can be watched end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/meshline/meshcore/internal/config"
	"github.com/meshline/meshcore/internal/node"
	"github.com/meshline/meshcore/internal/queue"
	"github.com/meshline/meshcore/internal/transport"
)

func main() {
	dir := flag.String("dir", "", "scratch directory for identity/db files (defaults to a temp dir)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	scratch := *dir
	if scratch == "" {
		d, err := os.MkdirTemp("", "meshdemo-*")
		if err != nil {
			log.Error("create scratch dir failed", "err", err)
			os.Exit(1)
		}
		scratch = d
		defer os.RemoveAll(scratch)
	}

	aAddr := "127.0.0.1:19931"

	aCfg := config.DefaultNodeConfig()
	aCfg.IdentityPath = scratch + "/a.key"
	aCfg.DatabasePath = "sqlite://" + scratch + "/a.db"
	aCfg.AdminAPI.Enabled = false

	bCfg := config.DefaultNodeConfig()
	bCfg.IdentityPath = scratch + "/b.key"
	bCfg.DatabasePath = "sqlite://" + scratch + "/b.db"
	bCfg.AdminAPI.Enabled = false

	aTransport := transport.NewWSTransport(log.With("node", "a"))
	bTransport := transport.NewWSTransport(log.With("node", "b"))

	a, err := node.New(aCfg, aTransport, log.With("node", "a"))
	if err != nil {
		log.Error("create node a failed", "err", err)
		os.Exit(1)
	}
	b, err := node.New(bCfg, bTransport, log.With("node", "b"))
	if err != nil {
		log.Error("create node b failed", "err", err)
		os.Exit(1)
	}

	if err := a.Start(); err != nil {
		log.Error("start node a failed", "err", err)
		os.Exit(1)
	}
	if err := b.Start(); err != nil {
		log.Error("start node b failed", "err", err)
		os.Exit(1)
	}
	defer a.Stop()
	defer b.Stop()

	go func() {
		if err := aTransport.ListenAndServe(aAddr); err != nil {
			log.Warn("node a ws server stopped", "err", err)
		}
	}()
	time.Sleep(200 * time.Millisecond)

	if err := bTransport.Dial("ws://"+aAddr+"/ws", transport.PeerID(b.Identity().PublicKeyHex())); err != nil {
		log.Error("dial node a from node b failed", "err", err)
		os.Exit(1)
	}

	time.Sleep(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	messageID, err := b.SendMessage(ctx, "demo-chat", a.Identity().PublicKeyHex(), []byte("hello from node b"), queue.PriorityNormal)
	if err != nil {
		log.Error("send message failed", "err", err)
		os.Exit(1)
	}
	fmt.Printf("sent message %s from %s to %s\n", messageID, b.Identity().Address, a.Identity().Address)

	time.Sleep(1 * time.Second)
	aTransport.Close()
	bTransport.Close()
}
