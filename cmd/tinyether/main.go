// Command tinyether drives one RLPx channel, as either initiator or
// recipient, over a plain TCP socket. It exists to demonstrate the rlpx
// package end to end; packaging and CLI are explicitly out of scope for
// the core transport itself.
package main

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/tomzok/tiny-ether/config"
	tecrypto "github.com/tomzok/tiny-ether/crypto"
	"github.com/tomzok/tiny-ether/log"
	"github.com/tomzok/tiny-ether/p2p"
	"github.com/tomzok/tiny-ether/rlpx"
)

var version = "v0.1.0-dev"

func main() {
	app := &cli.App{
		Name:    "tinyether",
		Usage:   "drive one RLPx channel over TCP",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a YAML config file"},
			&cli.Uint64Flag{Name: "listen-port", Usage: "TCP port to listen on; also advertised in Hello (remote-addr carries its own port)"},
			&cli.StringFlag{Name: "node-key", Usage: "hex-encoded 32-byte static private key; random if omitted"},
			&cli.StringFlag{Name: "remote-addr", Usage: "host:port to dial; if empty, listen instead"},
			&cli.StringFlag{Name: "remote-pubkey", Usage: "hex-encoded 64-byte remote static public key (required when dialing)"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.StringFlag{Name: "log-format", Usage: "log output format: json, text, or color", Value: "json"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	switch c.String("log-format") {
	case "text":
		log.SetDefault(log.NewWithFormatter(os.Stderr, &log.TextFormatter{}, level))
	case "color":
		log.SetDefault(log.NewWithFormatter(os.Stderr, &log.ColorFormatter{}, level))
	case "json":
		log.SetDefault(log.NewWithFormatter(os.Stderr, &log.JSONFormatter{}, level))
	default:
		log.SetDefault(log.New(level))
	}

	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if lp := c.Uint64("listen-port"); lp != 0 {
		cfg.ListenPort = lp
	}
	if len(cfg.Capabilities) == 0 {
		cfg.Capabilities = []config.CapSpec{{Name: "tiny", Version: 1}}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	staticKey, err := loadOrGenerateKey(c.String("node-key"))
	if err != nil {
		return err
	}
	log.Info("node identity", "pubkey", hex.EncodeToString(tecrypto.FromECDSAPub(&staticKey.PublicKey)[1:]))

	reg := prometheus.NewRegistry()
	metrics := rlpx.NewMetrics(reg)

	caps := make([]rlpx.Cap, len(cfg.Capabilities))
	for i, cs := range cfg.Capabilities {
		caps[i] = rlpx.Cap{Name: cs.Name, Version: cs.Version}
	}
	channelCfg := rlpx.Config{
		ClientID:   cfg.ClientID,
		Caps:       caps,
		ListenPort: cfg.ListenPort,
		UseSnappy:  cfg.UseSnappy,
	}

	if addr := c.String("remote-addr"); addr != "" {
		remotePubHex := c.String("remote-pubkey")
		if remotePubHex == "" {
			return fmt.Errorf("remote-pubkey is required when dialing")
		}
		remotePubBytes, err := hex.DecodeString(remotePubHex)
		if err != nil || len(remotePubBytes) != 64 {
			return fmt.Errorf("remote-pubkey must be 64 hex-encoded bytes")
		}
		remotePub, err := tecrypto.UnmarshalPubkey(append([]byte{0x04}, remotePubBytes...))
		if err != nil {
			return fmt.Errorf("invalid remote-pubkey: %w", err)
		}
		return dial(addr, channelCfg, staticKey, remotePub, metrics)
	}

	return listen(int(cfg.ListenPort), channelCfg, staticKey, metrics)
}

func loadOrGenerateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return tecrypto.GenerateKey()
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("node-key: %w", err)
	}
	return tecrypto.ImportECDSA(raw)
}

func dial(addr string, cfg rlpx.Config, staticKey *ecdsa.PrivateKey, remotePub *ecdsa.PublicKey, metrics *rlpx.Metrics) error {
	dialer := &p2p.TCPDialer{}
	conn, err := dialer.Dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := rlpx.NewChannel(cfg, staticKey, func(b []byte) error { return conn.WriteChunk(b) }, metrics)
	if err != nil {
		return err
	}
	if err := ch.Connect(remotePub); err != nil {
		return err
	}
	return driveChannel(ch, conn)
}

func listen(port int, cfg rlpx.Config, staticKey *ecdsa.PrivateKey, metrics *rlpx.Metrics) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	listener := p2p.NewTCPListener(ln)
	log.Info("listening", "port", port)

	conn, err := listener.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := rlpx.NewChannel(cfg, staticKey, func(b []byte) error { return conn.WriteChunk(b) }, metrics)
	if err != nil {
		return err
	}
	if err := ch.Accept(); err != nil {
		return err
	}
	return driveChannel(ch, conn)
}

func driveChannel(ch *rlpx.Channel, conn p2p.ConnTransport) error {
	for {
		chunk, err := conn.ReadChunk()
		if err != nil {
			return err
		}
		events, err := ch.Feed(chunk)
		for _, ev := range events {
			logEvent(ev)
		}
		if err != nil {
			return err
		}
		if ch.State() == rlpx.StateClosed {
			return nil
		}
	}
}

func logEvent(ev rlpx.Event) {
	switch ev.Kind {
	case rlpx.EventHello:
		log.Info("peer hello", "caps", ev.HelloCaps, "listen_port", ev.HelloListenPort)
	case rlpx.EventDisconnect:
		log.Info("peer disconnected", "reason", ev.DisconnectReason.String())
	case rlpx.EventPing:
		log.Debug("received ping")
	case rlpx.EventPong:
		log.Debug("received pong")
	case rlpx.EventError:
		log.Error("channel error", "kind", ev.ErrorKind.String(), "error", ev.Err)
	case rlpx.EventSubprotocolMessage:
		log.Debug("subprotocol message", "protocol_id", ev.ProtocolID, "code", ev.MsgCode)
	}
}
