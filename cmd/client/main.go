package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matst80/wsrelay/internal/obs"
	"github.com/matst80/wsrelay/internal/proto"
)

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		obs.Error("config", obs.Fields{"err": err.Error()})
		os.Exit(2)
	}
	if cfg.Debug {
		obs.EnableDebug(true)
	}
	obs.SetOutput(os.Stderr)
	os.Exit(run(cfg, os.Stdin, os.Stdout))
}

// run connects through the relay, sends each stdin line as one message and
// prints every message received. It returns the process exit code.
func run(cfg Config, in io.Reader, out io.Writer) int {
	target, err := cfg.relayURL()
	if err != nil {
		obs.Error("client.relay_url", obs.Fields{"err": err.Error()})
		return 2
	}
	d := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	conn, resp, err := d.Dial(target, nil)
	if err != nil {
		f := obs.Fields{"err": err.Error(), "relay": cfg.Relay}
		if resp != nil {
			f["status"] = resp.StatusCode
		}
		obs.Error("client.dial", f)
		return 1
	}
	defer conn.Close()
	obs.Info("client.connected", obs.Fields{"relay": cfg.Relay})

	done := make(chan int, 1)
	go func() { done <- readLoop(conn, out) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	lines := make(chan []byte)
	go scanLines(in, lines)

	kind := websocket.TextMessage
	if cfg.Binary {
		kind = websocket.BinaryMessage
	}
	for {
		select {
		case code := <-done:
			return code
		case <-sig:
			return closeAndWait(conn, done)
		case line, ok := <-lines:
			if !ok {
				return closeAndWait(conn, done)
			}
			if err := conn.WriteMessage(kind, line); err != nil {
				obs.Error("client.write", obs.Fields{"err": err.Error()})
				return <-done
			}
		}
	}
}

func scanLines(in io.Reader, lines chan<- []byte) {
	defer close(lines)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		lines <- append([]byte(nil), sc.Bytes()...)
	}
}

// readLoop prints messages until the connection ends and maps the close
// code to an exit code: 0 for an orderly close, 1 otherwise.
func readLoop(conn *websocket.Conn, out io.Writer) int {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				obs.Info("client.closed", obs.Fields{"code": ce.Code, "reason": proto.CloseText(ce.Code), "text": ce.Text})
				if ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway {
					return 0
				}
				return 1
			}
			obs.Error("client.read", obs.Fields{"err": err.Error()})
			return 1
		}
		if mt == websocket.BinaryMessage {
			fmt.Fprintf(out, "< [%d bytes] %s\n", len(data), hex.EncodeToString(data))
			continue
		}
		fmt.Fprintf(out, "< %s\n", data)
	}
}

func closeAndWait(conn *websocket.Conn, done <-chan int) int {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		return 1
	}
	select {
	case code := <-done:
		return code
	case <-time.After(3 * time.Second):
		return 1
	}
}
