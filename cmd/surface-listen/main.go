package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// envelope is one message from the surfaced event stream.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type buttonData struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	At    uint64 `json:"at_us"`
}

type encoderData struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	Delta int    `json:"delta"`
	Raw   int    `json:"raw"`
	At    uint64 `json:"at_us"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:8088/events", "surfaced websocket URL")
		raw   = flag.Bool("raw", false, "Print messages as received")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Pings and the close frame are written from different goroutines.
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if *raw {
				fmt.Println(string(message))
				continue
			}
			handleTextMessage(message)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleTextMessage prints one event in a compact form.
func handleTextMessage(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	switch env.Type {
	case "button_pressed", "button_released":
		var b buttonData
		if err := json.Unmarshal(env.Data, &b); err != nil {
			break
		}
		state := "PRESSED"
		if env.Type == "button_released" {
			state = "released"
		}
		fmt.Printf("[BUTTON]  %-16s %-8s at=%dus\n", b.Name, state, b.At)
		return

	case "encoder_turned":
		var e encoderData
		if err := json.Unmarshal(env.Data, &e); err != nil {
			break
		}
		fmt.Printf("[ENCODER] %-16s delta=%+d raw=%+d at=%dus\n", e.Name, e.Delta, e.Raw, e.At)
		return
	}

	var pretty any
	if err := json.Unmarshal(env.Data, &pretty); err != nil {
		fmt.Printf("[%s]\n", env.Type)
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Printf("[%s]\n%s\n\n", env.Type, string(out))
}
