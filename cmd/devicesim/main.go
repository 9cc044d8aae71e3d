// Command devicesim plays the part of the capture device: it checks the
// assistant's gRPC health, then connects to the device websocket, says the
// wake word, streams a short silent utterance and prints what comes back.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	ws "nhooyr.io/websocket"

	"parley/assistant/internal/workerws"
)

func main() {
	grpcAddr := flag.String("grpc", "localhost:9090", "assistant gRPC health address")
	wsURL := flag.String("ws", "ws://localhost:8080/ws/device", "device websocket URL")
	deviceID := flag.String("device", "default", "device id")
	token := flag.String("token", "", "device bearer token")
	frames := flag.Int("frames", 50, "number of 20ms PCM frames to stream")
	timeout := flag.Duration("timeout", 30*time.Second, "total run time")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Step 1: health
	conn, err := grpc.NewClient(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial assistant: %v", err)
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		log.Fatalf("health check: %v", err)
	}
	fmt.Printf("[health] %s\n", resp.GetStatus())

	// Step 2: connect as the device
	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("ws url: %v", err)
	}
	q := u.Query()
	q.Set("device_id", *deviceID)
	u.RawQuery = q.Encode()
	opts := &ws.DialOptions{HTTPHeader: http.Header{}}
	if *token != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+*token)
	}
	c, _, err := ws.Dial(ctx, u.String(), opts)
	if err != nil {
		log.Fatalf("dial device ws: %v", err)
	}
	defer c.Close(ws.StatusNormalClosure, "bye")
	c.SetReadLimit(1 << 20)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var audio int
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				fmt.Printf("\n[ws] closed after %d audio bytes: %v\n", audio, err)
				return
			}
			if typ == ws.MessageBinary {
				audio += len(data)
				fmt.Print(".")
				continue
			}
			var m workerws.Message
			if err := json.Unmarshal(data, &m); err != nil {
				fmt.Printf("\n[ws] bad message: %v\n", err)
				continue
			}
			fmt.Printf("\n[cmd] %s id=%s\n", m.Type, m.CommandID)
			if m.Type == "drain_playback" {
				send(ctx, c, workerws.Message{Type: "cmd_ack", CommandID: m.CommandID})
			}
		}
	}()

	var seq int64
	next := func(typ string, payload map[string]any) {
		seq++
		fmt.Printf("[%d] %s\n", seq, typ)
		send(ctx, c, workerws.Message{Type: typ, Seq: seq, Payload: payload})
	}

	next("hello", map[string]any{"sample_rate": 24000})
	next("keyword_detected", map[string]any{"keyword": "hey_parley"})
	time.Sleep(200 * time.Millisecond)
	next("speech_start", nil)

	// 20ms of 24kHz mono pcm16
	frame := make([]byte, 960)
	t := time.NewTicker(20 * time.Millisecond)
	for i := 0; i < *frames; i++ {
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if err := c.Write(ctx, ws.MessageBinary, frame); err != nil {
			log.Fatalf("write frame: %v", err)
		}
	}
	t.Stop()
	next("speech_end", nil)

	select {
	case <-done:
	case <-ctx.Done():
		fmt.Println("\n[done] timeout reached")
	}
}

func send(ctx context.Context, c *ws.Conn, m workerws.Message) {
	m.TsMs = time.Now().UnixMilli()
	b, _ := json.Marshal(m)
	if err := c.Write(ctx, ws.MessageText, b); err != nil {
		log.Printf("send %s: %v", m.Type, err)
	}
}
