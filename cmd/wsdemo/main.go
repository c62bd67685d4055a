package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dentalink/consult/internal/auth"
)

// wsdemo connects to a running server, optionally streams an audio file as
// a recording, then submits each line typed on stdin and prints the events.
func main() {
	host := flag.String("host", "localhost:8080", "server host:port")
	conversationID := flag.String("conversation", fmt.Sprintf("demo-%d", time.Now().Unix()), "conversation id")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "JWT secret used to sign a clinician token; empty connects without a token")
	clinician := flag.String("clinician", "wsdemo", "clinician id placed in the token")
	audioPath := flag.String("audio", "", "raw LINEAR16 audio file to stream as a recording")
	chunkSize := flag.Int("chunk", 3200, "audio chunk size in bytes")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	q := u.Query()
	q.Set("conversation_id", *conversationID)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	if *secret != "" {
		issuer, err := auth.NewIssuer(*secret, time.Hour)
		if err != nil {
			log.Fatalf("Failed to create issuer: %v", err)
		}
		token, _, err := issuer.GenerateClinicianToken(*clinician)
		if err != nil {
			log.Fatalf("Failed to generate clinician token: %v", err)
		}
		headers.Add("Authorization", "Bearer "+token)
	}

	log.Printf("connecting to %s", u.String())
	c, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go readEvents(c, done)

	if *audioPath != "" {
		if err := streamAudio(c, *audioPath, *chunkSize); err != nil {
			log.Printf("Audio streaming failed: %v", err)
		}
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	fmt.Println("Type a message and press enter. /transcript submits the transcript, Ctrl+C quits.")
	for {
		select {
		case <-done:
			return
		case line, ok := <-lines:
			if !ok {
				closeConnection(c, done)
				return
			}
			if err := sendLine(c, line); err != nil {
				log.Printf("write: %v", err)
				return
			}
		case <-interrupt:
			log.Println("interrupt")
			closeConnection(c, done)
			return
		}
	}
}

func sendLine(c *websocket.Conn, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case line == "/transcript":
		return c.WriteJSON(map[string]interface{}{"type": "submit_transcript"})
	case line == "/ping":
		return c.WriteJSON(map[string]interface{}{"type": "ping", "data": time.Now().Format(time.RFC3339)})
	default:
		return c.WriteJSON(map[string]interface{}{"type": "submit_text", "text": line})
	}
}

func streamAudio(c *websocket.Conn, path string, chunkSize int) error {
	audio, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read audio file: %w", err)
	}
	log.Printf("📁 Read audio file: %s (%d bytes)", path, len(audio))

	if err := c.WriteJSON(map[string]interface{}{"type": "recording_start"}); err != nil {
		return err
	}

	for start := 0; start < len(audio); start += chunkSize {
		end := start + chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		if err := c.WriteMessage(websocket.BinaryMessage, audio[start:end]); err != nil {
			return fmt.Errorf("send audio chunk: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := c.WriteJSON(map[string]interface{}{"type": "recording_stop"}); err != nil {
		return err
	}
	log.Printf("📤 Sent %d bytes of audio", len(audio))
	return nil
}

func readEvents(c *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			log.Println("read:", err)
			return
		}
		printEvent(data)
	}
}

func printEvent(data []byte) {
	var ev map[string]interface{}
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("📥 %s", data)
		return
	}

	switch ev["type"] {
	case "partial":
		fmt.Printf("\r… %v", ev["text"])
	case "message":
		msg, _ := ev["message"].(map[string]interface{})
		meta, _ := msg["meta"].(map[string]interface{})
		if meta["status"] == "loading" {
			fmt.Printf("\r%v> %v", msg["role"], msg["content"])
			return
		}
		fmt.Printf("\r%v> %v\n", msg["role"], msg["content"])
	case "segment":
		seg, _ := ev["segment"].(map[string]interface{})
		fmt.Printf("\n[segment %v %v] %v\n", seg["seq"], seg["status"], seg["text"])
	case "triage":
		tc, _ := ev["triage"].(map[string]interface{})
		fmt.Printf("[triage] %v round %v\n", tc["state"], tc["round"])
	case "error":
		fmt.Printf("[error] %v: %v\n", ev["error_code"], ev["message"])
	default:
		fmt.Printf("[%v]\n", ev["type"])
	}
}

// closeConnection sends a close message and waits (with timeout) for the
// server to close the connection.
func closeConnection(c *websocket.Conn, done chan struct{}) {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		log.Println("write close:", err)
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
