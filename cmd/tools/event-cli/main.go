package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/annel0/landblock/internal/eventbus"
	"github.com/gorilla/websocket"
)

const defaultServerAddr = "localhost:8088"

func main() {
	var (
		serverAddr = flag.String("server", defaultServerAddr, "admin API address")
		command    = flag.String("cmd", "tail", "Command: tail, stats, landblocks")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		sources    = flag.String("landblocks", "", "Landblock filter, e.g. 0xA9B4 (comma-separated)")
		limit      = flag.Int("limit", 0, "Stop after N events (0 — follow forever)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch *command {
	case "tail":
		err = tailEvents(ctx, *serverAddr, TailOptions{
			EventTypes: parseStringList(*eventTypes),
			Sources:    parseStringList(*sources),
			Limit:      *limit,
		})
	case "stats":
		err = printJSON(ctx, *serverAddr, "/api/stats")
	case "landblocks":
		err = printJSON(ctx, *serverAddr, "/api/landblocks")
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, landblocks")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

type TailOptions struct {
	EventTypes []string
	Sources    []string
	Limit      int
}

// tailEvents выводит события шины в реальном времени
func tailEvents(ctx context.Context, addr string, opts TailOptions) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/events"}
	q := u.Query()
	if len(opts.EventTypes) > 0 {
		q.Set("types", strings.Join(opts.EventTypes, ","))
	}
	if len(opts.Sources) > 0 {
		q.Set("sources", strings.Join(opts.Sources, ","))
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	fmt.Printf("🎬 Tailing %s\n", u.String())
	count := 0
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return fmt.Errorf("stream error: %w", err)
		}

		var ev eventbus.Envelope
		if err := json.Unmarshal(msg, &ev); err != nil {
			fmt.Printf("⚠️  bad event: %v\n", err)
			continue
		}
		printEvent(&ev)
		count++
		if opts.Limit > 0 && count >= opts.Limit {
			break
		}
	}

	fmt.Printf("\n📊 Total events: %d\n", count)
	return nil
}

// printJSON выполняет GET и печатает ответ с отступами
func printJSON(ctx context.Context, addr, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return err
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
	return nil
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	fmt.Printf("[%s] %s [%s] %s\n",
		ev.Timestamp.Local().Format("15:04:05"),
		ev.Source,
		ev.EventType,
		ev.ID)

	if lb, err := eventbus.DecodeLandblockEvent(ev); err == nil {
		if lb.State != "" || lb.Objects > 0 {
			fmt.Printf("  State: %s Objects: %d\n", lb.State, lb.Objects)
		}
		if lb.Guid != 0 {
			fmt.Printf("  Guid: 0x%08X\n", lb.Guid)
		}
		if lb.Detail != "" {
			fmt.Printf("  %s\n", lb.Detail)
		}
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
