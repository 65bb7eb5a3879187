// Command feedwatch follows the live room feed and prints one line per event.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"

	"liferoom.ai/internal/model"
	"liferoom.ai/internal/protocol"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/api/feed/ws", "feed ws url")
		agents = flag.String("agents", "", "comma-separated agent names to follow (empty follows everyone)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[feed] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMsg(*agents)); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if line, ok := describe(msg); ok {
			logger.Print(line)
		}
	}
}

func subscribeMsg(agents string) protocol.SubscribeMsg {
	sub := protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version}
	for _, a := range strings.Split(agents, ",") {
		if a = strings.TrimSpace(a); a != "" {
			sub.Agents = append(sub.Agents, a)
		}
	}
	return sub
}

// describe renders one feed message. Unknown or malformed messages are skipped.
func describe(msg []byte) (string, bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return "", false
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if json.Unmarshal(msg, &w) != nil {
			return "", false
		}
		return fmt.Sprintf("WELCOME session=%s agents=%d life_days=%d", w.SessionID, w.Agents, w.LifeDays), true

	case protocol.TypeError:
		var e protocol.ErrorMsg
		if json.Unmarshal(msg, &e) != nil {
			return "", false
		}
		return fmt.Sprintf("ERROR %s: %s", e.Code, e.Message), true

	case protocol.TypeLifeDay, protocol.TypeIntersection, protocol.TypeAgent:
		var ev protocol.EventMsg
		if json.Unmarshal(msg, &ev) != nil {
			return "", false
		}
		return describeEvent(ev)
	}
	return "", false
}

func describeEvent(ev protocol.EventMsg) (string, bool) {
	switch ev.Type {
	case protocol.TypeLifeDay:
		var d model.LifeDay
		if json.Unmarshal(ev.Data, &d) != nil {
			return "", false
		}
		return fmt.Sprintf("#%d LIFEDAY %s round=%d %s age=%d in %s: %q",
			ev.Seq, d.AgentName, d.RoundNumber, model.DateString(d.FictionalDate), d.FictionalAge, d.Location.City, d.ThoughtBubble), true
	case protocol.TypeIntersection:
		var x model.Intersection
		if json.Unmarshal(ev.Data, &x) != nil {
			return "", false
		}
		return fmt.Sprintf("#%d INTERSECTION %s <-> %s (%s) at %s", ev.Seq, x.InitiatingAgent, x.OtherAgent, x.Type, x.Location), true
	default:
		var a model.Agent
		if json.Unmarshal(ev.Data, &a) != nil {
			return "", false
		}
		return fmt.Sprintf("#%d AGENT %s joined", ev.Seq, a.Name), true
	}
}
