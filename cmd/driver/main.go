// Command driver is a small client for poking a running server: it can build a
// layout over the edit socket, toggle a lever on a timer, or tail observer ticks.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"circuitcraft.ai/internal/observerproto"
	"circuitcraft.ai/internal/protocol"
	"circuitcraft.ai/internal/sim/layout"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "edit socket url")
		obsURL     = flag.String("observer_url", "ws://localhost:8080/admin/v1/observer/ws", "observer socket url")
		mode       = flag.String("mode", "edit", "edit or watch")
		name       = flag.String("name", "driver", "actor name")
		token      = flag.String("token", "", "shared token for HELLO")
		layoutPath = flag.String("layout", "", "layout to place before toggling (edit mode)")
		togglePos  = flag.String("toggle", "", "lever position x,y,z to toggle (edit mode)")
		every      = flag.Duration("every", time.Second, "toggle interval")
		batch      = flag.Int("batch", 64, "edits per EDIT message")
		region     = flag.String("region", "", "observer region x0,y0,z0:x1,y1,z1 (watch mode)")
		changes    = flag.Bool("changes_only", true, "skip idle ticks (watch mode)")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var err error
	switch *mode {
	case "edit":
		err = runEdit(log, stop, *url, *name, *token, *layoutPath, *togglePos, *every, *batch)
	case "watch":
		err = runWatch(log, stop, *obsURL, *region, *changes)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func runEdit(log *logrus.Logger, stop <-chan os.Signal, url, name, token, layoutPath, togglePos string, every time.Duration, batch int) error {
	var placements []protocol.Edit
	if layoutPath != "" {
		l, err := layout.Load(layoutPath)
		if err != nil {
			return err
		}
		ps, err := l.Expand()
		if err != nil {
			return err
		}
		for _, p := range ps {
			placements = append(placements, p.Edit())
		}
	}
	var lever *[3]int
	if togglePos != "" {
		p, err := parsePos(togglePos)
		if err != nil {
			return err
		}
		lever = &p
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ActorName: name}
	if token != "" {
		hello.Auth = &protocol.HelloAuth{Token: token}
	}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		return fmt.Errorf("read WELCOME: %w", err)
	}
	log.WithFields(logrus.Fields{
		"actor": welcome.ActorID,
		"tick":  welcome.Tick,
		"logic": len(welcome.Logic),
	}).Info("welcome")

	go func() {
		for {
			var ack protocol.AckMsg
			if err := conn.ReadJSON(&ack); err != nil {
				return
			}
			entry := log.WithFields(logrus.Fields{"req": ack.AckFor, "tick": ack.Tick, "accepted": ack.Accepted})
			if ack.Code != "" {
				entry = entry.WithField("code", ack.Code)
			}
			for i, r := range ack.Results {
				if r.Code != "" {
					entry.WithField("edit", i).Warnf("%s: %s", r.Code, r.Message)
				}
			}
			entry.Debug("ack")
		}
	}()

	seq := 0
	for _, chunk := range chunkEdits(placements, batch) {
		seq++
		if err := conn.WriteJSON(editMsg(fmt.Sprintf("place_%d", seq), chunk)); err != nil {
			return err
		}
	}
	if len(placements) > 0 {
		log.WithField("edits", len(placements)).Info("layout sent")
	}
	if lever == nil {
		return nil
	}

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-t.C:
			seq++
			e := protocol.Edit{Op: protocol.OpToggle, Pos: *lever}
			if err := conn.WriteJSON(editMsg(fmt.Sprintf("toggle_%d", seq), []protocol.Edit{e})); err != nil {
				return err
			}
		}
	}
}

func runWatch(log *logrus.Logger, stop <-chan os.Signal, url, region string, changesOnly bool) error {
	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		ChangesOnly:     changesOnly,
	}
	if region != "" {
		r, err := parseRegion(region)
		if err != nil {
			return err
		}
		sub.Region = &r
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	go func() {
		<-stop
		_ = conn.Close()
	}()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		var tm observerproto.TickMsg
		if err := json.Unmarshal(msg, &tm); err != nil {
			continue
		}
		log.WithFields(logrus.Fields{
			"tick":   tm.Tick,
			"digest": tm.Digest,
			"full":   tm.Full,
			"passes": tm.Passes,
			"wires":  len(tm.Wires),
			"gates":  len(tm.Gates),
			"axles":  len(tm.Axles),
			"lamps":  len(tm.Lamps),
			"edits":  len(tm.Edits),
		}).Info("tick")
	}
}

func editMsg(reqID string, edits []protocol.Edit) protocol.EditMsg {
	return protocol.EditMsg{
		Type:            protocol.TypeEdit,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Edits:           edits,
	}
}

func chunkEdits(edits []protocol.Edit, n int) [][]protocol.Edit {
	if n <= 0 {
		n = 1
	}
	var out [][]protocol.Edit
	for len(edits) > 0 {
		k := min(n, len(edits))
		out = append(out, edits[:k])
		edits = edits[k:]
	}
	return out
}

func parsePos(s string) ([3]int, error) {
	var p [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return p, fmt.Errorf("bad position %q: want x,y,z", s)
	}
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return p, fmt.Errorf("bad position %q: %w", s, err)
		}
		p[i] = v
	}
	return p, nil
}

func parseRegion(s string) (observerproto.Region, error) {
	var r observerproto.Region
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return r, fmt.Errorf("bad region %q: want x0,y0,z0:x1,y1,z1", s)
	}
	var err error
	if r.Min, err = parsePos(lo); err != nil {
		return r, err
	}
	if r.Max, err = parsePos(hi); err != nil {
		return r, err
	}
	return r, nil
}
