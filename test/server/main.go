// A synthetic gateway for manual testing. It accepts WebSocket upgrades,
// logs every inbound frame, and broadcasts random-walk orderbook, trade and
// wallet payloads on a fixed schedule.
package main

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "Listen address")
	interval := flag.Duration("interval", time.Second, "Broadcast interval")
	dropAfter := flag.Duration("drop-after", 0, "Drop every connection after this duration (0=never)")
	flag.Parse()

	l, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal(err)
	}
	defer l.Close()
	log.Printf("gateway listening on ws://%s", *addr)

	for {
		conn, err := l.Accept()
		if err != nil {
			log.Fatal(err)
		}
		go serve(conn, *interval, *dropAfter)
	}
}

func serve(conn net.Conn, interval, dropAfter time.Duration) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	if err := upgrade(conn, reader); err != nil {
		log.Printf("%s upgrade failed: %v", conn.RemoteAddr(), err)
		return
	}
	log.Printf("%s connected", conn.RemoteAddr())

	session := &session{conn: conn}
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			payload, err := session.read(reader)
			if err != nil {
				if err != io.EOF {
					log.Printf("%s read: %v", conn.RemoteAddr(), err)
				}
				return
			}
			log.Printf("%s recv: %s", conn.RemoteAddr(), payload)
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if dropAfter > 0 {
		deadline = time.After(dropAfter)
	}

	price := 50_000.0
	for {
		select {
		case <-done:
			log.Printf("%s disconnected", conn.RemoteAddr())
			return
		case <-deadline:
			log.Printf("%s dropping on purpose", conn.RemoteAddr())
			return
		case <-ticker.C:
			price += (rand.Float64() - 0.5) * 50
			for _, payload := range marketFrames(price) {
				if err := session.writeText(payload); err != nil {
					log.Printf("%s write: %v", conn.RemoteAddr(), err)
					return
				}
			}
		}
	}
}

func marketFrames(price float64) []string {
	bid := price - 0.5
	ask := price + 0.5
	return []string{
		fmt.Sprintf(`{"type":"orderbook","payload":{"symbol":"BTCUSDT","bids":[["%.1f","%.3f"]],"asks":[["%.1f","%.3f"]]}}`,
			bid, rand.Float64()*2, ask, rand.Float64()*2),
		fmt.Sprintf(`{"type":"trade","payload":{"symbol":"BTCUSDT","price":"%.1f","qty":"%.3f","side":"buy","time":%d}}`,
			price, rand.Float64(), time.Now().UnixMilli()),
		fmt.Sprintf(`{"type":"wallet","payload":{"balances":{"USDT":"%.2f"}}}`, rand.Float64()*10_000),
	}
}

func upgrade(conn net.Conn, reader *bufio.Reader) error {
	req, err := http.ReadRequest(reader)
	if err != nil {
		return err
	}
	key := req.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return fmt.Errorf("missing Sec-WebSocket-Key")
	}

	h := sha1.New()
	io.WriteString(h, key)
	io.WriteString(h, "258EAFA5-E914-47DA-95CA-C5AB0DC85B11")
	accept := base64.StdEncoding.EncodeToString(h.Sum(nil))

	_, err = fmt.Fprintf(conn, "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: %s\r\n\r\n", accept)
	return err
}

const (
	opContinuation = 0x0
	opText         = 0x1
	opClose        = 0x8
	opPing         = 0x9
	opPong         = 0xA
)

type session struct {
	mu   sync.Mutex
	conn net.Conn
}

// read returns the next complete data message from the client, answering
// pings and close frames internally.
func (s *session) read(reader *bufio.Reader) ([]byte, error) {
	var message []byte
	for {
		var header [2]byte
		if _, err := io.ReadFull(reader, header[:]); err != nil {
			return nil, err
		}
		fin := header[0]&0x80 != 0
		opcode := header[0] & 0x0f
		masked := header[1]&0x80 != 0
		payloadLen := int(header[1] & 0x7f)

		if payloadLen == 126 {
			var ext [2]byte
			if _, err := io.ReadFull(reader, ext[:]); err != nil {
				return nil, err
			}
			payloadLen = int(binary.BigEndian.Uint16(ext[:]))
		} else if payloadLen == 127 {
			var ext [8]byte
			if _, err := io.ReadFull(reader, ext[:]); err != nil {
				return nil, err
			}
			payloadLen = int(binary.BigEndian.Uint64(ext[:]))
		}

		var maskKey [4]byte
		if masked {
			if _, err := io.ReadFull(reader, maskKey[:]); err != nil {
				return nil, err
			}
		}

		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(reader, payload); err != nil {
			return nil, err
		}
		if masked {
			for i := range payload {
				payload[i] ^= maskKey[i&3]
			}
		}

		switch opcode {
		case opPing:
			if err := s.write(opPong, payload); err != nil {
				return nil, err
			}
			continue
		case opPong:
			continue
		case opClose:
			_ = s.write(opClose, payload)
			return nil, io.EOF
		}

		message = append(message, payload...)
		if fin {
			return message, nil
		}
	}
}

func (s *session) writeText(payload string) error {
	return s.write(opText, []byte(payload))
}

func (s *session) write(opcode byte, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var header [10]byte
	header[0] = 0x80 | opcode
	n := 2
	if len(payload) <= 125 {
		header[1] = byte(len(payload))
	} else if len(payload) <= 0xffff {
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:4], uint16(len(payload)))
		n += 2
	} else {
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:10], uint64(len(payload)))
		n += 8
	}
	if _, err := s.conn.Write(header[:n]); err != nil {
		return err
	}
	_, err := s.conn.Write(payload)
	return err
}
