package wsclient

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

var (
	errHandshakeFailed = errors.New("wsclient: handshake failed")
	errProtocol        = errors.New("wsclient: protocol error")
	errMessageTooLarge = errors.New("wsclient: message exceeds limit")
)

const (
	DefaultDialTimeout = 10 * time.Second
	DefaultKeepAlive   = 30 * time.Second

	defaultMaxMessageSize = 16 << 20
)

const maxPayloadLen = int(^uint32(0) >> 1)

type dialer struct {
	addr        string
	host        string
	path        string
	tlsConfig   *tls.Config
	dialTimeout time.Duration
	keepAlive   time.Duration
	maxMessage  int
}

// NewDialer builds the default Dialer for a ws:// or wss:// url.
func NewDialer(rawURL string) (Dialer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	switch u.Scheme {
	case "ws":
	case "wss":
		tlsConfig = &tls.Config{
			ServerName: u.Hostname(),
			MinVersion: tls.VersionTLS12,
		}
	default:
		return nil, ErrBadScheme
	}

	host := u.Hostname()
	if host == "" {
		return nil, ErrEmptyURL
	}
	port := u.Port()
	if port == "" {
		if tlsConfig != nil {
			port = "443"
		} else {
			port = "80"
		}
	}
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}

	return &dialer{
		addr:        net.JoinHostPort(host, port),
		host:        host,
		path:        path,
		tlsConfig:   tlsConfig,
		dialTimeout: DefaultDialTimeout,
		keepAlive:   DefaultKeepAlive,
		maxMessage:  defaultMaxMessageSize,
	}, nil
}

func (d *dialer) Dial(ctx context.Context) (Conn, error) {
	netDialer := net.Dialer{
		Timeout:   d.dialTimeout,
		KeepAlive: d.keepAlive,
	}
	rawConn, err := netDialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := rawConn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(d.keepAlive)
	}

	conn := rawConn
	if d.tlsConfig != nil {
		tlsConn := tls.Client(rawConn, d.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = rawConn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	wsConn, err := dialWebSocket(ctx, conn, d.host, d.path, d.maxMessage)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return wsConn, nil
}

type wsConn struct {
	conn       net.Conn
	reader     *bufio.Reader
	mask       uint32
	writeMu    sync.Mutex
	maxMessage int
}

func dialWebSocket(ctx context.Context, conn net.Conn, host, path string, maxMessage int) (*wsConn, error) {
	key, err := newWebSocketKey()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+host+path, nil)
	if err != nil {
		return nil, err
	}
	req.Host = host
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", key)
	req.Header.Set("Sec-WebSocket-Version", "13")

	if err := req.Write(conn); err != nil {
		return nil, err
	}

	reader := bufio.NewReaderSize(conn, 32<<10)
	resp, err := http.ReadResponse(reader, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return nil, errHandshakeFailed
	}
	if !headerContainsToken(resp.Header.Get("Upgrade"), "websocket") {
		return nil, errHandshakeFailed
	}
	if !headerContainsToken(resp.Header.Get("Connection"), "upgrade") {
		return nil, errHandshakeFailed
	}
	if !validateAcceptKey(key, resp.Header.Get("Sec-WebSocket-Accept")) {
		return nil, errHandshakeFailed
	}

	return &wsConn{
		conn:       conn,
		reader:     reader,
		mask:       seedMask(),
		maxMessage: maxMessage,
	}, nil
}

// ReadMessage assembles one complete data message, transparently answering
// pings and translating a peer close frame into io.EOF.
func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, MessageType, error) {
	var (
		msg     []byte
		msgType MessageType
	)
	for {
		fin, opcode, masked, maskKey, payloadLen, err := c.readHeader(ctx)
		if err != nil {
			return nil, 0, err
		}

		if opcode == opPing || opcode == opPong || opcode == opClose {
			var ctrl [125]byte
			if payloadLen > len(ctrl) {
				return nil, 0, errProtocol
			}
			if err := c.readPayload(ctx, ctrl[:payloadLen], masked, maskKey); err != nil {
				return nil, 0, err
			}
			if opcode == opPing {
				_ = c.writeFrame(context.Background(), opPong, ctrl[:payloadLen])
			}
			if opcode == opClose {
				return nil, 0, io.EOF
			}
			continue
		}

		if len(msg)+payloadLen > c.maxMessage {
			return nil, 0, errMessageTooLarge
		}
		start := len(msg)
		msg = append(msg, make([]byte, payloadLen)...)
		if err := c.readPayload(ctx, msg[start:], masked, maskKey); err != nil {
			return nil, 0, err
		}

		if opcode != opContinuation {
			if msgType != 0 {
				return nil, 0, errProtocol
			}
			msgType = opcodeToMessageType(opcode)
			if msgType == 0 {
				return nil, 0, errProtocol
			}
		} else if msgType == 0 {
			return nil, 0, errProtocol
		}

		if fin {
			return msg, msgType, nil
		}
	}
}

func (c *wsConn) WriteMessage(ctx context.Context, msgType MessageType, payload []byte) error {
	opcode := messageTypeToOpcode(msgType)
	if opcode == 0 {
		return errProtocol
	}
	return c.writeFrame(ctx, opcode, payload)
}

func (c *wsConn) Close(code CloseCode, reason string) error {
	payload := makeClosePayload(code, reason)
	_ = c.writeFrame(context.Background(), opClose, payload)
	return c.conn.Close()
}

func (c *wsConn) readHeader(ctx context.Context) (fin bool, opcode byte, masked bool, maskKey [4]byte, payloadLen int, err error) {
	if err = c.setReadDeadline(ctx); err != nil {
		return
	}
	var header [2]byte
	if _, err = io.ReadFull(c.reader, header[:]); err != nil {
		return
	}
	fin = header[0]&0x80 != 0
	if header[0]&0x70 != 0 {
		err = errProtocol
		return
	}
	opcode = header[0] & 0x0f
	masked = header[1]&0x80 != 0
	payloadLen = int(header[1] & 0x7f)
	if payloadLen == 126 {
		var ext [2]byte
		if _, err = io.ReadFull(c.reader, ext[:]); err != nil {
			return
		}
		payloadLen = int(binary.BigEndian.Uint16(ext[:]))
	} else if payloadLen == 127 {
		var ext [8]byte
		if _, err = io.ReadFull(c.reader, ext[:]); err != nil {
			return
		}
		if ext[0]&0x80 != 0 {
			err = errProtocol
			return
		}
		length64 := binary.BigEndian.Uint64(ext[:])
		if length64 > uint64(maxPayloadLen) {
			err = errMessageTooLarge
			return
		}
		payloadLen = int(length64)
	}

	if masked {
		if _, err = io.ReadFull(c.reader, maskKey[:]); err != nil {
			return
		}
	}
	if opcode == opPing || opcode == opPong || opcode == opClose {
		if !fin || payloadLen > 125 {
			err = errProtocol
			return
		}
	}
	return
}

func (c *wsConn) readPayload(ctx context.Context, dst []byte, masked bool, maskKey [4]byte) error {
	if err := c.setReadDeadline(ctx); err != nil {
		return err
	}
	if _, err := io.ReadFull(c.reader, dst); err != nil {
		return err
	}
	if masked {
		for i := 0; i < len(dst); i++ {
			dst[i] ^= maskKey[i&3]
		}
	}
	return nil
}

// writeFrame masks the payload in place before writing, per the client
// masking requirement of RFC 6455.
func (c *wsConn) writeFrame(ctx context.Context, opcode byte, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.setWriteDeadline(ctx); err != nil {
		return err
	}
	var header [14]byte
	header[0] = 0x80 | opcode
	mask := c.nextMask()
	maskKey := [4]byte{byte(mask), byte(mask >> 8), byte(mask >> 16), byte(mask >> 24)}

	n := buildLengthHeader(header[:], len(payload), true, maskKey)
	if _, err := c.conn.Write(header[:n]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	for i := 0; i < len(payload); i++ {
		payload[i] ^= maskKey[i&3]
	}
	if _, err := c.conn.Write(payload); err != nil {
		return err
	}
	return nil
}

func (c *wsConn) setReadDeadline(ctx context.Context) error {
	return setDeadline(ctx, c.conn.SetReadDeadline)
}

func (c *wsConn) setWriteDeadline(ctx context.Context) error {
	return setDeadline(ctx, c.conn.SetWriteDeadline)
}

func (c *wsConn) nextMask() uint32 {
	c.mask ^= c.mask << 13
	c.mask ^= c.mask >> 17
	c.mask ^= c.mask << 5
	if c.mask == 0 {
		c.mask = 0x9e3779b9
	}
	return c.mask
}

func seedMask() uint32 {
	n := uint32(time.Now().UnixNano())
	if n == 0 {
		return 0x9e3779b9
	}
	return n
}

const (
	opContinuation = 0x0
	opText         = 0x1
	opBinary       = 0x2
	opClose        = 0x8
	opPing         = 0x9
	opPong         = 0xA
)

func messageTypeToOpcode(msgType MessageType) byte {
	switch msgType {
	case MessageText:
		return opText
	case MessageBinary:
		return opBinary
	case MessagePing:
		return opPing
	case MessagePong:
		return opPong
	case MessageClose:
		return opClose
	default:
		return 0
	}
}

func opcodeToMessageType(opcode byte) MessageType {
	switch opcode {
	case opText:
		return MessageText
	case opBinary:
		return MessageBinary
	default:
		return 0
	}
}

func buildLengthHeader(dst []byte, payloadLen int, masked bool, maskKey [4]byte) int {
	n := 2
	if payloadLen <= 125 {
		dst[1] = byte(payloadLen)
	} else if payloadLen <= 0xffff {
		dst[1] = 126
		binary.BigEndian.PutUint16(dst[2:4], uint16(payloadLen))
		n += 2
	} else {
		dst[1] = 127
		binary.BigEndian.PutUint64(dst[2:10], uint64(payloadLen))
		n += 8
	}
	if masked {
		dst[1] |= 0x80
		copy(dst[n:n+4], maskKey[:])
		n += 4
	}
	return n
}

func setDeadline(ctx context.Context, set func(time.Time) error) error {
	if ctx == nil {
		return set(time.Time{})
	}
	if deadline, ok := ctx.Deadline(); ok {
		return set(deadline)
	}
	if ctx.Err() != nil {
		return set(time.Now())
	}
	return set(time.Time{})
}

func newWebSocketKey() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf[:]), nil
}

func validateAcceptKey(key, accept string) bool {
	h := sha1.New()
	io.WriteString(h, key)
	io.WriteString(h, "258EAFA5-E914-47DA-95CA-C5AB0DC85B11")
	sum := h.Sum(nil)
	return accept == base64.StdEncoding.EncodeToString(sum)
}

// headerContainsToken reports whether a comma-separated header value
// contains token. token must be lower case.
func headerContainsToken(headerValue, token string) bool {
	if headerValue == "" {
		return false
	}
	start := 0
	for i := 0; i <= len(headerValue); i++ {
		if i == len(headerValue) || headerValue[i] == ',' {
			part := headerValue[start:i]
			if trimLowerEqual(part, token) {
				return true
			}
			start = i + 1
		}
	}
	return false
}

func trimLowerEqual(value string, tokenLower string) bool {
	i := 0
	j := len(value) - 1
	for i <= j && isSpace(value[i]) {
		i++
	}
	for j >= i && isSpace(value[j]) {
		j--
	}
	if j < i {
		return false
	}
	if j-i+1 != len(tokenLower) {
		return false
	}
	for k := 0; k < len(tokenLower); k++ {
		if toLowerByte(value[i+k]) != tokenLower[k] {
			return false
		}
	}
	return true
}

func toLowerByte(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func makeClosePayload(code CloseCode, reason string) []byte {
	if code == 0 {
		return nil
	}
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(code))
	if reason == "" {
		return buf[:]
	}
	payload := make([]byte, 0, 2+len(reason))
	payload = append(payload, buf[:]...)
	payload = append(payload, reason...)
	return payload
}
