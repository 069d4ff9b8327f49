package discord

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jfmyers9/tgplay/internal/transport"
)

// The local RPC socket carries JSON payloads behind an 8 byte header:
// opcode then payload length, both little endian uint32.
type opcode uint32

const (
	opHandshake opcode = iota
	opFrame
	opClose
	opPing
	opPong
)

const (
	// A header claiming more than this means the stream is out of sync.
	maxFrameSize = 64 << 10

	// Bound on one request and its reply.
	ioTimeout = 5 * time.Second

	// Discord rejects activity text longer than this many characters.
	maxFieldLen = 128

	// Asset key registered for the application. Used when a track has no
	// artwork Discord can fetch.
	appImage = "tgplay"

	activityListening = 2
)

// Activity is the Rich Presence payload.
type Activity struct {
	Type       int         `json:"type,omitempty"`
	Name       string      `json:"name,omitempty"`
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
	Instance   bool        `json:"instance"`
}

type Timestamps struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// listeningActivity shows meta as "Listening to tgplay". start is the unix
// second the track began; with a known length Discord renders a progress bar.
func listeningActivity(meta transport.Metadata, start int64, length time.Duration) *Activity {
	a := &Activity{
		Type:    activityListening,
		Name:    "tgplay",
		Details: clampField(meta.Title),
		State:   clampField("by " + meta.Artist),
		Assets: &Assets{
			LargeImage: artworkAsset(meta.ArtworkURL),
			LargeText:  clampField(meta.Title),
			SmallImage: appImage,
			SmallText:  "tgplay",
		},
	}
	if length > 0 {
		end := start + int64(length/time.Second)
		a.Timestamps = &Timestamps{Start: &start, End: &end}
	}
	return a
}

// artworkAsset keeps remote cover URLs. Local placeholders are not reachable
// from Discord's servers.
func artworkAsset(url string) string {
	if strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://") {
		return url
	}
	return appImage
}

func clampField(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= maxFieldLen {
		return string(r)
	}
	return string(r[:maxFieldLen-1]) + "…"
}

type handshake struct {
	Version  int    `json:"v"`
	ClientID string `json:"client_id"`
}

type activityCommand struct {
	Cmd   string       `json:"cmd"`
	Args  activityArgs `json:"args"`
	Nonce string       `json:"nonce"`
}

type activityArgs struct {
	PID      int       `json:"pid"`
	Activity *Activity `json:"activity"`
}

type reply struct {
	Cmd   string `json:"cmd"`
	Evt   string `json:"evt"`
	Nonce string `json:"nonce"`
	Data  struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"data"`
}

// rpcError is an ERROR event or a close frame sent by the Discord client.
type rpcError struct {
	Code    int
	Message string
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("discord error %d: %s", e.Code, e.Message)
}

var errFrameTooLarge = errors.New("discord frame too large")

type ipcClient struct {
	conn net.Conn
}

func ipcConnect(appID string) (*ipcClient, error) {
	conn, err := dialSocket()
	if err != nil {
		return nil, fmt.Errorf("dial discord socket: %w", err)
	}
	c := &ipcClient{conn: conn}

	payload, _ := json.Marshal(handshake{Version: 1, ClientID: appID})
	r, err := c.exchange(opHandshake, payload, "")
	if err == nil && r.Evt != "READY" {
		err = fmt.Errorf("unexpected event %q", r.Evt)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return c, nil
}

// socketDirs lists where the Discord client may have put its socket.
func socketDirs() []string {
	var dirs []string
	for _, env := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if v := os.Getenv(env); v != "" {
			dirs = append(dirs, v)
		}
	}
	return append(dirs, os.TempDir(), "/tmp")
}

func dialSocket() (net.Conn, error) {
	var lastErr error
	for _, dir := range socketDirs() {
		// Flatpak and snap builds nest the socket one level down.
		for _, sub := range []string{"", "app/com.discordapp.Discord", "snap.discord"} {
			for i := 0; i <= 9; i++ {
				path := filepath.Join(dir, sub, fmt.Sprintf("discord-ipc-%d", i))
				conn, err := net.DialTimeout("unix", path, 2*time.Second)
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
		}
	}
	return nil, fmt.Errorf("no discord socket found: %w", lastErr)
}

// SetActivity replaces the presence. A nil activity clears it.
func (c *ipcClient) SetActivity(a *Activity) error {
	nonce := uuid.NewString()
	payload, err := json.Marshal(activityCommand{
		Cmd:   "SET_ACTIVITY",
		Args:  activityArgs{PID: os.Getpid(), Activity: a},
		Nonce: nonce,
	})
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	_, err = c.exchange(opFrame, payload, nonce)
	return err
}

// exchange writes one frame and waits for the reply carrying nonce. Pings
// are answered and replies to other requests skipped along the way.
func (c *ipcClient) exchange(op opcode, payload []byte, nonce string) (reply, error) {
	_ = c.conn.SetDeadline(time.Now().Add(ioTimeout))
	defer func() { _ = c.conn.SetDeadline(time.Time{}) }()

	if err := c.writeFrame(op, payload); err != nil {
		return reply{}, err
	}

	for {
		op, data, err := c.readFrame()
		if err != nil {
			return reply{}, err
		}

		switch op {
		case opPing:
			if err := c.writeFrame(opPong, data); err != nil {
				return reply{}, err
			}
			continue
		case opClose:
			// Close frames carry code and message at the top level.
			var cl struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			}
			_ = json.Unmarshal(data, &cl)
			return reply{}, &rpcError{Code: cl.Code, Message: "connection closed: " + cl.Message}
		}

		var r reply
		if err := json.Unmarshal(data, &r); err != nil {
			return reply{}, fmt.Errorf("unmarshal reply: %w", err)
		}

		if nonce != "" && r.Nonce != "" && r.Nonce != nonce {
			continue
		}
		if r.Evt == "ERROR" {
			return r, &rpcError{Code: r.Data.Code, Message: r.Data.Message}
		}
		return r, nil
	}
}

func (c *ipcClient) Close() error {
	_ = c.writeFrame(opClose, []byte("{}"))
	return c.conn.Close()
}

func (c *ipcClient) writeFrame(op opcode, payload []byte) error {
	frame := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(op))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[8:], payload)
	_, err := c.conn.Write(frame)
	return err
}

func (c *ipcClient) readFrame() (opcode, []byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return 0, nil, err
	}
	op := opcode(binary.LittleEndian.Uint32(header[0:4]))
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > maxFrameSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", errFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return 0, nil, err
	}
	return op, payload, nil
}
