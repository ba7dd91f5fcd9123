// Package wltest runs a scripted in-process compositor so protocol code can be
// tested without a display server.
package wltest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ItsNotGoodName/wl-handmade/internal/wl"
)

const (
	pumpTimeout = time.Second
	socketName  = "wayland-test"
	displayID   = 1
)

// Wayland uses host byte order.
var order = binary.NativeEndian

// Global is advertised on every registry the client creates.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// DefaultGlobals advertises everything a client window needs.
func DefaultGlobals() []Global {
	return []Global{
		{Name: 1, Interface: "wl_compositor", Version: 4},
		{Name: 2, Interface: "wl_shm", Version: 1},
		{Name: 3, Interface: "wl_seat", Version: 5},
		{Name: 4, Interface: "xdg_wm_base", Version: 2},
	}
}

// Request is a decoded client request. Numeric arguments, object ids and new
// ids land in Args in order.
type Request struct {
	Object  uint32
	Name    string
	Args    []uint32
	Strings []string
	FDs     []int
}

// FD marks an event argument as a file descriptor.
type FD int

type signature struct {
	name    string
	args    string
	creates string
}

var signatures = map[string][]signature{
	"wl_display":    {{"sync", "n", "wl_callback"}, {"get_registry", "n", "wl_registry"}},
	"wl_registry":   {{"bind", "usun", ""}},
	"wl_compositor": {{"create_surface", "n", "wl_surface"}, {"create_region", "n", "wl_region"}},
	"wl_surface": {
		{"destroy", "", ""}, {"attach", "oii", ""}, {"damage", "iiii", ""}, {"frame", "n", "wl_callback"},
		{"set_opaque_region", "o", ""}, {"set_input_region", "o", ""}, {"commit", "", ""},
		{"set_buffer_transform", "i", ""}, {"set_buffer_scale", "i", ""}, {"damage_buffer", "iiii", ""},
	},
	"wl_shm":      {{"create_pool", "nhi", "wl_shm_pool"}},
	"wl_shm_pool": {{"create_buffer", "niiiiu", "wl_buffer"}, {"destroy", "", ""}, {"resize", "i", ""}},
	"wl_buffer":   {{"destroy", "", ""}},
	"wl_seat":     {{"get_pointer", "n", "wl_pointer"}, {"get_keyboard", "n", "wl_keyboard"}, {"get_touch", "n", "wl_touch"}, {"release", "", ""}},
	"wl_keyboard": {{"release", "", ""}},
	"wl_pointer":  {{"set_cursor", "uoii", ""}, {"release", "", ""}},
	"xdg_wm_base": {{"destroy", "", ""}, {"create_positioner", "n", "xdg_positioner"}, {"get_xdg_surface", "no", "xdg_surface"}, {"pong", "u", ""}},
	"xdg_surface": {
		{"destroy", "", ""}, {"get_toplevel", "n", "xdg_toplevel"}, {"get_popup", "noo", "xdg_popup"},
		{"set_window_geometry", "iiii", ""}, {"ack_configure", "u", ""},
	},
	"xdg_toplevel": {{"destroy", "", ""}, {"set_parent", "o", ""}, {"set_title", "s", ""}, {"set_app_id", "s", ""}},
}

// Server is the compositor side of one client connection.
type Server struct {
	fd      int
	globals []Global

	writeMu sync.Mutex

	mu       sync.Mutex
	objects  map[uint32]string
	requests []Request
	frames   []uint32
	serial   uint32

	done chan struct{}
}

// New listens on a socket in a fresh XDG_RUNTIME_DIR, points WAYLAND_DISPLAY
// at it and connects a client. Both ends are closed on cleanup.
func New(t *testing.T, globals ...Global) (*wl.Conn, *Server) {
	t.Helper()

	// Socket paths are limited to 108 bytes, t.TempDir can be longer.
	dir, err := os.MkdirTemp("", "wltest")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("WAYLAND_DISPLAY", socketName)

	ln, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(ln)
	require.NoError(t, unix.Bind(ln, &unix.SockaddrUnix{Name: filepath.Join(dir, socketName)}))
	require.NoError(t, unix.Listen(ln, 1))

	conn, err := wl.Dial()
	require.NoError(t, err)

	fd, _, err := unix.Accept4(ln, unix.SOCK_CLOEXEC)
	require.NoError(t, err)

	s := &Server{
		fd:      fd,
		globals: globals,
		objects: map[uint32]string{displayID: "wl_display"},
		done:    make(chan struct{}),
	}
	go s.serve()

	t.Cleanup(func() {
		conn.Close()
		s.Close()
	})
	return conn, s
}

// Close stops the server and closes every descriptor it received.
func (s *Server) Close() {
	unix.Shutdown(s.fd, unix.SHUT_RDWR)
	<-s.done
	unix.Close(s.fd)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		for _, fd := range r.FDs {
			unix.Close(fd)
		}
	}
	s.requests = nil
}

// Hangup closes the server end so the client observes a disconnect.
func (s *Server) Hangup() {
	unix.Shutdown(s.fd, unix.SHUT_RDWR)
}

func (s *Server) serve() {
	defer close(s.done)

	var in []byte
	var fds []int
	buf := make([]byte, 65536)
	oob := make([]byte, unix.CmsgSpace(28*4))
	for {
		n, oobn, _, _, err := unix.Recvmsg(s.fd, buf, oob, unix.MSG_CMSG_CLOEXEC)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || n == 0 {
			for _, fd := range fds {
				unix.Close(fd)
			}
			return
		}
		if oobn > 0 {
			scms, _ := unix.ParseSocketControlMessage(oob[:oobn])
			for i := range scms {
				rights, err := unix.ParseUnixRights(&scms[i])
				if err == nil {
					fds = append(fds, rights...)
				}
			}
		}

		in = append(in, buf[:n]...)
		for len(in) >= 8 {
			size := int(order.Uint32(in[4:]) >> 16)
			if size < 8 || len(in) < size {
				break
			}
			id := order.Uint32(in)
			opcode := uint16(order.Uint32(in[4:]))
			fds = s.handle(id, opcode, in[8:size], fds)
			in = in[size:]
		}
	}
}

func (s *Server) handle(id uint32, opcode uint16, body []byte, fds []int) []int {
	s.mu.Lock()
	iface := s.objects[id]
	sigs := signatures[iface]
	if int(opcode) >= len(sigs) {
		s.requests = append(s.requests, Request{Object: id, Name: fmt.Sprintf("%s.#%d", iface, opcode)})
		s.mu.Unlock()
		return fds
	}
	sig := sigs[opcode]

	req := Request{Object: id, Name: iface + "." + sig.name}
	var created uint32
	createdIface := sig.creates
	for _, kind := range sig.args {
		switch kind {
		case 'u', 'i', 'o', 'n':
			if len(body) < 4 {
				break
			}
			v := order.Uint32(body)
			body = body[4:]
			req.Args = append(req.Args, v)
			if kind == 'n' {
				created = v
			}
		case 's':
			if len(body) < 4 {
				break
			}
			l := int(order.Uint32(body))
			body = body[4:]
			padded := (l + 3) &^ 3
			if l > 0 && padded <= len(body) {
				str := string(body[:l-1])
				req.Strings = append(req.Strings, str)
				if sig.name == "bind" {
					createdIface = str
				}
			}
			if padded <= len(body) {
				body = body[padded:]
			}
		case 'h':
			if len(fds) > 0 {
				req.FDs = append(req.FDs, fds[0])
				fds = fds[1:]
			}
		}
	}
	if created != 0 && createdIface != "" {
		s.objects[created] = createdIface
	}
	s.requests = append(s.requests, req)
	if req.Name == "wl_surface.frame" {
		s.frames = append(s.frames, created)
	}
	s.mu.Unlock()

	s.reply(req, created, createdIface, sig.name)
	return fds
}

func (s *Server) reply(req Request, created uint32, createdIface, name string) {
	switch {
	case req.Name == "wl_display.get_registry":
		for _, g := range s.globals {
			s.Send(created, 0, g.Name, g.Interface, g.Version)
		}
	case req.Name == "wl_display.sync":
		s.Send(created, 0, s.NextSerial())
		s.deleteID(created)
	case req.Name == "wl_registry.bind" && createdIface == "wl_shm":
		s.Send(created, 0, uint32(0))
		s.Send(created, 0, uint32(1))
	case name == "destroy" || name == "release":
		s.deleteID(req.Object)
	}
}

func (s *Server) deleteID(id uint32) {
	s.mu.Lock()
	delete(s.objects, id)
	s.mu.Unlock()
	s.Send(displayID, 1, id)
}

// NextSerial returns a fresh event serial.
func (s *Server) NextSerial() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serial++
	return s.serial
}

// Send writes one event. Arguments may be uint32, int32, int, string, []byte,
// []uint32 or FD.
func (s *Server) Send(id uint32, opcode uint16, args ...any) error {
	var body []byte
	var rights []int
	for _, arg := range args {
		switch v := arg.(type) {
		case uint32:
			body = order.AppendUint32(body, v)
		case int32:
			body = order.AppendUint32(body, uint32(v))
		case int:
			body = order.AppendUint32(body, uint32(v))
		case string:
			body = order.AppendUint32(body, uint32(len(v)+1))
			body = append(body, v...)
			body = append(body, make([]byte, ((len(v)+4)&^3)-len(v))...)
		case []byte:
			body = order.AppendUint32(body, uint32(len(v)))
			body = append(body, v...)
			body = append(body, make([]byte, ((len(v)+3)&^3)-len(v))...)
		case []uint32:
			body = order.AppendUint32(body, uint32(len(v)*4))
			for _, w := range v {
				body = order.AppendUint32(body, w)
			}
		case FD:
			rights = append(rights, int(v))
		default:
			return fmt.Errorf("wltest: unsupported argument %T", arg)
		}
	}

	msg := order.AppendUint32(nil, id)
	msg = order.AppendUint32(msg, uint32(8+len(body))<<16|uint32(opcode))
	msg = append(msg, body...)

	var oob []byte
	if len(rights) > 0 {
		oob = unix.UnixRights(rights...)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return unix.Sendmsg(s.fd, msg, oob, nil, unix.MSG_NOSIGNAL)
}

// Requests returns a snapshot of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Names returns the names of every request received so far, in order.
func (s *Server) Names() []string {
	var names []string
	for _, r := range s.Requests() {
		names = append(names, r.Name)
	}
	return names
}

// Count returns how many times name was requested.
func (s *Server) Count(name string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Name == name {
			n++
		}
	}
	return n
}

// Last returns the most recent request with name.
func (s *Server) Last(name string) (Request, bool) {
	reqs := s.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Name == name {
			return reqs[i], true
		}
	}
	return Request{}, false
}

// Object returns the newest live object id of iface, or zero.
func (s *Server) Object(iface string) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest uint32
	for id, name := range s.objects {
		if name == iface && id > newest {
			newest = id
		}
	}
	return newest
}

// DoneFrames fires every outstanding frame callback with the timestamp ms.
func (s *Server) DoneFrames(ms uint32) int {
	s.mu.Lock()
	frames := s.frames
	s.frames = nil
	s.mu.Unlock()

	for _, id := range frames {
		s.Send(id, 0, ms)
		s.deleteID(id)
	}
	return len(frames)
}

// PendingFrames returns how many frame callbacks have not been fired.
func (s *Server) PendingFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Configure sends a toplevel configure followed by the xdg_surface configure
// that completes it.
func (s *Server) Configure(width, height int32, serial uint32) error {
	if err := s.Send(s.Object("xdg_toplevel"), 0, width, height, []uint32{}); err != nil {
		return err
	}
	return s.Send(s.Object("xdg_surface"), 0, serial)
}

// Release tells the client the compositor is done with buffer.
func (s *Server) Release(buffer uint32) error {
	return s.Send(buffer, 0)
}

// Pump reads and dispatches whatever the server has sent, waiting up to a
// second for the first byte.
func Pump(t *testing.T, conn *wl.Conn) {
	t.Helper()
	require.NoError(t, conn.Flush())
	_, err := conn.DispatchPending()
	require.NoError(t, err)
	guard, err := conn.PrepareRead()
	require.NoError(t, err)
	ready, err := conn.Poll(pumpTimeout)
	if err != nil || !ready {
		guard.Cancel()
		require.NoError(t, err)
		return
	}
	require.NoError(t, guard.Read())
	_, err = conn.DispatchPending()
	require.NoError(t, err)
}

// Sync waits until the server has seen every request, including the ones
// queued by handlers of the events the first roundtrip dispatched.
func Sync(t *testing.T, conn *wl.Conn) {
	t.Helper()
	require.NoError(t, conn.Roundtrip())
	require.NoError(t, conn.Flush())
	require.NoError(t, conn.Roundtrip())
}
