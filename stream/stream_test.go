package stream

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/joeycumines/go-uvio/buffer"
	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/ioerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func copyRegion(t testing.TB, b []byte) buffer.Region {
	t.Helper()
	r, err := buffer.Copy(b, 0, len(b))
	require.NoError(t, err)
	return r
}

func TestTCP_writeShutdownEOF(t *testing.T) {
	loop := newTestLoop(t)

	var (
		received bytes.Buffer
		sawEOF   int
		events   []string
		server   *TCP
	)
	server, port := listenTCP(t, loop, func(conn *TCP) {
		assert.True(t, conn.IsReadable())
		peer, err := conn.PeerName()
		require.NoError(t, err)
		assert.Equal(t, `127.0.0.1`, peer.IP)
		require.NoError(t, conn.ReadStart(func(data []byte, pending Pending, err error) {
			assert.Nil(t, pending)
			if errors.Is(err, io.EOF) {
				sawEOF++
				assert.Equal(t, ioerr.EOF, ioerr.Code(err))
				assert.False(t, conn.IsReadable())
				conn.Close(nil)
				server.Close(nil)
				return
			}
			require.NoError(t, err)
			received.Write(data)
		}))
	})

	client := NewTCP(loop)
	require.NoError(t, client.SetNoDelay(true))
	require.NoError(t, client.Connect(`127.0.0.1`, port, `connect`, func(ctx any, err error) {
		require.NoError(t, err)
		events = append(events, ctx.(string))
		assert.True(t, client.IsWritable())
		require.NoError(t, client.Write(copyRegion(t, []byte(`data`)), `write`, func(ctx any, data []byte, err error) {
			require.NoError(t, err)
			assert.Nil(t, data)
			events = append(events, ctx.(string))
		}))
		require.NoError(t, client.Shutdown(`shutdown`, func(ctx any, err error) {
			require.NoError(t, err)
			events = append(events, ctx.(string))
			assert.False(t, client.IsWritable())
			client.Close(nil)
		}))
		err = client.Write(copyRegion(t, []byte(`late`)), nil, nil)
		assert.ErrorIs(t, err, ioerr.Build(ioerr.EPIPE, ``, ``, ``))
	}))

	runWithTimeout(t, loop, 5*time.Second)
	assert.Equal(t, `data`, received.String())
	assert.Equal(t, 1, sawEOF)
	assert.Equal(t, []string{`connect`, `write`, `shutdown`}, events)
}

func TestTCP_connectRefused(t *testing.T) {
	loop := newTestLoop(t)

	unused := NewTCP(loop)
	require.NoError(t, unused.Bind(`127.0.0.1`, 0))
	addr, err := unused.SocketName()
	require.NoError(t, err)
	unused.Close(nil)
	runWithTimeout(t, loop, time.Second)

	var got error
	client := NewTCP(loop)
	require.NoError(t, client.Connect(`127.0.0.1`, addr.Port, nil, func(_ any, err error) {
		got = err
		client.Close(nil)
	}))
	runWithTimeout(t, loop, 5*time.Second)
	assert.Equal(t, ioerr.ECONNREFUSED, ioerr.Code(got))
}

func TestTCP_rejectedSynchronously(t *testing.T) {
	loop := newTestLoop(t)
	x := NewTCP(loop)

	assert.Equal(t, ioerr.ENOTCONN, ioerr.Code(x.ReadStart(func([]byte, Pending, error) {})))
	assert.Equal(t, ioerr.ENOTCONN, ioerr.Code(x.Write(buffer.Pin([]byte(`x`)), nil, nil)))
	assert.Equal(t, ioerr.EINVAL, ioerr.Code(x.Connect(`not an ip`, 80, nil, nil)))
	assert.Equal(t, ioerr.EINVAL, ioerr.Code(x.Accept(NewTCP(loop))))
	_, err := x.PeerName()
	assert.Equal(t, ioerr.EBADF, ioerr.Code(err))

	require.NoError(t, x.Listen(4, func(error) {}))
	assert.Equal(t, ioerr.EAGAIN, ioerr.Code(x.Accept(NewTCP(loop))))
	assert.Equal(t, ioerr.EINVAL, ioerr.Code(x.Write2(buffer.Pin([]byte(`x`)), x, nil, nil)))
	assert.True(t, x.IsActive())

	x.Close(nil)
	assert.ErrorIs(t, x.ReadStart(func([]byte, Pending, error) {}), eventloop.ErrHandleClosing)
	runWithTimeout(t, loop, time.Second)
	assert.Equal(t, eventloop.HandleClosed, x.State())
}

func TestPipe_writesCompleteInOrder(t *testing.T) {
	loop := newTestLoop(t)
	a, b, err := NewPipePair(loop, false)
	require.NoError(t, err)

	const chunk = 256 * 1024
	var want bytes.Buffer
	var order []int
	for i := range 3 {
		data := bytes.Repeat([]byte{byte('a' + i)}, chunk)
		want.Write(data)
		require.NoError(t, a.Write(copyRegion(t, data), i, func(ctx any, _ []byte, err error) {
			require.NoError(t, err)
			order = append(order, ctx.(int))
		}))
	}
	assert.Positive(t, a.WriteQueueSize())
	assert.LessOrEqual(t, a.WriteQueueSize(), 3*chunk)

	var got bytes.Buffer
	require.NoError(t, b.ReadStart(func(data []byte, _ Pending, err error) {
		require.NoError(t, err)
		got.Write(data)
		if got.Len() == want.Len() {
			a.Close(nil)
			b.Close(nil)
		}
	}))

	runWithTimeout(t, loop, 10*time.Second)
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.True(t, bytes.Equal(want.Bytes(), got.Bytes()))
	assert.Zero(t, a.WriteQueueSize())
}

func TestPipe_pinnedWriteEchoesData(t *testing.T) {
	loop := newTestLoop(t)
	a, b, err := NewPipePair(loop, false)
	require.NoError(t, err)

	src := []byte(`pinned`)
	var echoed []byte
	require.NoError(t, a.Write(buffer.Pin(src), nil, func(_ any, data []byte, err error) {
		require.NoError(t, err)
		echoed = data
		a.Close(nil)
		b.Close(nil)
	}))
	runWithTimeout(t, loop, 5*time.Second)
	require.Len(t, echoed, len(src))
	assert.Same(t, &src[0], &echoed[0])
}

func TestPipe_closeCancelsQueuedWrites(t *testing.T) {
	loop := newTestLoop(t)
	a, b, err := NewPipePair(loop, false)
	require.NoError(t, err)
	defer b.Close(nil)

	before := buffer.Default.Outstanding()
	var events []string
	record := func(name string) WriteCallback {
		return func(_ any, _ []byte, err error) {
			events = append(events, name+`:`+ioerr.Name(ioerr.Code(err)))
		}
	}
	require.NoError(t, a.Write(copyRegion(t, make([]byte, 8<<20)), nil, record(`big`)))
	require.NoError(t, a.Write(copyRegion(t, []byte(`small`)), nil, record(`small`)))
	require.NoError(t, a.Shutdown(nil, func(_ any, err error) {
		events = append(events, `shutdown:`+ioerr.Name(ioerr.Code(err)))
	}))
	a.Close(func() { events = append(events, `close`) })

	runWithTimeout(t, loop, 5*time.Second)
	assert.Equal(t, []string{`big:ECANCELED`, `small:ECANCELED`, `shutdown:ECANCELED`, `close`}, events)
	assert.Equal(t, before, buffer.Default.Outstanding())
	assert.Equal(t, eventloop.HandleClosed, a.State())
}

func TestPipe_bindConnect(t *testing.T) {
	loop := newTestLoop(t)
	name := filepath.Join(t.TempDir(), `sock`)

	server := NewPipe(loop, false)
	require.NoError(t, server.Bind(name))
	bound, err := server.SocketName()
	require.NoError(t, err)
	assert.Equal(t, name, bound)

	var got string
	require.NoError(t, server.Listen(4, func(err error) {
		require.NoError(t, err)
		conn := NewPipe(loop, false)
		require.NoError(t, server.Accept(conn))
		require.NoError(t, conn.ReadStart(func(data []byte, _ Pending, err error) {
			if err != nil {
				conn.Close(nil)
				server.Close(nil)
				return
			}
			got += string(data)
		}))
	}))

	client := NewPipe(loop, false)
	require.NoError(t, client.Connect(name, nil, func(_ any, err error) {
		require.NoError(t, err)
		require.NoError(t, client.Write(copyRegion(t, []byte(`hi`)), nil, nil))
		require.NoError(t, client.Shutdown(nil, func(any, error) { client.Close(nil) }))
	}))

	runWithTimeout(t, loop, 5*time.Second)
	assert.Equal(t, `hi`, got)
}

func TestPipe_connectMissingReportsPath(t *testing.T) {
	loop := newTestLoop(t)
	name := filepath.Join(t.TempDir(), `missing`)
	client := NewPipe(loop, false)
	var got error
	require.NoError(t, client.Connect(name, nil, func(_ any, err error) {
		got = err
		client.Close(nil)
	}))
	runWithTimeout(t, loop, 5*time.Second)
	assert.Equal(t, ioerr.ENOENT, ioerr.Code(got))
	assert.Contains(t, got.Error(), name)
}

func TestTCP_ipv6Echo(t *testing.T) {
	loop := newTestLoop(t)
	server := NewTCP(loop)
	if err := server.Bind6(`::1`, 0, true); err != nil {
		t.Skipf("ipv6 loopback unavailable: %v", err)
	}
	require.NoError(t, server.Listen(4, func(err error) {
		require.NoError(t, err)
		conn := NewTCP(loop)
		require.NoError(t, server.Accept(conn))
		require.NoError(t, conn.ReadStart(func(data []byte, _ Pending, err error) {
			if err != nil {
				conn.Close(nil)
				server.Close(nil)
				return
			}
			require.NoError(t, conn.Write(copyRegion(t, data), nil, nil))
		}))
	}))
	addr, err := server.SocketName()
	require.NoError(t, err)
	assert.Equal(t, `::1`, addr.IP)

	var got string
	client := NewTCP(loop)
	require.NoError(t, client.Connect6(`::1`, addr.Port, nil, func(_ any, err error) {
		require.NoError(t, err)
		require.NoError(t, client.ReadStart(func(data []byte, _ Pending, err error) {
			require.NoError(t, err)
			got += string(data)
			if got == `echo` {
				client.Close(nil)
			}
		}))
		require.NoError(t, client.Write(copyRegion(t, []byte(`echo`)), nil, nil))
	}))

	runWithTimeout(t, loop, 5*time.Second)
	assert.Equal(t, `echo`, got)
}

func TestPipe_emptyWrites(t *testing.T) {
	for _, tc := range [...]struct {
		name   string
		writes []string
		pinned bool
		want   string
	}{
		{`only empty`, []string{``}, false, ``},
		{`only empty pinned`, []string{``}, true, ``},
		{`empty between`, []string{`a`, ``, `b`}, false, `ab`},
		{`empty between pinned`, []string{`a`, ``, `b`}, true, `ab`},
		{`empty first`, []string{``, ``, `c`}, false, `c`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			loop := newTestLoop(t)
			a, b, err := NewPipePair(loop, false)
			require.NoError(t, err)

			var completed int
			for _, w := range tc.writes {
				r := copyRegion(t, []byte(w))
				if tc.pinned {
					r = buffer.Pin([]byte(w))
				}
				require.NoError(t, a.Write(r, nil, func(_ any, _ []byte, err error) {
					require.NoError(t, err)
					completed++
				}))
			}
			require.NoError(t, a.Shutdown(nil, func(_ any, err error) {
				require.NoError(t, err)
				a.Close(nil)
			}))

			var (
				got    string
				chunks int
				eof    bool
			)
			require.NoError(t, b.ReadStart(func(data []byte, pending Pending, err error) {
				assert.Nil(t, pending)
				if err != nil {
					assert.Equal(t, ioerr.EOF, ioerr.Code(err))
					assert.Empty(t, data)
					eof = true
					b.Close(nil)
					return
				}
				assert.NotEmpty(t, data, "empty read delivered")
				chunks++
				got += string(data)
			}))

			runWithTimeout(t, loop, 5*time.Second)
			assert.Equal(t, len(tc.writes), completed)
			assert.Equal(t, tc.want, got)
			assert.True(t, eof)
			if tc.want == `` {
				assert.Zero(t, chunks)
			}
		})
	}
}

func TestTCP_openClassifiesSocket(t *testing.T) {
	for _, tc := range [...]struct {
		name      string
		listen    bool
		connected bool
	}{
		{`unconnected`, false, false},
		{`listening`, true, false},
		{`connected`, false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			loop := newTestLoop(t)
			peer, port := listenTCP(t, loop, func(conn *TCP) { conn.Close(nil) })
			defer peer.Close(nil)

			fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
			require.NoError(t, err)
			switch {
			case tc.listen:
				require.NoError(t, unix.Bind(fd, &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))
				require.NoError(t, unix.Listen(fd, 1))
			case tc.connected:
				require.NoError(t, unix.Connect(fd, &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}}))
			}

			x := NewTCP(loop)
			require.NoError(t, x.Open(fd))
			assert.Equal(t, tc.connected, x.IsReadable())
			assert.Equal(t, tc.connected, x.IsWritable())
			assert.Equal(t, ioerr.EBUSY, ioerr.Code(x.Open(fd)))
			if tc.connected {
				assert.Equal(t, ioerr.EISCONN, ioerr.Code(x.Listen(1, func(error) {})))
			} else {
				assert.NoError(t, x.Listen(1, func(error) {}))
			}
			x.Close(nil)
		})
	}
}
