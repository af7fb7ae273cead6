package stream

import (
	"testing"
	"time"

	"github.com/joeycumines/go-uvio/buffer"
	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/ioerr"
	"github.com/joeycumines/go-uvio/udp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite2_passesHandles(t *testing.T) {
	loop := newTestLoop(t)
	a, b, err := NewPipePair(loop, true)
	require.NoError(t, err)
	assert.True(t, a.IPC())

	listener := NewTCP(loop)
	require.NoError(t, listener.Bind(`127.0.0.1`, 0))
	require.NoError(t, listener.Listen(1, func(error) {}))
	tcpAddr, err := listener.SocketName()
	require.NoError(t, err)

	socket, err := udp.New(loop)
	require.NoError(t, err)
	require.NoError(t, socket.Bind(`127.0.0.1`, 0, 0))
	udpAddr, err := socket.SocketName()
	require.NoError(t, err)

	var sent int
	onSent := func(_ any, _ []byte, err error) {
		require.NoError(t, err)
		sent++
	}
	require.NoError(t, a.Write2(copyRegion(t, []byte(`t`)), listener, nil, onSent))
	require.NoError(t, a.Write2(copyRegion(t, []byte(`u`)), socket, nil, onSent))

	var (
		data     string
		received []Pending
		ports    []int
	)
	require.NoError(t, b.ReadStart(func(chunk []byte, pending Pending, err error) {
		require.NoError(t, err)
		if pending != nil {
			received = append(received, pending)
		} else {
			data += string(chunk)
		}
		if len(received) != 2 {
			return
		}
		// the received handles are closed below, so read their names now
		for _, p := range received {
			var port int
			switch p := p.(type) {
			case *PendingTCP:
				addr, err := p.TCP.SocketName()
				require.NoError(t, err)
				port = addr.Port
			case *PendingUDP:
				addr, err := p.UDP.SocketName()
				require.NoError(t, err)
				port = addr.Port
			default:
				t.Errorf("unexpected pending handle %T", p)
			}
			ports = append(ports, port)
			p.Handle().Close(nil)
		}
		a.Close(nil)
		b.Close(nil)
		listener.Close(nil)
		socket.Close(nil)
	}))

	runWithTimeout(t, loop, 5*time.Second)
	assert.Equal(t, 2, sent)
	assert.Equal(t, `tu`, data)
	require.Len(t, received, 2)
	assert.IsType(t, (*PendingTCP)(nil), received[0])
	assert.IsType(t, (*PendingUDP)(nil), received[1])
	assert.Equal(t, []int{tcpAddr.Port, udpAddr.Port}, ports)
	for _, p := range received {
		assert.Equal(t, eventloop.HandleClosed, p.Handle().State())
	}
}

func TestWrite2_passesListener(t *testing.T) {
	loop := newTestLoop(t)
	a, b, err := NewPipePair(loop, true)
	require.NoError(t, err)

	listener := NewTCP(loop)
	require.NoError(t, listener.Bind(`127.0.0.1`, 0))
	require.NoError(t, listener.Listen(1, func(error) { t.Error("original listener accepted") }))
	addr, err := listener.SocketName()
	require.NoError(t, err)
	require.NoError(t, a.Write2(copyRegion(t, []byte(`l`)), listener, nil, nil))

	var (
		got    string
		served *TCP
	)
	require.NoError(t, b.ReadStart(func(_ []byte, pending Pending, err error) {
		require.NoError(t, err)
		if pending == nil {
			return
		}
		p, ok := pending.(*PendingTCP)
		require.True(t, ok, "unexpected pending handle %T", pending)
		served = p.TCP
		listener.Close(nil)
		a.Close(nil)
		b.Close(nil)

		assert.False(t, served.IsReadable())
		assert.False(t, served.IsWritable())
		require.NoError(t, served.Listen(1, func(err error) {
			require.NoError(t, err)
			conn := NewTCP(loop)
			require.NoError(t, served.Accept(conn))
			require.NoError(t, conn.ReadStart(func(data []byte, _ Pending, err error) {
				if err != nil {
					conn.Close(nil)
					served.Close(nil)
					return
				}
				got += string(data)
			}))
		}))

		client := NewTCP(loop)
		require.NoError(t, client.Connect(`127.0.0.1`, addr.Port, nil, func(_ any, err error) {
			require.NoError(t, err)
			require.NoError(t, client.Write(copyRegion(t, []byte(`via received`)), nil, nil))
			require.NoError(t, client.Shutdown(nil, func(any, error) { client.Close(nil) }))
		}))
	}))

	runWithTimeout(t, loop, 5*time.Second)
	require.NotNil(t, served)
	assert.Equal(t, `via received`, got)
}

func TestWrite2_passesPipe(t *testing.T) {
	loop := newTestLoop(t)
	a, b, err := NewPipePair(loop, true)
	require.NoError(t, err)
	local, remote, err := NewPipePair(loop, false)
	require.NoError(t, err)
	require.NoError(t, a.Write2(copyRegion(t, []byte(`p`)), local, nil, nil))

	var got string
	require.NoError(t, remote.ReadStart(func(data []byte, _ Pending, err error) {
		require.NoError(t, err)
		got += string(data)
		if got == `through the copy` {
			remote.Close(nil)
		}
	}))
	require.NoError(t, b.ReadStart(func(_ []byte, pending Pending, err error) {
		require.NoError(t, err)
		if pending == nil {
			return
		}
		p, ok := pending.(*PendingPipe)
		require.True(t, ok, "unexpected pending handle %T", pending)
		assert.Equal(t, eventloop.KindPipe, p.Handle().Kind())
		assert.False(t, p.Pipe.IPC())
		assert.True(t, p.Pipe.IsWritable())
		local.Close(nil)
		a.Close(nil)
		b.Close(nil)
		require.NoError(t, p.Pipe.Write(copyRegion(t, []byte(`through the copy`)), nil, func(_ any, _ []byte, err error) {
			require.NoError(t, err)
			p.Pipe.Close(nil)
		}))
	}))

	runWithTimeout(t, loop, 5*time.Second)
	assert.Equal(t, `through the copy`, got)
}

func TestWrite2_rejected(t *testing.T) {
	loop := newTestLoop(t)

	plainA, plainB, err := NewPipePair(loop, false)
	require.NoError(t, err)
	assert.Equal(t, ioerr.EINVAL, ioerr.Code(plainA.Write2(buffer.Pin([]byte(`x`)), plainB, nil, nil)))

	ipcA, ipcB, err := NewPipePair(loop, true)
	require.NoError(t, err)
	assert.Equal(t, ioerr.EINVAL, ioerr.Code(ipcA.Write2(buffer.Pin(nil), plainB, nil, nil)))
	assert.Equal(t, ioerr.EBADF, ioerr.Code(ipcA.Write2(buffer.Pin([]byte(`x`)), NewTCP(loop), nil, nil)))

	for _, p := range []*Pipe{plainA, plainB, ipcA, ipcB} {
		p.Close(nil)
	}
	runWithTimeout(t, loop, time.Second)
}
