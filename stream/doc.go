// Package stream implements bidirectional byte stream handles, over TCP
// sockets and unix domain sockets (pipes), driven by an [eventloop.Loop].
//
// All handles embed [Stream], which provides reading, an ordered write
// queue, half-close via Shutdown, and listening for connections. [TCP] and
// [Pipe] add the transport specific operations.
//
// # Reads
//
// Data is delivered to the [ReadCallback] passed to [Stream.ReadStart]. The
// data slice is library owned scratch, valid only until the callback
// returns. End of stream is delivered once, as an error matching
// [io.EOF], after which reading stops.
//
// # Writes
//
// Writes complete in submission order. A write is attempted immediately if
// nothing is queued ahead of it, but its callback always runs from a later
// loop task, never from within Write. After Shutdown, further writes fail
// synchronously with EPIPE.
//
// # Handle passing
//
// Pipes created with ipc set may send a handle alongside a write, see
// [Stream.Write2]. Handles received this way are delivered to the read
// callback as a [Pending] value, one of [*PendingTCP], [*PendingPipe], or
// [*PendingUDP], each wrapping a new, open handle that the receiver owns.
//
// # Errors
//
// Methods that return an error reject the operation synchronously, in which
// case no callback will be called. OS failures for operations that were
// accepted are delivered to the callback, as [*ioerr.Error] values.
package stream
