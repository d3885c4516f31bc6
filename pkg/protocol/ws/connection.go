package ws

import (
	"bytes"
	"compress/flate"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/httphead"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsflate"
	"github.com/gobwas/ws/wsutil"

	"relaycap.dev/pkg/utils/chk"
	"relaycap.dev/pkg/utils/context"
	"relaycap.dev/pkg/utils/errorf"
	"relaycap.dev/pkg/utils/log"
)

// Connection is one dialed client -> relay socket: the raw net.Conn plus
// the framing/compression state WriteMessage and ReadMessage need. A
// Client owns exactly one Connection for its lifetime.
type Connection struct {
	conn              net.Conn
	enableCompression bool
	controlHandler    wsutil.FrameHandlerFunc
	flateReader       *wsflate.Reader
	reader            *wsutil.Reader
	flateWriter       *wsflate.Writer
	writer            *wsutil.Writer
	msgStateR         *wsflate.MessageState
	msgStateW         *wsflate.MessageState
}

// NewConnection dials url and negotiates permessage-deflate if the relay
// offers it, returning a Connection ready for WriteMessage/ReadMessage.
func NewConnection(
	ctx context.T, url string, requestHeader http.Header,
	tlsConfig *tls.Config,
) (connection *Connection, errResult error) {
	dialer := ws.Dialer{
		Header: ws.HandshakeHeaderHTTP(requestHeader),
		Extensions: []httphead.Option{
			wsflate.DefaultParameters.Option(),
		},
		TLSConfig: tlsConfig,
	}
	conn, _, hs, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	enableCompression := false
	state := ws.StateClientSide
	for _, extension := range hs.Extensions {
		if string(extension.Name) == wsflate.ExtensionName {
			enableCompression = true
			state |= ws.StateExtended
			break
		}
	}
	var flateReader *wsflate.Reader
	var msgStateR wsflate.MessageState
	if enableCompression {
		msgStateR.SetCompressed(true)

		flateReader = wsflate.NewReader(
			nil, func(r io.Reader) wsflate.Decompressor {
				return flate.NewReader(r)
			},
		)
	}
	controlHandler := wsutil.ControlFrameHandler(conn, ws.StateClientSide)
	reader := &wsutil.Reader{
		Source:         conn,
		State:          state,
		OnIntermediate: controlHandler,
		CheckUTF8:      false,
		Extensions: []wsutil.RecvExtension{
			&msgStateR,
		},
	}
	var flateWriter *wsflate.Writer
	var msgStateW wsflate.MessageState
	if enableCompression {
		msgStateW.SetCompressed(true)

		flateWriter = wsflate.NewWriter(
			nil, func(w io.Writer) wsflate.Compressor {
				fw, err := flate.NewWriter(w, 4)
				if err != nil {
					log.E.F("Failed to create flate writer: %v", err)
				}
				return fw
			},
		)
	}
	writer := wsutil.NewWriter(conn, state, ws.OpText)
	writer.SetExtensions(&msgStateW)
	return &Connection{
		conn:              conn,
		enableCompression: enableCompression,
		controlHandler:    controlHandler,
		flateReader:       flateReader,
		reader:            reader,
		msgStateR:         &msgStateR,
		flateWriter:       flateWriter,
		writer:            writer,
		msgStateW:         &msgStateW,
	}, nil
}

// armDeadline applies ctx's deadline (if any) to the socket via set so a
// blocking read or write actually unblocks when ctx expires, rather than
// only being checked at entry. A zero time.Time clears any previously
// set deadline.
func (cn *Connection) armDeadline(ctx context.T, set func(time.Time) error) error {
	deadline, _ := ctx.Deadline()
	return set(deadline)
}

// WriteMessage dispatches a message through the Connection, bounded by
// ctx's deadline for the duration of the write.
func (cn *Connection) WriteMessage(ctx context.T, data []byte) (err error) {
	select {
	case <-ctx.Done():
		return errorf.E(
			"%s context canceled",
			cn.conn.RemoteAddr(),
		)
	default:
	}
	if err := cn.armDeadline(ctx, cn.conn.SetWriteDeadline); err != nil {
		return errorf.E(
			"%s failed to set write deadline: %w",
			cn.conn.RemoteAddr(),
			err,
		)
	}
	if cn.msgStateW.IsCompressed() && cn.enableCompression {
		cn.flateWriter.Reset(cn.writer)
		if _, err := io.Copy(
			cn.flateWriter, bytes.NewReader(data),
		); chk.T(err) {
			return errorf.E(
				"%s failed to write message: %w",
				cn.conn.RemoteAddr(),
				err,
			)
		}

		if err := cn.flateWriter.Close(); chk.T(err) {
			return errorf.E(
				"%s failed to close flate writer: %w",
				cn.conn.RemoteAddr(),
				err,
			)
		}
	} else {
		if _, err := io.Copy(cn.writer, bytes.NewReader(data)); chk.T(err) {
			return errorf.E(
				"%s failed to write message: %w",
				cn.conn.RemoteAddr(),
				err,
			)
		}
	}
	if err := cn.writer.Flush(); chk.T(err) {
		return errorf.E(
			"%s failed to flush writer: %w",
			cn.conn.RemoteAddr(),
			err,
		)
	}
	return nil
}

// ReadMessage picks up the next incoming message on a Connection,
// skipping control frames (handled inline) and bounded by ctx's deadline
// for the duration of the read.
func (cn *Connection) ReadMessage(ctx context.T, buf io.Writer) (err error) {
	if err := cn.armDeadline(ctx, cn.conn.SetReadDeadline); err != nil {
		return errorf.E(
			"%s failed to set read deadline: %w",
			cn.conn.RemoteAddr(),
			err,
		)
	}
	for {
		select {
		case <-ctx.Done():
			return errorf.D(
				"%s context canceled",
				cn.conn.RemoteAddr(),
			)
		default:
		}
		h, err := cn.reader.NextFrame()
		if err != nil {
			cn.conn.Close()
			return errorf.E(
				"%s failed to advance frame: %s",
				cn.conn.RemoteAddr(),
				err.Error(),
			)
		}
		if h.OpCode.IsControl() {
			if err := cn.controlHandler(h, cn.reader); chk.T(err) {
				return errorf.E(
					"%s failed to handle control frame: %w",
					cn.conn.RemoteAddr(),
					err,
				)
			}
		} else if h.OpCode == ws.OpBinary ||
			h.OpCode == ws.OpText {
			break
		}
		if err := cn.reader.Discard(); chk.T(err) {
			return errorf.E(
				"%s failed to discard: %w",
				cn.conn.RemoteAddr(),
				err,
			)
		}
	}
	if cn.msgStateR.IsCompressed() && cn.enableCompression {
		cn.flateReader.Reset(cn.reader)
		if _, err := io.Copy(buf, cn.flateReader); chk.T(err) {
			return errorf.E(
				"%s failed to read message: %w",
				cn.conn.RemoteAddr(),
				err,
			)
		}
	} else {
		if _, err := io.Copy(buf, cn.reader); chk.T(err) {
			return errorf.E(
				"%s failed to read message: %w",
				cn.conn.RemoteAddr(),
				err,
			)
		}
	}
	return nil
}

// Close the Connection.
func (cn *Connection) Close() (err error) {
	return cn.conn.Close()
}
