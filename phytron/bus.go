package phytron

import (
	"context"
	"time"

	"github.jpl.nasa.gov/bdube/mcc2/comm"
)

// Executor serializes exchanges on one line.  *comm.Bus is the production
// implementation.
type Executor interface {
	Execute(ctx context.Context, req comm.Request) ([]byte, error)
	Close() error
}

// Bus speaks the MCC-2 protocol over an Executor.  Every axis on the line
// shares one Bus.
type Bus struct {
	line  Executor
	codec Codec
}

// NewBus returns a Bus that owns line
func NewBus(line Executor, codec Codec) *Bus {
	return &Bus{line: line, codec: codec}
}

// Codec returns the codec used to frame commands
func (b *Bus) Codec() Codec {
	return b.codec
}

// Execute encodes cmd, performs one exchange for tag, and decodes the reply.
// Encoding errors are returned without touching the line.
func (b *Bus) Execute(ctx context.Context, tag string, cmd Command, timeout time.Duration) (Response, error) {
	frame, err := b.codec.EncodeCommand(cmd)
	if err != nil {
		return Response{}, err
	}
	return b.exchange(ctx, tag, cmd.String(), frame, timeout)
}

// Raw sends an arbitrary command body, such as "0XP14R", and decodes the reply
func (b *Bus) Raw(ctx context.Context, tag string, body string, timeout time.Duration) (Response, error) {
	frame, err := b.codec.EncodeRaw(body)
	if err != nil {
		return Response{}, err
	}
	return b.exchange(ctx, tag, body, frame, timeout)
}

func (b *Bus) exchange(ctx context.Context, tag, body string, frame []byte, timeout time.Duration) (Response, error) {
	raw, err := b.line.Execute(ctx, comm.Request{Tag: tag, Frame: frame, Timeout: timeout})
	if err != nil {
		return Response{}, err
	}
	resp, err := b.codec.DecodeResponse(raw)
	if pe, ok := err.(*ProtocolError); ok {
		pe.Command = body
	}
	return resp, err
}

// Close closes the line
func (b *Bus) Close() error {
	return b.line.Close()
}
