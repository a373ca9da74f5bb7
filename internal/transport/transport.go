package transport

import (
	"io"

	"github.com/ssamtools/go-ssam-server/internal/ctl"
	"github.com/ssamtools/go-ssam-server/internal/ssh"
)

// SubmissionDecoder decodes a single control submission from a stream.
type SubmissionDecoder interface {
	Decode(r io.Reader) (ctl.Submission, error)
}

// MultiSubmissionDecoder optionally drains multiple submissions from a stream.
type MultiSubmissionDecoder interface {
	DecodeN(r io.Reader, max int, onSub func(ctl.Submission)) (int, error)
}

// MessageSink is a generic transmission target for built SSH messages.
type MessageSink interface {
	SendMessage(ssh.Message) error
}

// Compile-time assertions that *ctl.Codec satisfies the optional capabilities.
var (
	_ SubmissionDecoder      = (*ctl.Codec)(nil)
	_ MultiSubmissionDecoder = (*ctl.Codec)(nil)
)
