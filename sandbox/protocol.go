package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/caffeineduck/scriptbox/hostfunc"
)

// Guest code talks to the host over stderr. A host call is
// \x00SBX:{json}\x00 and is answered with one JSON line on the guest's
// stdin. A fault is \x00SBX_FAULT:{json}\x00 and is not answered.
const (
	ProtocolPrefix      = "\x00SBX:"
	ProtocolFaultPrefix = "\x00SBX_FAULT:"
	protocolSuffix      = "\x00"
)

type messageType int

const (
	messageNone messageType = iota
	messageCall
	messageFault
)

type callRequest struct {
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type faultMessage struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// ProtocolHandler is an io.Writer placed on a guest's stderr. Plain output
// is kept; protocol messages are dispatched to the registry.
type ProtocolHandler struct {
	ctx         context.Context
	registry    *hostfunc.Registry
	stdinWriter io.Writer
	realStderr  bytes.Buffer
	buf         bytes.Buffer
	fault       *Fault
	mu          sync.Mutex
}

func NewProtocolHandler(ctx context.Context, registry *hostfunc.Registry, stdinWriter io.Writer) *ProtocolHandler {
	return &ProtocolHandler{
		ctx:         ctx,
		registry:    registry,
		stdinWriter: stdinWriter,
	}
}

func (p *ProtocolHandler) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)

	for {
		content := p.buf.String()
		idx, msgType := findNextMessage(content)
		if msgType == messageNone {
			keep := partialPrefixLen(content)
			p.realStderr.WriteString(content[:len(content)-keep])
			p.buf.Reset()
			p.buf.WriteString(content[len(content)-keep:])
			break
		}

		p.realStderr.WriteString(content[:idx])

		prefix := ProtocolPrefix
		if msgType == messageFault {
			prefix = ProtocolFaultPrefix
		}

		payload, remaining, ok := extractMessage(content, idx, prefix)
		p.buf.Reset()
		p.buf.WriteString(remaining)
		if !ok {
			break
		}

		switch msgType {
		case messageCall:
			var req callRequest
			if err := json.Unmarshal([]byte(payload), &req); err != nil {
				p.respond(callResponse{Error: "invalid call format"})
				continue
			}
			p.respond(p.handleCall(req))
		case messageFault:
			var msg faultMessage
			if err := json.Unmarshal([]byte(payload), &msg); err != nil {
				msg.Message = payload
			}
			if p.fault == nil {
				p.fault = &Fault{Message: msg.Message, Stack: msg.Stack}
			}
		}
	}

	return len(data), nil
}

func findNextMessage(content string) (int, messageType) {
	callIdx := strings.Index(content, ProtocolPrefix)
	faultIdx := strings.Index(content, ProtocolFaultPrefix)

	switch {
	case callIdx == -1 && faultIdx == -1:
		return -1, messageNone
	case faultIdx == -1 || (callIdx != -1 && callIdx < faultIdx):
		return callIdx, messageCall
	default:
		return faultIdx, messageFault
	}
}

// extractMessage returns the payload of the message starting at idx and
// whatever follows it. When the terminator has not arrived yet, ok is false
// and remaining holds the unfinished message.
func extractMessage(content string, idx int, prefix string) (payload, remaining string, ok bool) {
	start := idx + len(prefix)
	end := strings.Index(content[start:], protocolSuffix)
	if end == -1 {
		return "", content[idx:], false
	}
	return content[start : start+end], content[start+end+len(protocolSuffix):], true
}

// partialPrefixLen reports how many trailing bytes of content could be the
// start of a protocol prefix split across writes.
func partialPrefixLen(content string) int {
	i := strings.LastIndex(content, "\x00")
	if i == -1 {
		return 0
	}
	tail := content[i:]
	if strings.HasPrefix(ProtocolPrefix, tail) || strings.HasPrefix(ProtocolFaultPrefix, tail) {
		return len(tail)
	}
	return 0
}

func (p *ProtocolHandler) respond(resp callResponse) {
	data, _ := json.Marshal(resp)
	go p.stdinWriter.Write(append(data, '\n'))
}

func (p *ProtocolHandler) handleCall(req callRequest) callResponse {
	result, err := p.registry.Call(p.ctx, req.Fn, req.Args)
	if err != nil {
		return callResponse{Error: err.Error()}
	}
	return callResponse{Data: result}
}

// Stderr returns everything the guest wrote to stderr that was not a
// protocol message.
func (p *ProtocolHandler) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String()
}

// Fault returns the first fault the guest reported, or nil.
func (p *ProtocolHandler) Fault() *Fault {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fault
}
