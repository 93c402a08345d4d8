package protocol

import (
	"fmt"
)

// Command names as they appear in the first frame of a request.
const (
	CmdOpen  = "OPEN"
	CmdRead  = "READ"
	CmdWrite = "WRITE"
	CmdClose = "CLOSE"
)

// fieldCounts is the number of frames following the command frame.
var fieldCounts = map[string]int{
	CmdOpen:  2, // path, mode
	CmdRead:  1, // path
	CmdWrite: 2, // path, content
	CmdClose: 3, // path, mode, content
}

// Request is one decoded command. Fields a command does not carry are left
// empty. Malformed is set when a message-oriented transport delivered the
// wrong number of fields.
type Request struct {
	Command   string
	Path      string
	Mode      string
	Content   string
	Malformed bool
}

// Known reports whether the command is one of the four protocol commands.
func (r Request) Known() bool {
	_, ok := fieldCounts[r.Command]
	return ok
}

// Frames lays the request out in wire order.
func (r Request) Frames() []string {
	switch r.Command {
	case CmdOpen:
		return []string{r.Command, r.Path, r.Mode}
	case CmdRead:
		return []string{r.Command, r.Path}
	case CmdWrite:
		return []string{r.Command, r.Path, r.Content}
	case CmdClose:
		return []string{r.Command, r.Path, r.Mode, r.Content}
	default:
		return []string{r.Command}
	}
}

// RequestFromFrames is the inverse of Frames for transports that deliver a
// whole request as one message.
func RequestFromFrames(frames []string) Request {
	if len(frames) == 0 {
		return Request{Malformed: true}
	}
	req := Request{Command: frames[0]}
	n, ok := fieldCounts[req.Command]
	if !ok {
		return req
	}
	fields := frames[1:]
	if len(fields) != n {
		req.Malformed = true
		return req
	}
	assignFields(&req, fields)
	return req
}

func assignFields(req *Request, fields []string) {
	switch req.Command {
	case CmdOpen:
		req.Path, req.Mode = fields[0], fields[1]
	case CmdRead:
		req.Path = fields[0]
	case CmdWrite:
		req.Path, req.Content = fields[0], fields[1]
	case CmdClose:
		req.Path, req.Mode, req.Content = fields[0], fields[1], fields[2]
	}
}

// Response is the ordered list of frames sent back for one request.
type Response struct {
	Fields []string
}

func OK(fields ...string) Response {
	return Response{Fields: append([]string{StatusOK}, fields...)}
}

func Error(code ErrorCode) Response {
	return Response{Fields: []string{code.Frame()}}
}

// Code returns the error code carried by the response, if any.
func (r Response) Code() (ErrorCode, bool) {
	if len(r.Fields) == 0 {
		return "", false
	}
	return ParseErrorFrame(r.Fields[0])
}

// Content returns the payload frame of an OPEN or READ success.
func (r Response) Content() string {
	if len(r.Fields) < 2 {
		return ""
	}
	return r.Fields[1]
}

// ReadRequest decodes the next request from f. For an unknown command only the
// command frame is consumed.
func ReadRequest(f Framer) (Request, error) {
	cmd, err := f.ReadFrame()
	if err != nil {
		return Request{}, err
	}
	req := Request{Command: cmd}
	n, ok := fieldCounts[cmd]
	if !ok {
		return req, nil
	}

	fields := make([]string, n)
	for i := range fields {
		if fields[i], err = f.ReadFrame(); err != nil {
			return Request{}, fmt.Errorf("reading %s field %d: %w", cmd, i+1, err)
		}
	}
	assignFields(&req, fields)
	return req, nil
}

// WriteRequest encodes req and flushes it.
func WriteRequest(f Framer, req Request) error {
	for _, frame := range req.Frames() {
		if err := f.WriteFrame(frame); err != nil {
			return err
		}
	}
	return f.Flush()
}

// WriteResponse encodes resp and flushes it.
func WriteResponse(f Framer, resp Response) error {
	for _, frame := range resp.Fields {
		if err := f.WriteFrame(frame); err != nil {
			return err
		}
	}
	return f.Flush()
}

// ReadResponse decodes the response to a request of the given command.
func ReadResponse(f Framer, command string) (Response, error) {
	status, err := f.ReadFrame()
	if err != nil {
		return Response{}, err
	}
	resp := Response{Fields: []string{status}}
	if _, isErr := ParseErrorFrame(status); isErr {
		return resp, nil
	}
	if status != StatusOK {
		return Response{}, fmt.Errorf("%w: %q", ErrUnexpectedResponse, status)
	}
	if command == CmdOpen || command == CmdRead {
		content, err := f.ReadFrame()
		if err != nil {
			return Response{}, fmt.Errorf("reading %s content: %w", command, err)
		}
		resp.Fields = append(resp.Fields, content)
	}
	return resp, nil
}
