package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// maxLineBytes bounds one inbound protocol line. Memory content is
// arbitrary JSON, so the default Scanner limit is too small.
const maxLineBytes = 4 * 1024 * 1024

// Server reads newline-delimited JSON-RPC envelopes from in, dispatches
// each on its own goroutine, and writes one response per line to out.
// Writes are serialized; response order follows completion order, not
// arrival order.
type Server struct {
	dispatcher *Dispatcher
	in         io.Reader
	out        io.Writer
	logger     *logrus.Logger

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewServer builds a server over the given streams, typically stdin and
// stdout.
func NewServer(dispatcher *Dispatcher, in io.Reader, out io.Writer, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Server{dispatcher: dispatcher, in: in, out: out, logger: logger}
}

// Serve processes requests until the input stream closes or ctx is
// cancelled. It waits for in-flight requests before returning.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(errorResponse(nil, CodeParseError, "malformed JSON"))
			continue
		}

		reqCopy := req
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if resp := s.dispatcher.Dispatch(ctx, &reqCopy); resp != nil {
				s.write(resp)
			}
		}()
	}

	s.wg.Wait()

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (s *Server) write(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode response")
		return
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(data); err != nil {
		s.logger.WithError(err).Error("failed to write response")
	}
}
