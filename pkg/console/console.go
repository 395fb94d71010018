// Package console implements the local administrative TCP server
// spec.md §6 names: one `net.Listener` accepting newline-delimited
// command sessions, each prefixed with the `λ ikura$ ` prompt. Grounded
// on the teacher's own accept-loop-per-connection shape in
// _examples/zilin-picoclaw/pkg/channels/maixcam/maixcam.go (net.Listen,
// a per-connection goroutine, a ctx-checked accept loop) generalised
// from MaixCam's JSON-framed device protocol to a plain line protocol.
package console

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhiayang/ikura/pkg/lang/eval"
	"github.com/zhiayang/ikura/pkg/lang/parser"
	"github.com/zhiayang/ikura/pkg/logger"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/registry"
)

// Prompt is written after every response, matching spec.md §6's literal
// `λ ikura$ ` session prompt.
const Prompt = "λ ikura$ "

// Server is the console's accept loop: one goroutine per session,
// stop-cancellation wired to the process's root context.Context.
type Server struct {
	addr     string
	registry *registry.Registry
	shutdown context.CancelFunc

	listener net.Listener
}

// New builds a Server listening on addr (host:port built from
// config.GlobalConfig.ConsolePort). shutdown is the root context's
// CancelFunc: the `stop` command calls it to bring the whole process
// down cleanly (spec.md §6: "stop (shut down the bot)").
func New(addr string, reg *registry.Registry, shutdown context.CancelFunc) *Server {
	return &Server{addr: addr, registry: reg, shutdown: shutdown}
}

// Listen binds s.addr, making Addr() available before Serve starts
// accepting connections. Separated from Serve so tests (and callers
// that want to log the resolved port when addr uses ":0") can observe
// the bound address before the accept loop blocks.
func (s *Server) Listen() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("console: listen on %s: %w", s.addr, err)
	}
	s.listener = lis
	return nil
}

// Addr returns the bound listener's address; valid only after Listen.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Run binds s.addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	return s.Serve(ctx)
}

// Serve accepts sessions on the already-bound listener until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	lis := s.listener
	defer lis.Close()

	logger.InfoCF("console", "listening", map[string]any{"addr": lis.Addr().String()})

	go func() {
		<-ctx.Done()
		_ = lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("console: accept: %w", err)
			}
		}
		go s.handleSession(ctx, conn)
	}
}

func (s *Server) handleSession(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// sessionID correlates this session's log lines without leaking the
	// remote address into every downstream log sink.
	sessionID := uuid.NewString()
	remote := conn.RemoteAddr().String()
	logger.InfoCF("console", "session opened", map[string]any{"remote": remote, "session": sessionID})
	defer logger.InfoCF("console", "session closed", map[string]any{"remote": remote, "session": sessionID})

	writePrompt(conn)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		reply, closeSession := s.handleLine(line)
		if reply != "" {
			fmt.Fprintln(conn, reply)
		}
		if closeSession {
			return
		}
		writePrompt(conn)
	}
}

func writePrompt(conn net.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	fmt.Fprint(conn, Prompt)
	_ = conn.SetWriteDeadline(time.Time{})
}

// handleLine implements spec.md §6's three recognised commands plus the
// `eval` supplement: `exit`/`q` end the session, `stop` shuts the whole
// process down, `eval <expr>` runs the same embedded-language evaluator
// the chat backends use, and anything else is echoed back verbatim.
func (s *Server) handleLine(line string) (reply string, closeSession bool) {
	switch line {
	case "exit", "q":
		return "bye", true
	case "stop":
		logger.InfoC("console", "stop command received, shutting down")
		if s.shutdown != nil {
			s.shutdown()
		}
		return "stopping", true
	}

	if rest, ok := strings.CutPrefix(line, "eval "); ok {
		return s.evalLine(rest), false
	}

	return line, false
}

func (s *Server) evalLine(src string) string {
	ctx := eval.NewContext(s.registry, "console", "console", model.ChannelRef{Backend: model.BackendConsole, ID: "console"}, nil, src, time.Now())

	node, err := parser.ParseExpr(src)
	if err != nil {
		return "error: " + err.Error()
	}
	v, err := eval.Eval(node, ctx, eval.NewScope())
	if err != nil {
		return "error: " + err.Error()
	}
	return registry.ValueToMessage(v).Render()
}
