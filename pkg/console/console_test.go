package console

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhiayang/ikura/pkg/registry"
)

func startTestServer(t *testing.T, shutdown context.CancelFunc) (addr string, stop func()) {
	t.Helper()
	reg := registry.New()
	srv := New("127.0.0.1:0", reg, shutdown)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx) }()

	return srv.Addr().String(), cancel
}

func TestSessionShowsPromptAndEchoesUnknownLines(t *testing.T) {
	addr, stop := startTestServer(t, func() {})
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	readPrompt(t, r)

	writeLine(t, conn, "hello world")
	require.Equal(t, "hello world", readLine(t, r))
	readPrompt(t, r)
}

func TestExitClosesSession(t *testing.T) {
	addr, stop := startTestServer(t, func() {})
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	readPrompt(t, r)

	writeLine(t, conn, "exit")
	require.Equal(t, "bye", readLine(t, r))
}

func TestStopInvokesShutdown(t *testing.T) {
	called := make(chan struct{}, 1)
	addr, stop := startTestServer(t, func() { called <- struct{}{} })
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	readPrompt(t, r)

	writeLine(t, conn, "stop")
	require.Equal(t, "stopping", readLine(t, r))

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("shutdown was not invoked")
	}
}

func TestEvalRunsExpression(t *testing.T) {
	addr, stop := startTestServer(t, func() {})
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	readPrompt(t, r)

	writeLine(t, conn, "eval 1 + 2")
	require.Equal(t, "3", readLine(t, r))
}

func readPrompt(t *testing.T, r *bufio.Reader) {
	t.Helper()
	buf := make([]byte, len(Prompt))
	_, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, Prompt, string(buf))
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line[:len(line)-1]
}

func writeLine(t *testing.T, conn net.Conn, s string) {
	t.Helper()
	_, err := conn.Write([]byte(s + "\n"))
	require.NoError(t, err)
}
