package transfer

import (
	"context"
	"io"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ftpServer answers the subset of FTP the client uses: login, binary
// mode, extended passive data connections, RETR and STOR.
type ftpServer struct {
	addr string

	mu     sync.Mutex
	files  map[string][]byte
	logins []string
}

func newFTPServer(t *testing.T, files map[string][]byte) *ftpServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	if files == nil {
		files = map[string][]byte{}
	}
	s := &ftpServer{addr: listener.Addr().String(), files: files}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return s
}

func (s *ftpServer) file(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contents, ok := s.files[path]
	return contents, ok
}

func (s *ftpServer) Logins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logins...)
}

func (s *ftpServer) serve(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	reply := func(format string, args ...interface{}) {
		_ = tp.PrintfLine(format, args...)
	}

	var user string
	var data net.Listener
	closeData := func() {
		if data != nil {
			data.Close()
			data = nil
		}
	}
	defer closeData()

	reply("220 ready")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb, arg := line, ""
		if i := strings.IndexByte(line, ' '); i >= 0 {
			verb, arg = line[:i], line[i+1:]
		}

		switch verb {
		case "USER":
			user = arg
			reply("331 password required")
		case "PASS":
			s.mu.Lock()
			s.logins = append(s.logins, user+":"+arg)
			s.mu.Unlock()
			reply("230 logged in")
		case "TYPE":
			reply("200 type set")
		case "EPSV":
			closeData()
			if data, err = net.Listen("tcp", "127.0.0.1:0"); err != nil {
				reply("425 no data connection")
				continue
			}
			reply("229 Entering Extended Passive Mode (|||%d|)", data.Addr().(*net.TCPAddr).Port)
		case "RETR":
			contents, ok := s.file(arg)
			if !ok || data == nil {
				closeData()
				reply("550 %s: no such file", arg)
				continue
			}
			reply("150 sending")
			if dc, err := data.Accept(); err == nil {
				_, _ = dc.Write(contents)
				dc.Close()
			}
			closeData()
			reply("226 transfer complete")
		case "STOR":
			if data == nil {
				reply("425 no data connection")
				continue
			}
			reply("150 receiving")
			if dc, err := data.Accept(); err == nil {
				contents, _ := io.ReadAll(dc)
				dc.Close()
				s.mu.Lock()
				s.files[arg] = contents
				s.mu.Unlock()
			}
			closeData()
			reply("226 transfer complete")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 %s not implemented", verb)
		}
	}
}

func TestFTPFromRemoteLocation(t *testing.T) {
	// Mock
	server := newFTPServer(t, map[string][]byte{"/outgoing/scene.tar.gz": []byte("scene data")})
	client, _ := newTestClient()
	local := filepath.Join(t.TempDir(), "scene.tar.gz")

	// Tested code
	err := client.FTPFromRemoteLocation(context.Background(), "espa", "p%40ss", server.addr, "outgoing/scene.tar.gz", local)

	// Asserts
	require.NoError(t, err)
	contents, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "scene data", string(contents))
	assert.Equal(t, []string{"espa:p@ss"}, server.Logins())
}

func TestFTPFromRemoteLocation_MissingFile(t *testing.T) {
	server := newFTPServer(t, nil)
	client, _ := newTestClient()

	err := client.FTPFromRemoteLocation(context.Background(), "espa", "secret", server.addr, "/missing.tar.gz",
		filepath.Join(t.TempDir(), "missing.tar.gz"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETR /missing.tar.gz")
	assert.Contains(t, err.Error(), "no such file")
}

func TestFTPToRemoteLocation(t *testing.T) {
	// Mock
	server := newFTPServer(t, nil)
	client, _ := newTestClient()
	local := filepath.Join(t.TempDir(), "product.tar.gz")
	writeFile(t, local, "product data", 0644)

	// Tested code
	err := client.FTPToRemoteLocation(context.Background(), "espa", "secret", local, server.addr, "incoming/product.tar.gz")

	// Asserts
	require.NoError(t, err)
	contents, ok := server.file("/incoming/product.tar.gz")
	require.True(t, ok)
	assert.Equal(t, "product data", string(contents))
	assert.Equal(t, []string{"espa:secret"}, server.Logins())
}

func TestTransferFile_FTPPull(t *testing.T) {
	server := newFTPServer(t, map[string][]byte{"/remote/file": []byte("remote")})
	client, runner := newTestClient()
	dst := filepath.Join(t.TempDir(), "dst")

	err := client.TransferFile(context.Background(), server.addr, "/remote/file", Localhost, dst,
		&Credentials{Username: "user", Password: "pw"}, nil)

	require.NoError(t, err)
	assert.Empty(t, runner.Calls(), "no scp fallback")
	contents, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "remote", string(contents))
}
