package fetcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "standard ftp url",
			url:      "ftp://ftp.example.com/exports/lwin.csv",
			wantHost: "ftp.example.com:21",
			wantPath: "/exports/lwin.csv",
		},
		{
			name:     "ftp url with port",
			url:      "ftp://ftp.example.com:2121/data/catalog.zip",
			wantHost: "ftp.example.com:2121",
			wantPath: "/data/catalog.zip",
		},
		{
			name:     "nested path",
			url:      "ftp://mirror.example.org/wine/reference/2025/lwin_full.xlsx",
			wantHost: "mirror.example.org:21",
			wantPath: "/wine/reference/2025/lwin_full.xlsx",
		},
		{
			name:    "http scheme rejected",
			url:     "http://example.com/file.csv",
			wantErr: true,
		},
		{
			name:    "empty path",
			url:     "ftp://ftp.example.com",
			wantErr: true,
		},
		{
			name:    "invalid url",
			url:     "://bad",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := splitFTPURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestNewFTPFetcher_DefaultTimeout(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{})
	assert.Equal(t, 30*time.Second, f.timeout)
}

// miniFTPServer speaks just enough FTP to exercise DownloadToFile:
// login, passive mode, RETR, QUIT.
type miniFTPServer struct {
	listener net.Listener
	fileData map[string]string // path -> content
	wg       sync.WaitGroup
}

func newMiniFTPServer(t *testing.T, files map[string]string) *miniFTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &miniFTPServer{
		listener: ln,
		fileData: files,
	}

	s.wg.Add(1)
	go s.serve()

	return s
}

func (s *miniFTPServer) addr() string {
	return s.listener.Addr().String()
}

func (s *miniFTPServer) close() {
	s.listener.Close() //nolint:errcheck
	s.wg.Wait()
}

func (s *miniFTPServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *miniFTPServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close() //nolint:errcheck

	conn.SetDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck

	writer := bufio.NewWriter(conn)
	reader := bufio.NewReader(conn)

	reply := func(format string, args ...any) {
		fmt.Fprintf(writer, format+"\r\n", args...) //nolint:errcheck
		writer.Flush()                              //nolint:errcheck
	}

	reply("220 Catalog mirror ready")

	var dataListener net.Listener

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		parts := strings.SplitN(line, " ", 2)
		cmd := strings.ToUpper(parts[0])
		arg := ""
		if len(parts) > 1 {
			arg = parts[1]
		}

		switch cmd {
		case "USER", "PASS":
			reply("230 User logged in")

		case "FEAT":
			reply("211-Features:")
			reply(" UTF8")
			reply("211 End")

		case "TYPE":
			reply("200 Type set to %s", arg)

		case "EPSV":
			var err error
			dataListener, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 Can't open data connection")
				continue
			}
			port := dataListener.Addr().(*net.TCPAddr).Port
			reply("229 Entering Extended Passive Mode (|||%d|)", port)

		case "PASV":
			var err error
			dataListener, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 Can't open data connection")
				continue
			}
			addr := dataListener.Addr().(*net.TCPAddr)
			reply("227 Entering Passive Mode (127,0,0,1,%d,%d)", addr.Port/256, addr.Port%256)

		case "RETR":
			if dataListener == nil {
				reply("425 Use PASV first")
				continue
			}

			content, ok := s.fileData[arg]
			if !ok {
				reply("550 File not found")
				dataListener.Close() //nolint:errcheck
				dataListener = nil
				continue
			}

			reply("150 Opening data connection")

			dataConn, err := dataListener.Accept()
			if err != nil {
				reply("425 Can't open data connection")
				continue
			}

			io.WriteString(dataConn, content) //nolint:errcheck
			dataConn.Close()                  //nolint:errcheck
			dataListener.Close()              //nolint:errcheck
			dataListener = nil

			reply("226 Transfer complete")

		case "QUIT":
			reply("221 Goodbye")
			return

		case "OPTS":
			reply("200 OK")

		default:
			reply("502 Command not implemented")
		}
	}
}

func TestFTPFetcher_DownloadToFile(t *testing.T) {
	srv := newMiniFTPServer(t, map[string]string{
		"/exports/lwin.csv": "LWIN,DISPLAY_NAME\n1012345,\"Drouhin, Clos des Mouches\"\n",
	})
	defer srv.close()

	f := NewFTPFetcher(FTPOptions{Timeout: 5 * time.Second})

	destPath := filepath.Join(t.TempDir(), "lwin.csv")
	ftpURL := fmt.Sprintf("ftp://%s/exports/lwin.csv", srv.addr())
	n, err := f.DownloadToFile(context.Background(), ftpURL, destPath)
	require.NoError(t, err)

	data, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, "LWIN,DISPLAY_NAME\n1012345,\"Drouhin, Clos des Mouches\"\n", string(data))
	assert.Equal(t, int64(len(data)), n)
}

func TestFTPFetcher_DownloadToFile_InvalidURL(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{Timeout: 5 * time.Second})

	_, err := f.DownloadToFile(context.Background(), "http://not-ftp/path", filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestFTPFetcher_DownloadToFile_ConnectionRefused(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{Timeout: 2 * time.Second})

	_, err := f.DownloadToFile(context.Background(), "ftp://127.0.0.1:19999/exports/lwin.csv", filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ftp: dial")
}

func TestFTPFetcher_DownloadToFile_FileNotFound(t *testing.T) {
	srv := newMiniFTPServer(t, map[string]string{
		"/existing.csv": "data",
	})
	defer srv.close()

	f := NewFTPFetcher(FTPOptions{Timeout: 5 * time.Second})

	ftpURL := fmt.Sprintf("ftp://%s/nonexistent.csv", srv.addr())
	_, err := f.DownloadToFile(context.Background(), ftpURL, filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ftp: retrieve")
}

func TestFTPFetcher_DownloadToFile_CreateFileError(t *testing.T) {
	srv := newMiniFTPServer(t, map[string]string{
		"/data.csv": "content",
	})
	defer srv.close()

	f := NewFTPFetcher(FTPOptions{Timeout: 5 * time.Second})

	ftpURL := fmt.Sprintf("ftp://%s/data.csv", srv.addr())
	_, err := f.DownloadToFile(context.Background(), ftpURL, "/nonexistent/dir/file.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create local file")
}
