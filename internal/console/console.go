// Package console — консоль администратора по SSH: ключ хоста (загрузка или
// генерация), авторизация по authorized_keys или паролю, построчная оболочка.
package console

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/shiwa/jetson-ds3231/internal/logger"
)

// Config — параметры SSH-сервера.
type Config struct {
	HostKey        string // путь к ключу хоста; если файла нет, ключ создаётся
	AuthorizedKeys string // файл authorized_keys; пусто — без входа по ключу
	Username       string
	Password       string // пусто — без входа по паролю
}

// Server — SSH-сервер консоли.
type Server struct {
	shell  *Shell
	config *ssh.ServerConfig
	logger *zap.SugaredLogger
}

// New готовит конфигурацию сервера и ключ хоста.
func New(cfg Config, shell *Shell) (*Server, error) {
	s := &Server{shell: shell, logger: logger.Named("ssh-server")}
	sc := &ssh.ServerConfig{}
	if cfg.AuthorizedKeys != "" {
		keys, err := loadAuthorizedKeys(cfg.AuthorizedKeys)
		if err != nil {
			return nil, err
		}
		sc.PublicKeyCallback = func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if c.User() == cfg.Username && keys[string(key.Marshal())] {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key for %q", c.User())
		}
	}
	if cfg.Password != "" {
		sc.PasswordCallback = func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			userOK := subtle.ConstantTimeCompare([]byte(c.User()), []byte(cfg.Username)) == 1
			passOK := subtle.ConstantTimeCompare(pass, []byte(cfg.Password)) == 1
			if userOK && passOK {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		}
	}
	if sc.PublicKeyCallback == nil && sc.PasswordCallback == nil {
		return nil, errors.New("console: no authentication method configured")
	}
	signer, err := s.hostKey(cfg.HostKey)
	if err != nil {
		return nil, err
	}
	sc.AddHostKey(signer)
	s.config = sc
	return s, nil
}

func loadAuthorizedKeys(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("console: read authorized keys: %w", err)
	}
	keys := make(map[string]bool)
	for len(data) > 0 {
		key, _, _, rest, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			break
		}
		keys[string(key.Marshal())] = true
		data = rest
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("console: no keys in %s", path)
	}
	return keys, nil
}

// hostKey загружает ключ хоста, а при неудаче создаёт новый и сохраняет его.
func (s *Server) hostKey(path string) (ssh.Signer, error) {
	if signer, ok := s.loadSSHKey(path); ok {
		return signer, nil
	}
	return s.generateNewSSHKey(path)
}

func (s *Server) loadSSHKey(path string) (ssh.Signer, bool) {
	if path == "" {
		return nil, false
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Errorf("SSH key read failed: %v", err)
		}
		return nil, false
	}
	signer, err := ssh.ParsePrivateKey(bytes)
	if err != nil {
		s.logger.Errorf("SSH key parse failed: %v", err)
		return nil, false
	}
	return signer, true
}

func (s *Server) generateNewSSHKey(path string) (ssh.Signer, error) {
	s.logger.Infof("Generating new SSH host key")
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("console: generate host key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("console: parse generated key: %w", err)
	}
	if path != "" {
		if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
			s.logger.Errorf("SSH key write failed: %s: %v", path, err)
		} else {
			s.logger.Infof("SSH host key written to %s", path)
		}
	}
	return signer, nil
}

// Run принимает соединения на addr до отмены ctx.
func (s *Server) Run(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("console: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve обслуживает соединения из listener до отмены ctx.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	s.logger.Infof("SSH console listening on %s", listener.Addr())
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.processConnection(conn)
	}
}

func (s *Server) processConnection(conn net.Conn) {
	defer conn.Close()
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		s.logger.Debugf("SSH handshake from %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	defer sconn.Close()
	s.logger.Infof("SSH login %s from %s", sconn.User(), sconn.RemoteAddr())
	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			continue
		}
		go s.session(ch, requests)
	}
}

type execPayload struct {
	Command string
}

// session обслуживает запросы канала: exec выполняет одну команду, shell
// запускает построчную оболочку. pty не выделяется, эхо и редактирование
// строки остаются на стороне клиента.
func (s *Server) session(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()
	for req := range requests {
		switch req.Type {
		case "env":
			_ = req.Reply(true, nil)
		case "exec":
			var p execPayload
			if err := ssh.Unmarshal(req.Payload, &p); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			status := 0
			if _, err := s.shell.Exec(p.Command, ch); err != nil {
				fmt.Fprintf(ch.Stderr(), "error: %v\n", err)
				status = 1
			}
			exit(ch, status)
			return
		case "shell":
			_ = req.Reply(true, nil)
			go ssh.DiscardRequests(requests)
			s.shell.Interact(ch, ch)
			exit(ch, 0)
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

func exit(ch ssh.Channel, status int) {
	_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
}

// Interact читает команды построчно из r до exit или конца ввода.
func (s *Shell) Interact(r io.Reader, w io.Writer) {
	fmt.Fprintf(w, "ds3231d %s console, type help\n", s.Version)
	sc := bufio.NewScanner(r)
	for {
		fmt.Fprint(w, "> ")
		if !sc.Scan() {
			return
		}
		quit, err := s.Exec(strings.TrimRight(sc.Text(), "\r"), w)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
		if quit {
			return
		}
	}
}
