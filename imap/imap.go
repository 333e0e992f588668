package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/mailbox-export/model"
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	StartTLS           bool
	InsecureSkipVerify bool
}

// Session is a logged-in IMAP connection exposing the account as a single store.
// Commands are issued one at a time; the session must not be shared between goroutines.
type Session struct {
	opts     Options
	client   *imapclient.Client
	logger   *slog.Logger
	cleanup  func()
	selected string
}

func Dial(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}

	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	options := &imapclient.Options{}

	if opts.UseTLS || opts.StartTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         opts.Host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	switch {
	case opts.UseTLS:
		client, err = imapclient.DialTLS(address, options)
	case opts.StartTLS:
		client, err = imapclient.DialStartTLS(address, options)
	default:
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(opts.Username, opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	if logger != nil {
		logger.Debug("imap connection established", "address", address, "user", opts.Username, "tls", opts.UseTLS)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	s := &Session{opts: opts, client: client, logger: logger}
	s.cleanup = func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				if logger != nil {
					logger.Warn("imap logout failed", "err", err)
				}
			}
		}
		if err := client.Close(); err != nil && logger != nil {
			logger.Debug("imap connection closed", "err", err)
		}
	}

	return s, nil
}

// StoreName is the name of the single store of the account.
func (s *Session) StoreName() string {
	return s.opts.Username + "@" + s.opts.Host
}

func (s *Session) Stores() ([]model.Store, error) {
	return []model.Store{&store{session: s, name: s.StoreName()}}, nil
}

func (s *Session) Close() error {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
	return nil
}
