package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sambeau/flume/pkg/flume/conncache"
)

type sftpConn struct {
	client *sftp.Client
	ssh    *ssh.Client
}

func (c *sftpConn) close() error {
	err := c.client.Close()
	if serr := c.ssh.Close(); err == nil {
		err = serr
	}
	return err
}

type sftpDialer struct {
	opts  Options
	cache *conncache.Cache[*sftpConn]
}

func newSFTPDialer(opts Options) *sftpDialer {
	return &sftpDialer{
		opts: opts,
		cache: conncache.New(conncache.Options[*sftpConn]{
			MaxSize: 8,
			TTL:     15 * time.Minute,
			Health: func(c *sftpConn) error {
				_, err := c.client.Getwd()
				return err
			},
			Close: func(c *sftpConn) error { return c.close() },
		}),
	}
}

func (d *sftpDialer) open(ctx context.Context, location string) (io.ReadCloser, error) {
	conn, p, err := d.connect(ctx, location)
	if err != nil {
		return nil, err
	}
	return conn.client.Open(p)
}

func (d *sftpDialer) create(ctx context.Context, location string) (io.WriteCloser, error) {
	conn, p, err := d.connect(ctx, location)
	if err != nil {
		return nil, err
	}
	return conn.client.Create(p)
}

func (d *sftpDialer) close() error {
	return d.cache.Close()
}

// connect returns a cached connection for the URL's user and host, and the
// remote path.
func (d *sftpDialer) connect(ctx context.Context, location string) (*sftpConn, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, "", err
	}
	if u.Path == "" {
		return nil, "", errors.New("missing remote path")
	}
	user := u.User.Username()
	if user == "" {
		user = os.Getenv("USER")
	}
	port := u.Port()
	if port == "" {
		port = "22"
	}
	addr := net.JoinHostPort(u.Hostname(), port)

	conn, err := d.cache.GetOrOpen(user+"@"+addr, func() (*sftpConn, error) {
		return d.dial(ctx, u, user, addr)
	})
	if err != nil {
		return nil, "", err
	}
	return conn, u.Path, nil
}

func (d *sftpDialer) dial(ctx context.Context, u *url.URL, user, addr string) (*sftpConn, error) {
	auth, err := d.authMethods(u)
	if err != nil {
		return nil, err
	}
	hostKey, err := d.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         d.opts.SFTPTimeout,
	}

	dialer := net.Dialer{Timeout: d.opts.SFTPTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(nc, addr, config)
	if err != nil {
		nc.Close()
		return nil, err
	}
	sshClient := ssh.NewClient(c, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, err
	}
	return &sftpConn{client: client, ssh: sshClient}, nil
}

func (d *sftpDialer) authMethods(u *url.URL) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	keys := []string{d.opts.IdentityFile}
	if d.opts.IdentityFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			keys = []string{
				filepath.Join(home, ".ssh", "id_ed25519"),
				filepath.Join(home, ".ssh", "id_ecdsa"),
				filepath.Join(home, ".ssh", "id_rsa"),
			}
		}
	}
	var signers []ssh.Signer
	for _, path := range keys {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if d.opts.IdentityFile != "" {
				return nil, err
			}
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) && d.opts.IdentityFile == "" {
				continue
			}
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	if password, ok := u.User.Password(); ok {
		methods = append(methods, ssh.Password(password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no SSH credentials for %s", u.Host)
	}
	return methods, nil
}

func (d *sftpDialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.opts.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := d.opts.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return callback, nil
}
