package tunnel

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig holds the parameters for reaching the SSH host with key-based
// authentication.
type SSHConfig struct {
	Host           string
	Port           int
	User           string
	KeyPath        string
	KnownHostsPath string // empty disables host key verification
	DialTimeout    time.Duration
}

// sshDialer is the production Dialer backed by golang.org/x/crypto/ssh.
type sshDialer struct {
	cfg SSHConfig
}

// NewSSHDialer returns a Dialer that connects to cfg.Host with public-key
// authentication read from cfg.KeyPath.
func NewSSHDialer(cfg SSHConfig) Dialer {
	return &sshDialer{cfg: cfg}
}

func (d *sshDialer) Dial(ctx context.Context) (Conn, error) {
	key, err := os.ReadFile(d.cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key %s: %w", d.cfg.KeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %s: %w", d.cfg.KeyPath, err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if d.cfg.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(d.cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("loading known_hosts %s: %w", d.cfg.KnownHostsPath, err)
		}
	}

	clientConfig := &ssh.ClientConfig{
		User:            d.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.cfg.DialTimeout,
	}

	addr := net.JoinHostPort(d.cfg.Host, fmt.Sprintf("%d", d.cfg.Port))
	nd := net.Dialer{Timeout: d.cfg.DialTimeout}
	tcp, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	conn, chans, reqs, err := ssh.NewClientConn(tcp, addr, clientConfig)
	if err != nil {
		tcp.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	return ssh.NewClient(conn, chans, reqs), nil
}
