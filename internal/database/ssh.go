package database

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultPostgresPort = "5432"

// SetupTunnel opens an SSH tunnel to the PostgreSQL host named in the source
// URL and returns the URL rewritten to the local end of the tunnel.
func SetupTunnel(config Config) (string, func(), error) {
	remoteAddr, err := remoteAddress(config.ConnectionString)
	if err != nil {
		return "", nil, err
	}

	key, err := os.ReadFile(config.SSHKey)
	if err != nil {
		return "", nil, fmt.Errorf("unable to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return "", nil, fmt.Errorf("unable to parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if config.SSHKnownHosts != "" {
		hostKeyCallback, err = knownhosts.New(config.SSHKnownHosts)
		if err != nil {
			return "", nil, fmt.Errorf("unable to load known hosts: %w", err)
		}
	}

	sshConfig := &ssh.ClientConfig{
		User: config.SSHUser,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
	}

	sshPort := config.SSHPort
	if sshPort == 0 {
		sshPort = 22
	}
	sshClient, err := ssh.Dial("tcp", net.JoinHostPort(config.SSHHost, strconv.Itoa(sshPort)), sshConfig)
	if err != nil {
		return "", nil, fmt.Errorf("unable to connect to SSH server: %w", err)
	}

	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		sshClient.Close()
		return "", nil, fmt.Errorf("unable to setup local listener: %w", err)
	}

	localPort := listener.Addr().(*net.TCPAddr).Port

	go func() {
		for {
			localConn, err := listener.Accept()
			if err != nil {
				log.Printf("ssh: accept stopped: %v", err)
				return
			}

			remoteConn, err := sshClient.Dial("tcp", remoteAddr)
			if err != nil {
				log.Printf("ssh: dial %s: %v", remoteAddr, err)
				localConn.Close()
				return
			}

			go copyConn(localConn, remoteConn)
			go copyConn(remoteConn, localConn)
		}
	}()

	connStr, err := tunnelURL(config.ConnectionString, localPort)
	if err != nil {
		listener.Close()
		sshClient.Close()
		return "", nil, err
	}

	cleanup := func() {
		listener.Close()
		sshClient.Close()
	}

	return connStr, cleanup, nil
}

// remoteAddress returns the host:port of a postgres:// URL.
func remoteAddress(source string) (string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("invalid source URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("SSH tunnel needs a postgres:// URL, got scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = defaultPostgresPort
	}
	return net.JoinHostPort(host, port), nil
}

// tunnelURL points source at localhost:localPort, keeping everything else.
func tunnelURL(source string, localPort int) (string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("invalid source URL: %w", err)
	}
	u.Host = net.JoinHostPort("localhost", strconv.Itoa(localPort))
	return u.String(), nil
}

// RedactURL hides the password of a URL-style connection string. Key/value
// connection strings are returned without their values.
func RedactURL(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		return "(connection string)"
	}
	return u.Redacted()
}

func copyConn(dst, src net.Conn) {
	defer dst.Close()
	defer src.Close()
	if _, err := io.Copy(dst, src); err != nil {
		log.Printf("ssh: copy: %v", err)
	}
}
