// Package launch prepares the files the embedded game client reads before it
// connects to a server.
package launch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/glorpus-work/ofclient/internal/logger"
	pkgerrors "github.com/glorpus-work/ofclient/pkg/errors"
	"github.com/glorpus-work/ofclient/pkg/fsutil"
	"github.com/glorpus-work/ofclient/pkg/model"
)

const (
	// ServersFile is the server list maintained by the launcher UI.
	ServersFile = "servers.json"
	// DefaultPort is used when a server address carries no port.
	DefaultPort = 23000

	AssetInfoFile = "assetInfo.php"
	LoginInfoFile = "loginInfo.php"
	RankURLFile   = "rankurl.txt"
	SponsorFile   = "sponsor.php"
	ImagesFile    = "images.php"

	defaultSponsor = "assets/img/welcome.png"
	defaultImages  = "assets/img/"
)

// Server is one entry of servers.json.
type Server struct {
	UUID        string `json:"uuid"`
	Description string `json:"description"`
	IP          string `json:"ip"`
	Version     string `json:"version"`
	Endpoint    string `json:"endpoint,omitempty"`
}

type serversFile struct {
	Servers []Server `json:"servers"`
}

// LoadServers reads servers.json from userDir.
func LoadServers(userDir string) ([]Server, error) {
	path := filepath.Join(userDir, ServersFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrServerListParse, err)
	}
	var sf serversFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", pkgerrors.ErrServerListParse, path, err)
	}
	return sf.Servers, nil
}

// FindServer returns the server with the given uuid.
func FindServer(servers []Server, uuid string) (Server, error) {
	for _, s := range servers {
		if s.UUID == uuid {
			return s, nil
		}
	}
	return Server{}, fmt.Errorf("%s: %w", uuid, pkgerrors.ErrServerNotFound)
}

// VersionSource looks up client versions.
type VersionSource interface {
	Version(name string) (model.Version, error)
}

// Swapper moves a version's playable cache into the live slot.
type Swapper interface {
	SwapTo(version string) error
}

// Resolver resolves host names. *net.Resolver satisfies it.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Preparer writes the launch files for a server into WebRoot.
type Preparer struct {
	Versions VersionSource
	Swapper  Swapper // nil disables cache swapping
	Resolver Resolver
	WebRoot  string
}

// Result describes a prepared launch.
type Result struct {
	Server  Server
	Version model.Version
	Address string // host or resolved IPv4 address
	Port    int
}

// Endpoint returns address:port as written to the login file.
func (r Result) Endpoint() string {
	return net.JoinHostPort(r.Address, strconv.Itoa(r.Port))
}

// Prepare swaps the playable cache to the server's version and writes the
// asset, endpoint and login files. A failed swap is logged and does not stop
// the launch.
func (p *Preparer) Prepare(ctx context.Context, server Server) (Result, error) {
	version, err := p.Versions.Version(server.Version)
	if err != nil {
		return Result{}, pkgerrors.Wrapf(err, "server %s", server.UUID)
	}

	if p.Swapper != nil {
		if err := p.Swapper.SwapTo(version.Name); err != nil {
			logger.Warn("Error when swapping cache, it may get overwritten", logger.Fields{"version": version.Name, "error": err})
		}
	}

	if err := fsutil.EnsureDir(p.WebRoot); err != nil {
		return Result{}, pkgerrors.Wrap(err, "create web root")
	}
	if err := p.write(AssetInfoFile, version.URL); err != nil {
		return Result{}, err
	}
	if err := p.writeEndpointFiles(server.Endpoint); err != nil {
		return Result{}, err
	}

	host, port, err := ParseAddress(server.IP)
	if err != nil {
		return Result{}, err
	}
	address := p.resolve(ctx, host)

	result := Result{Server: server, Version: version, Address: address, Port: port}
	if err := p.write(LoginInfoFile, result.Endpoint()); err != nil {
		return Result{}, err
	}
	logger.Info("Launch prepared", logger.Fields{"server": server.Description, "version": version.Name, "endpoint": result.Endpoint()})
	return result, nil
}

func (p *Preparer) writeEndpointFiles(endpoint string) error {
	if endpoint != "" {
		ep := strings.Replace(endpoint, "https://", "http://", 1)
		for name, content := range map[string]string{
			RankURLFile: ep + "getranks",
			SponsorFile: ep + "upsell/sponsor.png",
			ImagesFile:  ep + "upsell/",
		} {
			if err := p.write(name, content); err != nil {
				return err
			}
		}
		return nil
	}

	// a previous server with an endpoint left its files behind
	rank := filepath.Join(p.WebRoot, RankURLFile)
	if _, err := os.Stat(rank); err != nil {
		return nil
	}
	if err := os.Remove(rank); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return pkgerrors.Wrapf(err, "remove %s", RankURLFile)
	}
	if err := p.write(SponsorFile, defaultSponsor); err != nil {
		return err
	}
	return p.write(ImagesFile, defaultImages)
}

func (p *Preparer) write(name, content string) error {
	if err := fsutil.WriteFileAtomic(filepath.Join(p.WebRoot, name), []byte(content), fsutil.FileModeDefault); err != nil {
		return pkgerrors.Wrapf(err, "write %s", name)
	}
	return nil
}

// resolve returns the first IPv4 address of host. Numeric hosts and lookup
// failures return host unchanged.
func (p *Preparer) resolve(ctx context.Context, host string) string {
	if strings.Trim(host, "0123456789.") == "" {
		logger.Debug("Address is an IP, skipping DNS lookup", logger.Fields{"host": host})
		return host
	}
	resolver := p.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	ips, err := resolver.LookupIP(ctx, "ip4", host)
	if err != nil || len(ips) == 0 {
		logger.Warn("Could not resolve server host", logger.Fields{"host": host, "error": err})
		return host
	}
	logger.Debug("Resolved server host", logger.Fields{"host": host, "ip": ips[0].String()})
	return ips[0].String()
}

// ParseAddress splits host[:port]. The port defaults to DefaultPort.
func ParseAddress(addr string) (host string, port int, err error) {
	addr = strings.TrimSpace(addr)
	host, portStr, found := strings.Cut(addr, ":")
	if host == "" {
		return "", 0, fmt.Errorf("%q: %w", addr, pkgerrors.ErrInvalidAddress)
	}
	if !found {
		return host, DefaultPort, nil
	}
	port, err = strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("%q: bad port: %w", addr, pkgerrors.ErrInvalidAddress)
	}
	return host, port, nil
}
