package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/zackbart/nova/internal/config"
	"github.com/zackbart/nova/internal/logging"
	"github.com/zackbart/nova/internal/remote"
	"github.com/zackbart/nova/internal/ui"
)

var errNoHost = errors.New("no host given: use -host, -profile or -local")

type flags struct {
	profile   string
	host      string
	port      int
	user      string
	key       string
	path      string
	local     string
	state     string
	logLevel  string
	forcePass bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var f flags
	fs := flag.NewFlagSet("nova", flag.ContinueOnError)
	fs.StringVar(&f.profile, "profile", "", "connect with a saved profile")
	fs.StringVar(&f.host, "host", "", "SSH host")
	fs.IntVar(&f.port, "port", 0, "SSH port (default 22)")
	fs.StringVar(&f.user, "user", "", "SSH user (default $USER)")
	fs.StringVar(&f.key, "key", "", "private key file")
	fs.BoolVar(&f.forcePass, "password", false, "ask for a password even with a key")
	fs.StringVar(&f.path, "path", "", "remote directory to open")
	fs.StringVar(&f.local, "local", "", "browse a local directory instead of a remote host")
	fs.StringVar(&f.state, "state", "", "state file (default ~/.nova/state.yaml)")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, statePath, loadErr := config.Load(f.state)

	level := st.LogLevel()
	if f.logLevel != "" {
		level = f.logLevel
	}
	if err := logging.Init(logging.Config{Level: level, OutputPath: st.LogFile()}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
	}
	defer logging.Sync()
	log := logging.L()
	if loadErr != nil {
		log.Warn("state file unreadable, using defaults", zap.Error(loadErr))
	}

	var (
		store   remote.Store
		ep      remote.Endpoint
		profile string
	)
	if f.local != "" {
		store = remote.NewDirStore(f.local, log.Named("store"))
	} else {
		var err error
		ep, profile, err = endpoint(st, f)
		if err != nil {
			return err
		}
		if err := askSecrets(&ep, f.forcePass); err != nil {
			return err
		}
		store = remote.NewSFTPStore(log.Named("sftp"))
	}
	defer store.Disconnect()

	start := f.path
	if p, ok := st.Profile(profile); ok && start == "" && profile != "" {
		start = p.LastPath
	}

	log.Info("starting", zap.String("addr", ep.Addr()), zap.String("profile", profile), zap.String("local", f.local))
	m := ui.New(ui.Options{
		Store:     store,
		State:     st,
		StatePath: statePath,
		Endpoint:  ep,
		Profile:   profile,
		StartPath: start,
		Log:       log,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	final, runErr := p.Run()
	if fm, ok := final.(ui.Model); ok {
		st = fm.Persist()
	}
	if statePath != "" {
		if err := config.Save(statePath, st); err != nil {
			log.Warn("save state", zap.String("path", statePath), zap.Error(err))
		}
	}
	return runErr
}

// endpoint merges the chosen profile with the command line. Flags win over
// profile fields. Without -host or -profile the last used profile is taken.
func endpoint(st *config.State, f flags) (remote.Endpoint, string, error) {
	name := f.profile
	if name == "" && f.host == "" {
		name = st.UI.LastProfile
	}

	var ep remote.Endpoint
	if name != "" {
		p, ok := st.Profile(name)
		if !ok {
			if f.profile != "" {
				return ep, "", fmt.Errorf("unknown profile %q", name)
			}
			name = ""
		} else {
			ep = remote.Endpoint{
				Host:     p.Host,
				Port:     p.Port,
				Username: p.Username,
				KeyPath:  config.ExpandHome(p.KeyPath),
			}
		}
	}

	if f.host != "" {
		ep.Host = f.host
	}
	if f.port != 0 {
		ep.Port = f.port
	}
	if f.user != "" {
		ep.Username = f.user
	}
	if f.key != "" {
		ep.KeyPath = config.ExpandHome(f.key)
	}
	if ep.Username == "" {
		ep.Username = os.Getenv("USER")
	}
	if strings.TrimSpace(ep.Host) == "" {
		return ep, "", errNoHost
	}

	ep.KnownHosts = st.KnownHostsPath()
	ep.Timeout = st.Timeout()
	return ep, name, nil
}

// askSecrets reads a password, or the key's passphrase, from the terminal.
// Nothing is asked when stdin is not a terminal.
func askSecrets(ep *remote.Endpoint, forcePass bool) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}

	if ep.KeyPath != "" && remote.KeyNeedsPassphrase(ep.KeyPath) {
		secret, err := readSecret(fd, fmt.Sprintf("Passphrase for %s: ", ep.KeyPath))
		if err != nil {
			return err
		}
		ep.Passphrase = secret
	}
	if ep.KeyPath == "" || forcePass {
		secret, err := readSecret(fd, fmt.Sprintf("%s@%s's password: ", ep.Username, ep.Host))
		if err != nil {
			return err
		}
		ep.Password = secret
	}
	return nil
}

func readSecret(fd int, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return string(b), nil
}
