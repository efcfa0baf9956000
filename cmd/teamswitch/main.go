// teamswitch - team switch requests, cooldowns and scramble lockdowns for Squad servers
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/ernie/teamswitch/internal/api"
	"github.com/ernie/teamswitch/internal/auth"
	"github.com/ernie/teamswitch/internal/bridge"
	"github.com/ernie/teamswitch/internal/config"
	"github.com/ernie/teamswitch/internal/discord"
	"github.com/ernie/teamswitch/internal/domain"
	"github.com/ernie/teamswitch/internal/logging"
	"github.com/ernie/teamswitch/internal/roster"
	"github.com/ernie/teamswitch/internal/storage"
	"github.com/ernie/teamswitch/internal/switcher"
)

var version = "dev"

const defaultConfigPath = "/etc/teamswitch/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "check":
		cmdCheck(os.Args[2:])
	case "diag":
		cmdDiag(os.Args[2:])
	case "clear":
		cmdClear(os.Args[2:])
	case "clearall":
		cmdClearAll(os.Args[2:])
	case "queue":
		cmdQueue(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "hash-password":
		cmdHashPassword(os.Args[2:])
	case "version":
		fmt.Printf("teamswitch %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: teamswitch <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                     Start the switch service")
	fmt.Println("  check <player>            Show cooldown and lockdown state for a player")
	fmt.Println("  diag                      Show store and session diagnostics")
	fmt.Println("  clear <player>            Clear a player's cooldown and lockdown")
	fmt.Println("  clearall                  Clear every stored cooldown and lockdown")
	fmt.Println("  queue                     List players queued for the match-end switch")
	fmt.Println("  token <username>          Print an API token for a configured admin")
	fmt.Println("  hash-password             Hash a password for the admins section of the config")
	fmt.Println("  version                   Show version")
	fmt.Println("  help                      Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/teamswitch/config.yml)")
	fmt.Println("  --url <url>        Base URL of the teamswitch server (default: derived from config)")
	fmt.Println("  --token <token>    API token (default: $TEAMSWITCH_TOKEN)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  teamswitch serve --config /etc/teamswitch/config.yml")
	fmt.Println("  export TEAMSWITCH_TOKEN=$(teamswitch token admin)")
	fmt.Println("  teamswitch check 76561198000000000")
	fmt.Println("  teamswitch clear \"Some Name\"")
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// cmdServe starts the switch service
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err != nil {
			fatal("no config file found at %s. Use --config to specify a config file.", defaultConfigPath)
		}
		cfgPath = defaultConfigPath
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatal("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fatal("%v", err)
	}
	if err := serve(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("teamswitch stopped")
	}
}

func serve(cfg *config.Config, logger zerolog.Logger) error {
	log := logging.Component(logger, "main")
	log.Info().Str("version", version).Msg("teamswitch starting")

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer store.Close()
	log.Info().Str("path", cfg.Database.Path).Msg("database initialized")

	natsURL := cfg.NATS.URL
	var embedded *server.Server
	if cfg.NATS.Embedded {
		embedded, err = bridge.StartEmbedded(cfg.NATS.EmbeddedPort)
		if err != nil {
			return err
		}
		defer embedded.Shutdown()
		natsURL = embedded.ClientURL()
		log.Info().Str("url", natsURL).Msg("embedded NATS server started")
	}

	br, err := bridge.Connect(natsURL, cfg.NATS, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := roster.New(br)
	svc := switcher.New(cfg.Switch, store, br, cache, logger)
	svc.Start(ctx)

	if err := cache.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial roster fetch failed, waiting for player events")
	}
	if err := br.Subscribe(ctx, svc); err != nil {
		br.Close()
		svc.Stop()
		return err
	}

	var sinks []api.EventSink
	if cfg.Discord.Enabled() {
		notifier, err := discord.New(cfg.Discord, logger)
		if err != nil {
			log.Error().Err(err).Msg("discord notices disabled")
		} else {
			go notifier.Run(ctx)
			sinks = append(sinks, notifier)
			log.Info().Str("channel", cfg.Discord.ChannelID).Msg("discord notices enabled")
		}
	}

	authService := auth.NewService(cfg.Auth)
	if len(cfg.Auth.Admins) == 0 {
		log.Warn().Msg("no admins configured, admin API logins are disabled")
	}

	router := api.NewRouter(svc, authService, logger, version, sinks...)
	router.StartEventFeed(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server: %w", err)
	}

	// Sequential shutdown: stop intake first, then background work
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown")
	}

	br.Close()
	svc.Stop()
	cancel()
	log.Info().Msg("shutdown complete")
	return runErr
}

// apiClient calls the admin API of a running server
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// loadClient parses the shared CLI flags and returns the remaining args
func loadClient(name string, args []string) (*apiClient, []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	baseURL := fs.String("url", "", "base URL of the teamswitch server")
	token := fs.String("token", os.Getenv("TEAMSWITCH_TOKEN"), "API token")
	fs.Parse(args)

	c := &apiClient{
		baseURL: "http://localhost:8080",
		token:   *token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	if cfg, err := config.Load(*configPath); err == nil {
		c.baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	} else if *baseURL == "" {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", *configPath, err)
	}
	if *baseURL != "" {
		c.baseURL = strings.TrimRight(*baseURL, "/")
	}
	if c.token == "" {
		fatal("an API token is required (--token or TEAMSWITCH_TOKEN; see 'teamswitch token')")
	}
	return c, fs.Args()
}

func (c *apiClient) do(method, path string, body, target interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(raw))
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func playerPath(ident string) string {
	return "/api/players/" + url.PathEscape(ident)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func cmdCheck(args []string) {
	c, rest := loadClient("check", args)
	if len(rest) != 1 {
		fatal("usage: teamswitch check <player>")
	}

	var st switcher.PlayerStatus
	if err := c.do("GET", playerPath(rest[0]), nil, &st); err != nil {
		fatal("%v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Player:\t%s (%s)\n", st.Name, st.PlayerID)
	fmt.Fprintf(w, "Locked:\t%v\t%s\n", st.Locked, formatOptionalTime(st.LockedUntil))
	fmt.Fprintf(w, "On cooldown:\t%v\t%s\n", st.OnCooldown, formatOptionalTime(st.NextSwitchAt))
	w.Flush()
}

func cmdDiag(args []string) {
	c, _ := loadClient("diag", args)

	var d switcher.Diagnostics
	if err := c.do("GET", "/api/diagnostics", nil, &d); err != nil {
		fatal("%v", err)
	}

	fmt.Printf("Database:      %s\n", d.DBStatus)
	fmt.Printf("Stored:        %d players\n", d.TotalPlayers)
	fmt.Printf("Active:        %d players\n", d.ActiveLocks)
	fmt.Printf("Queued:        %d switches\n", d.Queued)
	fmt.Printf("Session:       %d joined, %d double switches, %d disconnected\n",
		d.Session.Joined, d.Session.DoubleSwitch, d.Session.Disconnected)
	if len(d.Players) == 0 {
		return
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLAYER\tID\tLOCKED UNTIL\tNEXT SWITCH")
	for _, p := range d.Players {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.PlayerID, formatOptionalTime(p.LockedUntil), formatOptionalTime(p.NextSwitchAt))
	}
	w.Flush()
}

func cmdClear(args []string) {
	c, rest := loadClient("clear", args)
	if len(rest) != 1 {
		fatal("usage: teamswitch clear <player>")
	}

	var st switcher.PlayerStatus
	if err := c.do("DELETE", playerPath(rest[0])+"/cooldown", nil, &st); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Cleared cooldowns for %s (%s)\n", st.Name, st.PlayerID)
}

func cmdClearAll(args []string) {
	c, _ := loadClient("clearall", args)

	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do("DELETE", "/api/cooldowns", nil, &resp); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Cleared %d records\n", resp.Deleted)
}

func cmdQueue(args []string) {
	c, _ := loadClient("queue", args)

	var queue []domain.QueuedSwitch
	if err := c.do("GET", "/api/queue", nil, &queue); err != nil {
		fatal("%v", err)
	}
	if len(queue) == 0 {
		fmt.Println("No players queued for match end")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tPLAYER\tID\tQUEUED")
	for _, q := range queue {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", q.ID, q.PlayerName, q.PlayerID, q.CreatedAt.Local().Format("15:04:05"))
	}
	w.Flush()
}

// cmdToken signs an API token locally with the configured secret
func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fatal("usage: teamswitch token <username>")
	}
	username := fs.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	known := false
	for _, a := range cfg.Auth.Admins {
		if a.Username == username {
			known = true
			break
		}
	}
	if !known {
		fatal("%s is not listed under auth.admins", username)
	}

	token, err := auth.NewService(cfg.Auth).GenerateToken(username)
	if err != nil {
		fatal("signing token: %v", err)
	}
	fmt.Println(token)
}

// cmdHashPassword prompts for a password and prints its bcrypt hash
func cmdHashPassword(args []string) {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	fs.Parse(args)

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fatal("reading password: %v", err)
	}

	fmt.Fprint(os.Stderr, "Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fatal("reading password: %v", err)
	}

	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}
	if len(password) < 8 {
		fatal("password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		fatal("hashing password: %v", err)
	}
	fmt.Println(hash)
}
