package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gmp-go/core/internal/ban"
	"github.com/gmp-go/core/internal/clock"
	"github.com/gmp-go/core/internal/config"
	"github.com/gmp-go/core/internal/discord"
	"github.com/gmp-go/core/internal/dispatch"
	"github.com/gmp-go/core/internal/heartbeat"
	"github.com/gmp-go/core/internal/packet"
	"github.com/gmp-go/core/internal/registry"
	"github.com/gmp-go/core/internal/scheduler"
	"github.com/gmp-go/core/internal/scripting/bindings"
	"github.com/gmp-go/core/internal/scripting/events"
	"github.com/gmp-go/core/internal/scripting/exports"
	"github.com/gmp-go/core/internal/scripting/packetbuilder"
	scriptserver "github.com/gmp-go/core/internal/scripting/server"
	"github.com/gmp-go/core/internal/scripting/timers"
	"github.com/gmp-go/core/internal/tick"
	"github.com/gmp-go/core/internal/transport"
	"github.com/gmp-go/core/internal/wire"
)

const (
	ServerConfigPath = "config/server.toml"
	BansPath         = "bans.json"
	ResourcesDir     = "resources"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ServerConfigPath
	if p := os.Getenv("GMP_SERVER_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading server config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("gmp server starting", "name", cfg.Name, "port", cfg.Port, "map", cfg.Map)

	bansPath := BansPath
	if p := os.Getenv("GMP_BANS_FILE"); p != "" {
		bansPath = p
	}
	bans, err := ban.Load(bansPath)
	if err != nil {
		return fmt.Errorf("loading bans: %w", err)
	}

	t := transport.New()
	bans.InstallInto(t)
	if err := t.Start(cfg.Port, cfg.Slots); err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}
	defer t.Close()
	slog.Info("bans installed", "count", len(bans.Entries()))

	reg := registry.New()
	gameClock := clock.New(time.Minute)

	ev := events.New()
	tm := timers.New()
	exportsReg := exports.NewRegistry(exports.NewStack())
	sender := packetbuilder.NewSender(t, reg)

	discordCache := discord.NewCache()
	discordRep := &discordReplicator{t: t, reg: reg}

	scriptMgr := scriptserver.New(ResourcesDir, ev, tm, exportsReg, sender, bindings.ServerExtras{
		SendServerMessage: func(text string) {
			slog.Info("server message broadcast", "text", text)
		},
		UpdateDiscordActivity: func(state, details, largeImageKey, largeImageText, smallImageKey, smallImageText string) error {
			return discordCache.Update(discord.Presence{
				State:          state,
				Details:        details,
				LargeImageKey:  largeImageKey,
				LargeImageText: largeImageText,
				SmallImageKey:  smallImageKey,
				SmallImageText: smallImageText,
			}, discordRep)
		},
	})
	for _, name := range cfg.Scripts {
		if err := scriptMgr.LoadResource(name); err != nil {
			slog.Error("loading resource", "name", name, "error", err)
			continue
		}
		slog.Info("resource loaded", "name", name)
	}

	hooks := &scriptHooks{events: ev, discord: discordCache, discordRep: discordRep}

	d := dispatch.New(t, reg, dispatch.DefaultClassTable{}, hooks, dispatch.Config{
		MapName:                 cfg.Map,
		AllowModification:       cfg.AllowModification,
		BeUnconsciousBeforeDead: cfg.BeUnconsciousBeforeDead,
		AdminPasswd:             cfg.AdminPasswd,
	})
	d.Register()

	engine := tick.New(t, reg, gameClock, dispatch.DefaultClassTable{}, timerAdapter{tm}, tickHooks{events: ev}, cfg.TickRateMs, cfg.RespawnTimeSeconds)

	var gameInfoFlags wire.GameInfoFlags
	if cfg.QuickPots {
		gameInfoFlags |= wire.FlagQuickPots
	}
	if cfg.DropItems {
		gameInfoFlags |= wire.FlagDropItems
	}
	if cfg.HideMap {
		gameInfoFlags |= wire.FlagHideMap
	}
	engine.SetGameInfo(cfg.GameMode, gameInfoFlags)

	taskSched := scheduler.New()
	engine.SetTaskDrainer(taskSched)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting tick engine", "tick_rate_ms", cfg.TickRateMs)
		return engine.Run(gctx)
	})

	if cfg.Public {
		hb := heartbeat.New(heartbeat.Info{
			URL:  cfg.PublicListURL,
			Name: cfg.Name,
			Port: cfg.Port,
			Map:  cfg.Map,
		}, cfg.Slots, reg)
		g.Go(func() error {
			slog.Info("starting public-list heartbeat", "url", cfg.PublicListURL)
			return hb.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// discordReplicator implements discord.Replicator by broadcasting the
// DiscordActivity packet (opcode 157) to every in-game peer immediately.
type discordReplicator struct {
	t   *transport.Transport
	reg *registry.Registry
}

func (r *discordReplicator) BroadcastDiscordActivity(p discord.Presence) error {
	pkt := discordPacket(p)
	encoded, err := packet.Encode(wire.OpDiscordActivity, pkt)
	if err != nil {
		return fmt.Errorf("encoding DiscordActivity: %w", err)
	}
	r.reg.ForEachIngame(func(player *registry.Player) {
		if err := r.t.Send(encoded, transport.Immediate, transport.Reliable, 0, player.Connection); err != nil {
			slog.Warn("sending DiscordActivity", "peer", player.Connection, "error", err)
		}
	})
	return nil
}

// sendTo pushes the last-known presence to a single newly-joined peer
// rather than the whole player list.
func (r *discordReplicator) sendTo(p discord.Presence, peer wire.ConnectionHandle) {
	encoded, err := packet.Encode(wire.OpDiscordActivity, discordPacket(p))
	if err != nil {
		slog.Error("encoding DiscordActivity", "error", err)
		return
	}
	if err := r.t.Send(encoded, transport.Immediate, transport.Reliable, 0, peer); err != nil {
		slog.Warn("sending DiscordActivity to joiner", "peer", peer, "error", err)
	}
}

func discordPacket(p discord.Presence) wire.DiscordActivityPacket {
	return wire.DiscordActivityPacket{
		State:          p.State,
		Details:        p.Details,
		LargeImageKey:  p.LargeImageKey,
		LargeImageText: p.LargeImageText,
		SmallImageKey:  p.SmallImageKey,
		SmallImageText: p.SmallImageText,
	}
}

// timerAdapter bridges timers.Manager's ProcessTimers(now) to tick's
// argument-less TimerProcessor interface.
type timerAdapter struct {
	tm *timers.Manager
}

func (a timerAdapter) ProcessTimers() {
	a.tm.ProcessTimers(time.Now())
}

// scriptHooks bridges dispatch events onto the scripting host's event bus
// (§4.9.6's standard binding names).
type scriptHooks struct {
	dispatch.NoopHooks
	events     *events.Manager
	discord    *discord.Cache
	discordRep *discordReplicator
}

func (h *scriptHooks) OnPlayerConnect(p *registry.Player) {
	h.events.TriggerEvent("onPlayerConnect", p.ID)
}

func (h *scriptHooks) OnPlayerJoin(p *registry.Player) {
	h.events.TriggerEvent("onPlayerJoin", p.ID)
	if presence, ok := h.discord.Current(); ok {
		h.discordRep.sendTo(presence, p.Connection)
	}
}

func (h *scriptHooks) OnPlayerDisconnect(p *registry.Player) {
	h.events.TriggerEvent("onPlayerDisconnect", p.ID)
}

func (h *scriptHooks) OnPlayerHit(attacker wire.PlayerId, hasAttacker bool, victim wire.PlayerId, amount int16) {
	h.events.TriggerEvent("onPlayerHit", hitPayload{Attacker: attacker, HasAttacker: hasAttacker, Victim: victim, Amount: amount})
}

func (h *scriptHooks) OnPlayerKill(attacker, victim wire.PlayerId) {
	h.events.TriggerEvent("onPlayerKill", killPayload{Attacker: attacker, Victim: victim})
}

func (h *scriptHooks) OnPlayerDeath(victim wire.PlayerId, killer wire.PlayerId, hasKiller bool) {
	h.events.TriggerEvent("onPlayerDeath", deathPayload{Victim: victim, Killer: killer, HasKiller: hasKiller})
}

func (h *scriptHooks) OnCommand(p *registry.Player, command string) {
	h.events.TriggerEvent("onCommand", commandPayload{PlayerID: p.ID, Command: command})
}

func (h *scriptHooks) OnScriptPacket(sender wire.PlayerId, hasSender bool, payload []byte) {
	h.events.TriggerEvent("onScriptPacket", scriptPacketPayload{Sender: sender, HasSender: hasSender, Payload: payload})
}

type hitPayload struct {
	Attacker    wire.PlayerId
	HasAttacker bool
	Victim      wire.PlayerId
	Amount      int16
}

type killPayload struct {
	Attacker, Victim wire.PlayerId
}

type deathPayload struct {
	Victim, Killer wire.PlayerId
	HasKiller      bool
}

type commandPayload struct {
	PlayerID wire.PlayerId
	Command  string
}

type scriptPacketPayload struct {
	Sender    wire.PlayerId
	HasSender bool
	Payload   []byte
}

// tickHooks bridges the tick engine's own events onto the event bus.
type tickHooks struct {
	events *events.Manager
}

func (h tickHooks) OnPlayerRespawn(p *registry.Player) {
	h.events.TriggerEvent("onPlayerRespawn", p.ID)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug", "trace":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
