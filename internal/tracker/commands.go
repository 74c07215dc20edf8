package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/foxseedlab/readyup/internal/discord"
)

var timeOfDayRe = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)

func SlashCommandDefinitions() []discord.SlashCommandDefinition {
	return []discord.SlashCommandDefinition{
		{
			Name:        "eta",
			Description: commandETADescription,
			Options: []discord.SlashCommandOption{
				{Name: "minutes", Description: "Your ETA in minutes from now.", Type: discord.OptionTypeInteger},
				{Name: "time", Description: "Your ETA in HH:MM (24-hour).", Type: discord.OptionTypeString},
			},
		},
		{Name: "arrived", Description: commandArrivedDescription},
		{Name: "status", Description: commandStatusDescription},
		{
			Name:        "stats",
			Description: commandStatsDescription,
			Options: []discord.SlashCommandOption{
				{Name: "user", Description: "The user to get stats for (defaults to yourself).", Type: discord.OptionTypeUser},
			},
		},
		{Name: "leaderboard", Description: commandLeaderboardDescription},
		{Name: "ping", Description: commandPingDescription},
		{Name: "help", Description: commandHelpDescription},
	}
}

func (m *Manager) HandleSlashCommand(event discord.SlashCommandEvent) {
	if event.GuildID != m.cfg.DiscordGuildID {
		slog.Info("ignoring slash command for different guild", "event_guild_id", event.GuildID, "configured_guild_id", m.cfg.DiscordGuildID)
		return
	}
	ctx := context.Background()
	switch event.CommandName {
	case "eta":
		m.handleETACommand(ctx, event)
	case "arrived":
		m.handleArrivedCommand(ctx, event)
	case "status":
		m.handleStatusCommand(ctx, event)
	case "stats":
		m.handleStatsCommand(ctx, event)
	case "leaderboard":
		m.handleLeaderboardCommand(ctx, event)
	case "ping":
		m.respond(event.RespondEphemeral, messagePong)
	case "help":
		m.respond(event.RespondEphemeral, messageHelp)
	default:
		m.respond(event.RespondEphemeral, messageEphemeralUnknownCommand)
	}
}

func (m *Manager) handleETACommand(ctx context.Context, event discord.SlashCommandEvent) {
	target, err := m.parseTarget(event.Options)
	if err != nil {
		m.respond(event.RespondEphemeral, err.Error())
		return
	}
	eta, err := m.DeclareETA(ctx, event.ChannelID, event.UserID, target)
	if err != nil {
		m.respondDomainError(event, err)
		return
	}
	m.respond(event.Respond, declaredMessage(event.UserID, eta.Target, m.loc))
}

// parseTarget resolves the minutes/time options into an absolute target
// timestamp. An HH:MM already past today rolls over to tomorrow, like
// declaring "19:00" at 22:30 means tomorrow evening.
func (m *Manager) parseTarget(options map[string]string) (time.Time, error) {
	now := m.clock.Now().In(m.loc)
	if raw, ok := options["minutes"]; ok && raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 0 {
			return time.Time{}, errors.New(messageEphemeralMissingETA)
		}
		return now.Add(time.Duration(minutes) * time.Minute), nil
	}
	if raw, ok := options["time"]; ok && raw != "" {
		match := timeOfDayRe.FindStringSubmatch(raw)
		if match == nil {
			return time.Time{}, errors.New(messageEphemeralBadTimeFormat)
		}
		hour, _ := strconv.Atoi(match[1])
		minute, _ := strconv.Atoi(match[2])
		target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, m.loc)
		if target.Before(now) {
			target = target.Add(24 * time.Hour)
		}
		return target, nil
	}
	return time.Time{}, errors.New(messageEphemeralMissingETA)
}

func (m *Manager) handleArrivedCommand(ctx context.Context, event discord.SlashCommandEvent) {
	result, err := m.RecordArrival(ctx, event.ChannelID, event.UserID)
	if err != nil {
		m.respondDomainError(event, err)
		return
	}
	m.respond(event.Respond, arrivalMessage(event.UserID, result))
}

func (m *Manager) handleStatusCommand(ctx context.Context, event discord.SlashCommandEvent) {
	pending, err := m.GetStatus(ctx, event.ChannelID)
	if err != nil {
		m.respondDomainError(event, err)
		return
	}
	m.respond(event.Respond, statusMessage(pending, m.loc))
}

func (m *Manager) handleStatsCommand(ctx context.Context, event discord.SlashCommandEvent) {
	participant := event.UserID
	if target, ok := event.Options["user"]; ok && target != "" {
		participant = target
	}
	record, err := m.GetStats(ctx, participant)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.respond(event.RespondEphemeral, messageEphemeralNoStats)
			return
		}
		m.respondDomainError(event, err)
		return
	}
	m.respond(event.RespondEphemeral, statsMessage(record))
}

func (m *Manager) handleLeaderboardCommand(ctx context.Context, event discord.SlashCommandEvent) {
	records, err := m.GetLeaderboard(ctx)
	if err != nil {
		m.respondDomainError(event, err)
		return
	}
	if len(records) == 0 {
		m.respond(event.Respond, messageLeaderboardEmpty)
		return
	}
	m.respond(event.Respond, leaderboardMessage(records))
}

// HandleVoiceStateUpdate records an arrival when a participant with a
// pending ETA joins any voice channel in the guild.
func (m *Manager) HandleVoiceStateUpdate(event discord.VoiceStateEvent) {
	if event.GuildID != m.cfg.DiscordGuildID || event.UserIsBot || event.UserID == m.botUserID {
		return
	}
	joined := event.AfterChannelID != "" && event.BeforeChannelID == ""
	if !joined {
		return
	}
	ctx := context.Background()
	contextID, result, err := m.RecordArrivalAnywhere(ctx, event.UserID)
	if err != nil {
		if errors.Is(err, ErrNoActiveETA) {
			return
		}
		slog.Error("failed to record arrival via voice", "error", err, "user_id", event.UserID)
		return
	}
	msg := fmt.Sprintf("%s *(via voice)*", arrivalMessage(event.UserID, result))
	if err := m.discord.SendChannelMessage(contextID, msg); err != nil {
		slog.Error("failed to announce voice arrival", "error", err, "context_id", contextID, "user_id", event.UserID)
	}
}

// respondDomainError maps each domain and storage error to its reply;
// domain errors pass through verbatim, never swallowed or retried here.
func (m *Manager) respondDomainError(event discord.SlashCommandEvent, err error) {
	switch {
	case errors.Is(err, ErrDuplicateActiveETA):
		m.respond(event.RespondEphemeral, messageEphemeralDuplicateETA)
	case errors.Is(err, ErrTargetInPast):
		m.respond(event.RespondEphemeral, messageEphemeralTargetInPast)
	case errors.Is(err, ErrNoActiveETA):
		m.respond(event.RespondEphemeral, messageEphemeralNoETA)
	case errors.Is(err, ErrAlreadyTerminal):
		m.respond(event.RespondEphemeral, messageEphemeralAlreadyDone)
	case errors.Is(err, ErrUnknownContext):
		m.respond(event.RespondEphemeral, messageEphemeralNoSession)
	case errors.Is(err, ErrLockTimeout):
		m.respond(event.RespondEphemeral, messageEphemeralBusy)
	case errors.Is(err, ErrCorruptData):
		m.respond(event.RespondEphemeral, messageEphemeralStorageError)
	default:
		slog.Error("command failed", "error", err, "command", event.CommandName, "user_id", event.UserID)
		m.respond(event.RespondEphemeral, messageEphemeralStorageError)
	}
}

func (m *Manager) respond(respond func(string) error, content string) {
	if respond == nil {
		return
	}
	if err := respond(content); err != nil {
		slog.Error("failed to respond to interaction", "error", err)
	}
}
