package tracker

import (
	"fmt"
	"strings"
	"time"
)

const (
	commandETADescription         = "Set your estimated time of arrival."
	commandArrivedDescription     = "Mark yourself as arrived and ready."
	commandStatusDescription      = "Show who is still expected in this channel."
	commandStatsDescription       = "Show punctuality statistics for a user."
	commandLeaderboardDescription = "Display the server-wide punctuality leaderboard."
	commandPingDescription        = "Check that the bot is alive."
	commandHelpDescription        = "Show how to use the ReadyUp bot."

	messageEphemeralUnknownCommand = ":warning: Unknown command."
	messageEphemeralMissingETA     = ":warning: Provide either `minutes` or `time` (HH:MM)."
	messageEphemeralBadTimeFormat  = ":warning: Invalid time format. Use `HH:MM` in 24-hour format (e.g. `21:30`)."
	messageEphemeralDuplicateETA   = ":warning: You already have an active ETA in this session. Arrive first, or wait for it to expire."
	messageEphemeralTargetInPast   = ":warning: That time is already in the past."
	messageEphemeralNoETA          = ":warning: You need to set an ETA with `/eta` before you can arrive."
	messageEphemeralAlreadyDone    = ":warning: You have already been marked as arrived or expired for this session."
	messageEphemeralNoSession      = "No active session in this channel. Use `/eta` to start one!"
	messageEphemeralNoStats        = "No recorded stats for that user yet."
	messageEphemeralStorageError   = ":rotating_light: Storage error. The operator has been alerted; please try again later."
	messageEphemeralBusy           = ":hourglass: The tracker is busy, please try again."
	messageLeaderboardEmpty        = "No stats have been recorded yet to generate a leaderboard."
	messagePong                    = ":ping_pong: Pong!"

	messageHelp = ":wave: **ReadyUp Bot**\n" +
		"`/eta minutes:<n>` or `/eta time:<HH:MM>` — declare when you will arrive.\n" +
		"`/arrived` — mark yourself as arrived (joining a voice channel also works).\n" +
		"`/status` — see who is still expected in this channel.\n" +
		"`/stats [user]` — punctuality statistics.\n" +
		"`/leaderboard` — server-wide punctuality ranking.\n" +
		"ETAs that pass their grace period without an arrival are recorded as no-shows."
)

func declaredMessage(participant string, target time.Time, loc *time.Location) string {
	return fmt.Sprintf(":alarm_clock: <@%s>, your ETA is set for **%s**.", participant, target.In(loc).Format("15:04"))
}

func arrivalMessage(participant string, result *ArrivalResult) string {
	if result.Outcome == OutcomeOnTime {
		return fmt.Sprintf(":white_check_mark: <@%s> has arrived on time!", participant)
	}
	return fmt.Sprintf(":sweat_smile: <@%s> has arrived **%d** minute(s) late.", participant, result.LatenessMinutes)
}

func lateReminderMessage(participant string) string {
	return fmt.Sprintf(":alarm_clock: <@%s>, your ETA has passed. You are now late!", participant)
}

func noShowMessage(participant string) string {
	return fmt.Sprintf(":hourglass: <@%s>, your ETA has expired and is now recorded as a no-show.", participant)
}

func statusMessage(pending []*UserETA, loc *time.Location) string {
	if len(pending) == 0 {
		return "Everyone has arrived or expired. Nobody is currently expected."
	}
	lines := make([]string, 0, len(pending)+1)
	lines = append(lines, ":hourglass_flowing_sand: **Still expected:**")
	for _, eta := range pending {
		lines = append(lines, fmt.Sprintf("- <@%s> (ETA %s)", eta.Participant, eta.Target.In(loc).Format("15:04")))
	}
	return strings.Join(lines, "\n")
}

func statsMessage(record *StatsRecord) string {
	summary := record.Summary()
	if !summary.HasData {
		return messageEphemeralNoStats
	}
	return fmt.Sprintf(
		":bar_chart: **Punctuality for <@%s>**\nTracked ETAs: **%d**\nOn-time: **%.1f%%**\nNo-shows: **%d**\nAvg lateness (arrivals only): **%.1f** min",
		record.Participant, summary.TotalTracked, summary.OnTimePct, summary.NoShows, summary.AvgLatenessMinutes,
	)
}

func leaderboardMessage(records []*StatsRecord) string {
	lines := []string{":trophy: **Punctuality Leaderboard** (fewest no-shows, then on-time %)"}
	medals := []string{":first_place:", ":second_place:", ":third_place:"}
	for i, record := range records {
		if i >= 10 {
			break
		}
		rank := fmt.Sprintf("**#%d**", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		summary := record.Summary()
		lines = append(lines, fmt.Sprintf("%s <@%s> — **%.1f%%** on-time | **%d** no-shows",
			rank, record.Participant, summary.OnTimePct, summary.NoShows))
	}
	return strings.Join(lines, "\n")
}
