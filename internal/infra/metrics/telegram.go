package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	tgCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telegram",
		Name:      "commands_total",
		Help:      "Recognized commands, by command and outcome (accepted, rate_limited).",
	}, []string{"command", "outcome"})

	tgArchived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telegram",
		Name:      "messages_archived_total",
		Help:      "Messages written to the archive, by direction.",
	}, []string{"direction"})

	tgSends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telegram",
		Name:      "sends_total",
		Help:      "sendMessage attempts by parse mode and result.",
	}, []string{"parse_mode", "result"})
)

func init() { register(tgCommands, tgArchived, tgSends) }

func IncTelegramCommand(command string) {
	tgCommands.WithLabelValues(norm(command), "accepted").Inc()
}

// IncRateLimitTriggered counts a command refused by the per-user limiter.
func IncRateLimitTriggered(command string) {
	tgCommands.WithLabelValues(norm(command), "rate_limited").Inc()
}

func IncMessageArchived(direction string) {
	tgArchived.WithLabelValues(norm(direction)).Inc()
}

func IncTelegramSend(parseMode, result string) {
	if parseMode == "" {
		parseMode = "plain"
	}
	tgSends.WithLabelValues(norm(parseMode), norm(result)).Inc()
}
