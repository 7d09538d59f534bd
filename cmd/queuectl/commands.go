package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"veritheo-bot/internal/config"
	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/similarity"
	"veritheo-bot/internal/infra/api"
	"veritheo-bot/internal/infra/api/apiv1"
	"veritheo-bot/internal/infra/db"
	"veritheo-bot/internal/infra/logging"
	"veritheo-bot/internal/usecase"
)

type openFunc func(ctx context.Context, cfg config.DatabaseConfig, logger *zerolog.Logger) (*db.Stores, error)

type cli struct {
	cfgPath string
	dev     bool
	open    openFunc

	cfg *config.Config
	log *zerolog.Logger
}

func newRootCmd(open openFunc) *cobra.Command {
	c := &cli{open: open}
	root := &cobra.Command{
		Use:          "queuectl",
		Short:        "Inspect and operate the veritheo LLM job queue",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(c.cfgPath, c.dev)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.log = logging.NewWithWriter(cfg.Log, cfg.Runtime.Dev, cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", "config.yaml", "path to YAML config file")
	root.PersistentFlags().BoolVar(&c.dev, "dev", false, "console logs")

	root.AddCommand(
		c.statsCmd(),
		c.showCmd(),
		c.enqueueCmd(),
		c.retryCmd(),
		c.requeueCmd(),
		c.guardCheckCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) withStores(cmd *cobra.Command, fn func(ctx context.Context, s *db.Stores) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := c.open(ctx, c.cfg.Database, c.log)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count jobs by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStores(cmd, func(ctx context.Context, s *db.Stores) error {
				counts, err := s.Jobs.CountByStatus(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "STATUS\tJOBS")
				total := 0
				for _, st := range []model.LLMJobStatus{
					model.LLMJobStatusPending,
					model.LLMJobStatusProcessing,
					model.LLMJobStatusDone,
					model.LLMJobStatusFailed,
				} {
					fmt.Fprintf(tw, "%s\t%d\n", st, counts[st])
					total += counts[st]
				}
				fmt.Fprintf(tw, "total\t%d\n", total)
				return tw.Flush()
			})
		},
	}
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print one job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return c.withStores(cmd, func(ctx context.Context, s *db.Stores) error {
				job, err := s.Jobs.FindByID(ctx, id)
				if err != nil {
					return jobError(id, err)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(apiv1.ToJob(job))
			})
		},
	}
}

func (c *cli) enqueueCmd() *cobra.Command {
	var (
		kind      string
		chatID    int64
		messageID int
		question  string
		author    string
		userID    int64
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Insert a pending job",
		Long: `Insert a pending job. A running bot picks it up on its next poll and
replies in the given chat to the given message.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := model.ParseLLMJobKind(kind)
			if err != nil {
				return err
			}
			if chatID == 0 {
				return errors.New("--chat is required")
			}
			if strings.TrimSpace(question) == "" && k != model.LLMJobKindHeresy {
				return errors.New("--question is required")
			}
			payload := model.LLMJobPayload{Question: question, AuthorName: author, UserID: userID}
			return c.withStores(cmd, func(ctx context.Context, s *db.Stores) error {
				id, err := s.Jobs.Enqueue(ctx, k, chatID, messageID, payload)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued job %d (%s)\n", id, k)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(model.LLMJobKindAsk), "job kind: "+strings.Join(jobKinds(), ", "))
	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat id")
	cmd.Flags().IntVar(&messageID, "message", 0, "message id to reply to")
	cmd.Flags().StringVar(&question, "question", "", "prompt text")
	cmd.Flags().StringVar(&author, "author", "", "author name for verify, fallacy_detector and roast")
	cmd.Flags().Int64Var(&userID, "user", 0, "target user id for heresy")
	return cmd
}

func (c *cli) retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Put a failed job back in the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return c.withStores(cmd, func(ctx context.Context, s *db.Stores) error {
				if err := s.Jobs.Retry(ctx, id); err != nil {
					return jobError(id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %d is pending again\n", id)
				return nil
			})
		},
	}
}

func (c *cli) requeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue-orphaned",
		Short: "Move every processing job back to pending",
		Long: `Move every processing job back to pending. The bot does this on start;
run it by hand only while no bot instance is running, otherwise in-flight
jobs are handed out twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStores(cmd, func(ctx context.Context, s *db.Stores) error {
				n, err := s.Jobs.RequeueOrphaned(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %d job(s)\n", n)
				return nil
			})
		},
	}
}

func (c *cli) guardCheckCmd() *cobra.Command {
	var chatID int64
	cmd := &cobra.Command{
		Use:   "guard-check <prompt>",
		Short: "Run the self-reference guard against a chat's bot messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if chatID == 0 {
				return errors.New("--chat is required")
			}
			prompt := strings.Join(args, " ")
			return c.withStores(cmd, func(ctx context.Context, s *db.Stores) error {
				g := usecase.NewGuardUseCase(s.Messages, usecase.GuardConfig{
					Options: similarity.Options{
						Threshold:                     c.cfg.Guard.Threshold,
						ContainmentThreshold:          c.cfg.Guard.ContainmentThreshold,
						MinPromptTokensForContainment: c.cfg.Guard.MinPromptTokensForContainment,
						MinSubstringLength:            c.cfg.Guard.MinSubstringLength,
					},
					PageSize: c.cfg.Guard.PageSize,
					MaxScan:  c.cfg.Guard.MaxScan,
				}, c.log)
				res, err := g.Check(ctx, chatID, prompt)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "blocked\t%t\n", res.Blocked)
				fmt.Fprintf(tw, "reason\t%s\n", res.Reason)
				fmt.Fprintf(tw, "similarity\t%.3f\n", res.Similarity)
				if res.MatchedMessageID != 0 {
					fmt.Fprintf(tw, "matched_message\t%d\n", res.MatchedMessageID)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat id")
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := api.NewAuthManager(c.cfg.Admin.JWTSecret).Mint(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "queuectl", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func parseJobID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return id, nil
}

func jobError(id int64, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("job %d not found", id)
	case errors.Is(err, domain.ErrInvalidState):
		return fmt.Errorf("job %d cannot be retried: %w", id, err)
	}
	return err
}

func jobKinds() []string {
	out := make([]string, 0, len(model.LLMJobKinds()))
	for _, k := range model.LLMJobKinds() {
		out = append(out, string(k))
	}
	return out
}
