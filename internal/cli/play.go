package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"aksara-duel-service/internal/config"
	"aksara-duel-service/internal/domain"
	"aksara-duel-service/internal/duel"
	"aksara-duel-service/internal/infra/memory"
	pgstore "aksara-duel-service/internal/infra/postgres"
	"aksara-duel-service/internal/logging"
	"aksara-duel-service/internal/scoring"
)

// NewPracticeCmd plays a local duel against a simulated opponent.
func NewPracticeCmd(configPath *string) *cobra.Command {
	var fast bool
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Play a duel against a simulated opponent in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := logging.NewTo(zapcore.Lock(os.Stderr), cfg.Log.Level, cfg.Log.Format)
			defer logger.Sync()

			dcfg, err := duelConfig(cmd.Context(), cfg, "practice-"+uuid.NewString())
			if err != nil {
				return err
			}
			if fast {
				dcfg.Tick = 250 * time.Millisecond
			}
			con := newConsole(cmd.OutOrStdout(), dcfg.Quiz.Len())
			m := duel.NewMachine(dcfg, duel.NewSimulatedFeed(dcfg), newEvaluator(cfg),
				duel.WithLogger(logger), duel.WithOnChange(con.onChange))
			defer m.Close()

			if err := m.Start(cmd.Context()); err != nil {
				return err
			}
			_, err = playInteractive(cmd.Context(), m, con, cmd.InOrStdin())
			return err
		},
	}
	cmd.Flags().BoolVar(&fast, "fast", false, "run the clock at four ticks per second")
	return cmd
}

// NewDuelCmd plays one side of a peer-to-peer duel over the channel relay.
func NewDuelCmd(configPath *string) *cobra.Command {
	var duelID, playerID string
	cmd := &cobra.Command{
		Use:   "duel",
		Short: "Join a peer-to-peer duel relayed over NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			if duelID == "" {
				return errors.New("--id is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := logging.NewTo(zapcore.Lock(os.Stderr), cfg.Log.Level, cfg.Log.Format)
			defer logger.Sync()

			relay, err := newRelay(cfg, logger)
			if err != nil {
				return err
			}
			defer relay.Close()

			// Both peers must see the same question order.
			cfg.Quiz.Shuffle = false
			dcfg, err := duelConfig(cmd.Context(), cfg, duelID)
			if err != nil {
				return err
			}
			if playerID == "" {
				playerID = "player-" + uuid.NewString()
			}
			con := newConsole(cmd.OutOrStdout(), dcfg.Quiz.Len())
			feed := duel.NewRelayFeed(relay, duelID, playerID, logger)
			m := duel.NewMachine(dcfg, feed, newEvaluator(cfg),
				duel.WithLogger(logger), duel.WithOnChange(con.onChange))
			defer m.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Waiting for an opponent on %s...\n", duel.ChannelName(duelID))
			if err := m.Start(cmd.Context()); err != nil {
				return err
			}
			_, err = playInteractive(cmd.Context(), m, con, cmd.InOrStdin())
			return err
		},
	}
	cmd.Flags().StringVar(&duelID, "id", "", "duel id shared with the opponent")
	cmd.Flags().StringVar(&playerID, "player", "", "player id announced to the opponent")
	return cmd
}

func duelConfig(ctx context.Context, cfg config.Config, duelID string) (duel.Config, error) {
	quiz, err := loadQuiz(ctx, cfg)
	if err != nil {
		return duel.Config{}, err
	}
	if cfg.Quiz.Shuffle {
		quiz = quiz.Shuffled(rand.New(rand.NewSource(time.Now().UnixNano())))
	}
	return duel.Config{
		DuelID:      duelID,
		Quiz:        quiz,
		InitialTime: cfg.Duel.InitialTime,
		Countdown:   cfg.Duel.Countdown,
	}, nil
}

func loadQuiz(ctx context.Context, cfg config.Config) (domain.QuizSet, error) {
	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return domain.QuizSet{}, err
		}
		defer pool.Close()
		loader = pgstore.NewQuizLoader(pool)
	}
	quiz, err := loader.LoadQuiz(ctx, cfg.Quiz.ID)
	if err != nil {
		return domain.QuizSet{}, err
	}
	return quiz, quiz.Validate()
}

// console renders machine transitions as terminal lines.
type console struct {
	out   io.Writer
	total int

	mu       sync.Mutex
	last     duel.View
	done     chan struct{}
	finished bool
}

func newConsole(out io.Writer, total int) *console {
	return &console{out: out, total: total, done: make(chan struct{})}
}

func (c *console) onChange(v duel.View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	prev := c.last
	c.last = v

	switch v.State {
	case duel.StateCountdown:
		if prev.State != duel.StateCountdown || prev.Countdown != v.Countdown {
			fmt.Fprintf(c.out, "Starting in %d...\n", v.Countdown)
		}
	case duel.StatePlaying:
		if v.Question != nil && (prev.State != duel.StatePlaying || prev.Question == nil || prev.Question.ID != v.Question.ID) {
			c.printQuestion(v)
		}
		if v.TimeLeft != prev.TimeLeft && v.TimeLeft > 0 && v.TimeLeft%30 == 0 {
			fmt.Fprintf(c.out, "%ds left\n", v.TimeLeft)
		}
	case duel.StateWaitingForFinish:
		if prev.State != duel.StateWaitingForFinish {
			fmt.Fprintf(c.out, "All answered with %ds left. Waiting for your opponent...\n", v.TimeLeft)
		}
	case duel.StateFinished:
		c.printResult(v)
		c.finished = true
		close(c.done)
		return
	}
	if v.Opponent.Progress != prev.Opponent.Progress {
		fmt.Fprintf(c.out, "Opponent answered %d/%d\n", v.Opponent.Progress, c.total)
	}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) printQuestion(v duel.View) {
	q := v.Question
	fmt.Fprintf(c.out, "[%d/%d] %s (%ds left)\n", v.Self.Progress+1, c.total, q.Prompt, v.TimeLeft)
	if q.Type == domain.QuestionDrawing {
		fmt.Fprintf(c.out, "  enter the path of an image showing %s\n", q.TargetGlyph)
		return
	}
	for i, opt := range q.Options {
		fmt.Fprintf(c.out, "  %d) %s\n", i+1, opt)
	}
}

func (c *console) printResult(v duel.View) {
	if v.Result == nil {
		return
	}
	switch v.Result.Outcome {
	case scoring.OutcomeFirst:
		fmt.Fprintln(c.out, "You win!")
	case scoring.OutcomeSecond:
		fmt.Fprintln(c.out, "You lose.")
	default:
		fmt.Fprintln(c.out, "It's a tie.")
	}
	fmt.Fprintf(c.out, "Score %d vs %d (%d/%d correct)\n",
		v.Result.FirstRounded, v.Result.SecondRounded, v.Self.Correct, c.total)
}

// playInteractive feeds answers read from in to m until the duel finishes.
func playInteractive(ctx context.Context, m *duel.Machine, con *console, in io.Reader) (duel.View, error) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return m.View(), ctx.Err()
		case <-con.done:
			return m.View(), nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			v := m.View()
			if v.State != duel.StatePlaying || v.Question == nil {
				con.printf("not accepting answers while %s\n", v.State)
				continue
			}
			sub, err := parseAnswer(*v.Question, line)
			if err != nil {
				con.printf("%v\n", err)
				continue
			}
			if err := m.Submit(ctx, sub); err != nil {
				con.printf("answer rejected: %v\n", err)
			}
		}
	}
}

// parseAnswer turns a terminal line into a submission. Multiple choice takes
// an option number or the glyph itself; drawings take an image path.
func parseAnswer(q domain.Question, line string) (domain.Submission, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return domain.Submission{}, domain.ErrInvalidAnswer
	}
	if q.Type == domain.QuestionDrawing {
		data, err := os.ReadFile(line)
		if err != nil {
			return domain.Submission{}, fmt.Errorf("read drawing: %w", err)
		}
		return domain.Submission{Drawing: data}, nil
	}
	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(q.Options) {
			return domain.Submission{}, fmt.Errorf("pick an option between 1 and %d", len(q.Options))
		}
		return domain.Submission{AnswerIndex: n - 1, Answer: q.Options[n-1]}, nil
	}
	return domain.Submission{AnswerIndex: -1, Answer: line}, nil
}
