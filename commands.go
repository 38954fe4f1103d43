package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"promptarena/database"
	"promptarena/embedding"
	"promptarena/game"
	"promptarena/imageprocessor"
	"promptarena/llm"
	"promptarena/metrics"
	"promptarena/scanner"
	"promptarena/server"
	"promptarena/similarity"
	"promptarena/types"
	"promptarena/utils"
)

var (
	metricName  string
	weightsSpec string
	jsonOutput  bool
	targetPath  string
	folderPath  string
	rankLimit   int
	threshold   string
	sessionID   string
	serveAddr   string
	savePath    string
)

var compareCmd = &cobra.Command{
	Use:   "compare IMAGE1 IMAGE2",
	Short: "Print the loss between two images",
	Args:  cobra.ExactArgs(2),
	RunE:  handleCompareCommand,
}

var detailCmd = &cobra.Command{
	Use:   "detail IMAGE1 IMAGE2",
	Short: "Print the per-metric similarity report of two images",
	Args:  cobra.ExactArgs(2),
	RunE:  handleDetailCommand,
}

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank every image in a folder by loss against a target",
	Long: "Rank every image in a folder by loss against a target.\n\nRecognised extensions: " +
		strings.Join(imageprocessor.GetSupportedExtensions(), " "),
	Args: cobra.NoArgs,
	RunE:  handleRankCommand,
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Play the prompt-to-image matching game, one prompt per input line",
	Args:  cobra.NoArgs,
	RunE:  handleMatchCommand,
}

var defendCmd = &cobra.Command{
	Use:   "defend",
	Short: "Play the keyword attack/defense game on standard input",
	Long: `Reads the keyword from the first line, the defense prompt from the second
line and one attack per following line.`,
	Args: cobra.NoArgs,
	RunE: handleDefendCommand,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the recorded attempts and attacks of a session",
	Args:  cobra.NoArgs,
	RunE:  handleStatsCommand,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the comparison API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  handleServeCommand,
}

func init() {
	for _, c := range []*cobra.Command{compareCmd, rankCmd, matchCmd} {
		c.Flags().StringVar(&metricName, "metric", "", "Metric: "+strings.Join(similarity.MetricNames(), ", "))
	}
	for _, c := range []*cobra.Command{compareCmd, detailCmd, rankCmd, matchCmd} {
		c.Flags().StringVar(&weightsSpec, "weights", "", "Weights as pixel=0.15,structural=0.3,...")
	}
	compareCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	detailCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	rankCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")

	rankCmd.Flags().StringVar(&targetPath, "target", "", "Target image (required)")
	rankCmd.Flags().StringVar(&folderPath, "folder", "", "Folder to rank (required)")
	rankCmd.Flags().IntVar(&rankLimit, "limit", 5, "Number of results to show, 0 for all")
	rankCmd.Flags().StringVar(&threshold, "threshold", "", "Only show images with loss at or below this value (0.0-1.0)")
	rankCmd.MarkFlagRequired("target")
	rankCmd.MarkFlagRequired("folder")

	matchCmd.Flags().StringVar(&targetPath, "target", "", "Target image (required)")
	matchCmd.Flags().StringVar(&savePath, "save", "", "Write the best generated image to this PNG file")
	matchCmd.MarkFlagRequired("target")

	statsCmd.Flags().StringVar(&sessionID, "session", "", "Session id (required)")
	statsCmd.MarkFlagRequired("session")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

// newScorer builds the scorer from config, with --weights taking precedence
func newScorer(opts ...similarity.Option) (*similarity.Scorer, error) {
	if weightsSpec == "" {
		return cfg.Scoring.NewScorer(opts...)
	}
	w, err := utils.ParseWeights(weightsSpec)
	if err != nil {
		return nil, err
	}
	opts = append([]similarity.Option{similarity.WithParallel(cfg.Scoring.Parallel), similarity.WithWeights(w)}, opts...)
	return similarity.NewScorer(opts...)
}

// selectedMetric returns --metric, falling back to the configured metric
func selectedMetric() (similarity.Metric, error) {
	if metricName != "" {
		return similarity.ParseMetric(metricName)
	}
	return cfg.Scoring.ParsedMetric()
}

func loadPair(args []string) (image.Image, image.Image, error) {
	a, err := imageprocessor.LoadImage(args[0])
	if err != nil {
		return nil, nil, err
	}
	b, err := imageprocessor.LoadImage(args[1])
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func handleCompareCommand(cmd *cobra.Command, args []string) error {
	m, err := selectedMetric()
	if err != nil {
		return err
	}
	scorer, err := newScorer()
	if err != nil {
		return err
	}
	a, b, err := loadPair(args)
	if err != nil {
		return err
	}

	loss, err := scorer.Loss(a, b, m)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, server.CompareResponse{Metric: m.String(), Loss: loss, Similarity: 1 - loss})
	}
	fmt.Fprintf(out, "%s loss: %.4f (similarity %.4f)\n", m, loss, 1-loss)
	return nil
}

func handleDetailCommand(cmd *cobra.Command, args []string) error {
	scorer, err := newScorer()
	if err != nil {
		return err
	}
	a, b, err := loadPair(args)
	if err != nil {
		return err
	}

	report, err := scorer.Detailed(a, b)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, report)
	}
	fmt.Fprintf(out, "Overall similarity: %.4f (loss %.4f)\n\n", report.OverallSimilarity, report.OverallLoss)
	for _, m := range similarity.CoreMetrics {
		c, ok := report.Components[m.String()]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "%-20s %.4f  %s\n", c.Label, c.Score, c.Description)
	}
	return nil
}

func handleRankCommand(cmd *cobra.Command, args []string) error {
	m, err := selectedMetric()
	if err != nil {
		return err
	}
	scorer, err := newScorer()
	if err != nil {
		return err
	}

	maxLoss := 1.0
	if threshold != "" {
		parsed, err := utils.ParseLossThreshold(threshold)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		}
		maxLoss = parsed
	}

	target, err := imageprocessor.LoadImage(targetPath)
	if err != nil {
		return fmt.Errorf("loading target: %w", err)
	}

	progress := cmd.ErrOrStderr()
	if jsonOutput {
		progress = nil
	}
	result, err := scanner.RankFolder(cmd.Context(), target, scanner.RankOptions{
		FolderPath: folderPath,
		Metric:     m,
		Scorer:     scorer,
		Progress:   progress,
		DebugMode:  cfg.Logging.Debug,
	})
	if err != nil && result == nil {
		return err
	}

	matches := make([]types.RankedImage, 0, len(result.Images))
	for _, img := range result.Images {
		if img.Loss <= maxLoss {
			matches = append(matches, img)
		}
	}
	if rankLimit > 0 && len(matches) > rankLimit {
		matches = matches[:rankLimit]
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if perr := printJSON(out, matches); perr != nil {
			return perr
		}
		return err
	}

	fmt.Fprintln(out, "\nTop Matches:")
	if len(matches) == 0 {
		fmt.Fprintln(out, "No matches found.")
	}
	for i, img := range matches {
		fmt.Fprintf(out, "%d. Image: %s\n", i+1, img.Path)
		fmt.Fprintf(out, "   Loss: %.4f  Format: %s  Hash: %s (distance %d)\n", img.Loss, img.Format, img.Hash, img.HashDistance)
	}
	return err
}

func handleMatchCommand(cmd *cobra.Command, args []string) error {
	m, err := selectedMetric()
	if err != nil {
		return err
	}
	target, err := imageprocessor.LoadImage(targetPath)
	if err != nil {
		return fmt.Errorf("loading target: %w", err)
	}
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return err
	}
	scorer, err := newScorer()
	if err != nil {
		return err
	}
	db, err := openDatabase()
	if err != nil {
		return err
	}
	store := database.NewStore(db)
	defer store.Close()

	session, err := game.NewMatchSession(target, client,
		game.WithMetric(m),
		game.WithLossScorer(scorer),
		game.WithAttemptRecorder(store))
	if err != nil {
		return err
	}

	handle := cfg.Embedding.EmbeddingHandle()
	defer handle.Close()
	semantic := embedding.NewSemantic(handle)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s. Enter a prompt per line; an empty line scores a black image.\n", session.ID())

	in := bufio.NewScanner(cmd.InOrStdin())
	for in.Scan() {
		if err := cmd.Context().Err(); err != nil {
			break
		}
		result, err := session.Submit(cmd.Context(), in.Text())
		if err != nil {
			fmt.Fprintf(out, "Generation error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "Attempt %d: loss %.4f, best %.4f [%s] %s\n",
			result.Attempt.Number, result.Loss, result.BestLoss, result.Feedback.Hex, result.Feedback.Message)
		if cfg.Embedding.Enabled && result.Attempt.Prompt != "" {
			if sim, err := semantic.TextImageSimilarity(result.Attempt.Prompt, target); err == nil {
				fmt.Fprintf(out, "   Prompt/target semantic similarity: %.4f\n", sim)
			}
		}
	}
	if err := in.Err(); err != nil {
		return err
	}

	if loss, prompt, best, ok := session.Best(); ok {
		fmt.Fprintf(out, "\nBest loss %.4f after %d attempts with prompt %q\n", loss, session.Attempts(), prompt)
		if savePath != "" {
			if err := imageprocessor.SavePNG(savePath, best); err != nil {
				return err
			}
			fmt.Fprintf(out, "Best image saved to %s\n", savePath)
		}
	}
	return cmd.Context().Err()
}

func handleDefendCommand(cmd *cobra.Command, args []string) error {
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return err
	}
	db, err := openDatabase()
	if err != nil {
		return err
	}
	store := database.NewStore(db)
	defer store.Close()

	g := game.NewDefenseGame(client, store)
	out := cmd.OutOrStdout()
	in := bufio.NewScanner(cmd.InOrStdin())

	fmt.Fprintf(out, "Session %s. Keyword:\n", g.ID())
	for g.Phase() != game.PhaseAttack && in.Scan() {
		line := in.Text()
		switch g.Phase() {
		case game.PhaseSetup:
			err = g.SetKeyword(line)
			if err == nil {
				fmt.Fprintf(out, "Keyword set. Defense prompt (suggested time %v):\n", game.DefenseTime)
			}
		case game.PhaseDefense:
			err = g.SetDefense(line)
			if err == nil {
				fmt.Fprintf(out, "Defense saved. Attacks, one per line (%v per round):\n", game.RoundTime)
			}
		}
		if err != nil {
			fmt.Fprintf(out, "%v\n", err)
		}
	}

	for in.Scan() {
		if err := cmd.Context().Err(); err != nil {
			break
		}
		result, err := g.Attack(cmd.Context(), in.Text())
		switch {
		case errors.Is(err, game.ErrIllegalAttack), errors.Is(err, game.ErrEmptyInput):
			fmt.Fprintf(out, "Illegal attack: %v\n", err)
			continue
		case err != nil:
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		verdict := "not present, defense holds"
		if result.Success {
			verdict = "present, attack succeeded"
		}
		fmt.Fprintf(out, "Model output:\n%s\n\nKeyword %s\nTokens: %d (total %d)\n\n",
			result.Output, verdict, result.Tokens, result.TotalTokens)
	}
	if err := in.Err(); err != nil {
		return err
	}

	history := g.History()
	wins := 0
	for _, h := range history {
		if h.Success {
			wins++
		}
	}
	fmt.Fprintf(out, "%d attacks, %d succeeded, %d tokens\n", len(history), wins, g.TotalTokens())
	return cmd.Context().Err()
}

func handleStatsCommand(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := database.GetSessionStats(db, sessionID)
	if err != nil {
		return err
	}
	attempts, err := database.ListAttempts(db, sessionID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s\n", sessionID)
	fmt.Fprintf(out, "- Attempts: %d\n", stats.Attempts)
	var bestHash imageprocessor.Hash
	hasBestHash := false
	if stats.BestLoss >= 0 {
		best, err := database.BestAttempt(db, sessionID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "- Best loss: %.4f (attempt %d, %q)\n", stats.BestLoss, best.Number, best.Prompt)
		if h, err := imageprocessor.ParseHash(best.ImageHash); err == nil {
			bestHash, hasBestHash = h, true
		}
	}
	fmt.Fprintf(out, "- Attacks: %d (%d succeeded, %d tokens)\n", stats.Attacks, stats.SuccessfulAttacks, stats.TotalTokens)

	for _, a := range attempts {
		marker := " "
		if a.IsBest {
			marker = "*"
		}
		distance := "-"
		if h, err := imageprocessor.ParseHash(a.ImageHash); err == nil && hasBestHash {
			distance = fmt.Sprint(imageprocessor.HammingDistance(bestHash, h))
		}
		fmt.Fprintf(out, "%s %3d  %.4f  %2s  %s\n", marker, a.Number, a.Loss, distance, a.Prompt)
	}

	attacks, err := database.ListAttacks(db, sessionID)
	if err != nil {
		return err
	}
	for _, r := range attacks {
		outcome := "held"
		if r.Success {
			outcome = "broke"
		}
		fmt.Fprintf(out, "[%s] %5d tokens  %s\n", outcome, r.Tokens, r.Attack)
	}
	return nil
}

func handleServeCommand(cmd *cobra.Command, args []string) error {
	addr := cfg.Server.Address
	if serveAddr != "" {
		addr = serveAddr
	}

	m := metrics.NewPrometheusMetrics()
	scorer, err := cfg.Scoring.NewScorer(similarity.WithObserver(m))
	if err != nil {
		return err
	}

	var semantic *embedding.Semantic
	if cfg.Embedding.Enabled {
		handle := cfg.Embedding.EmbeddingHandle()
		defer handle.Close()
		semantic = embedding.NewSemantic(handle)
	}

	return server.NewServer(scorer, m, semantic).ListenAndServe(cmd.Context(), addr)
}
