package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidcaption/internal/app"
	"vidcaption/internal/config"
	"vidcaption/internal/render"
	"vidcaption/internal/virality"
)

// configFlag maps a command line flag onto a configuration key
type configFlag struct {
	name string
	key  string
}

var (
	fontFlags = []configFlag{
		{"font-path", "font.path"},
		{"bold-font-path", "font.bold_path"},
		{"font-size", "font.size"},
		{"font-color", "font.color"},
		{"outline-color", "font.outline_color"},
		{"outline-width", "font.outline_width"},
		{"line-spacing", "font.line_spacing"},
		{"bottom-padding", "font.bottom_padding"},
		{"width-percent", "font.width_percent"},
	}
	transcriptionFlags = []configFlag{
		{"backend", "recognizer.backend"},
		{"language", "recognizer.language"},
		{"chunk-duration", "transcription.chunk_duration_sec"},
		{"max-words", "transcription.max_words"},
		{"concurrency", "transcription.concurrency"},
	}
)

func addFontFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("font-path", "", "Font file for caption text")
	f.String("bold-font-path", "", "Font file for *emphasized* words")
	f.Int("font-size", 0, "Font size in pixels")
	f.String("font-color", "", "Text color: name or #RRGGBB")
	f.String("outline-color", "", "Outline color: name or #RRGGBB")
	f.Int("outline-width", 0, "Outline width in pixels (0 disables)")
	f.Int("line-spacing", 0, "Extra pixels between caption lines")
	f.Int("bottom-padding", 0, "Pixels between the caption block and the frame bottom")
	f.Float64("width-percent", 0, "Caption box width as a fraction of the frame width")
}

func addTranscriptionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("backend", "", "Recognizer backend: whisper-server, whisper-cli or openai")
	f.String("language", "", "Spoken language code, or auto")
	f.Float64("chunk-duration", 0, "Audio window length in seconds")
	f.Int("max-words", 0, "Maximum words per caption")
	f.Int("concurrency", 0, "Parallel recognizer requests")
}

// applyFlags copies explicitly set flags into the configuration
func applyFlags(cmd *cobra.Command, cfg *config.Configuration, bindings []configFlag) {
	for _, b := range bindings {
		flag := cmd.Flags().Lookup(b.name)
		if flag == nil || !flag.Changed {
			continue
		}
		cfg.Set(b.key, flag.Value.String())
	}
}

func newSubtitleCommand(ctx *commandContext) *cobra.Command {
	var (
		output        string
		transcription string
		generate      bool
	)

	cmd := &cobra.Command{
		Use:   "subtitle <video>",
		Short: "Burn timed captions into a video",
		Long: "Transcribes the video (with --generate-transcription) or reuses its saved\n" +
			"<name>.transcription.json, then renders each caption and re-encodes the video.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, fontFlags)
			applyFlags(cmd, cfg, transcriptionFlags)

			application, err := ctx.application()
			if err != nil {
				return err
			}
			result, err := application.Subtitle(cmd.Context(), app.SubtitleRequest{
				VideoPath:             args[0],
				OutputPath:            output,
				GenerateTranscription: generate,
				TranscriptionPath:     transcription,
				Fonts:                 render.FontSettingsFromConfig(cfg),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Subtitled video: %s\n", result.OutputPath)
			fmt.Fprintf(out, "Captions: %d\n", result.Segments)
			if generate {
				fmt.Fprintf(out, "Transcription saved to %s\n", result.TranscriptionPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output video path (default <name>.subtitled.mp4)")
	cmd.Flags().BoolVar(&generate, "generate-transcription", false, "Transcribe the video instead of reusing a saved transcription")
	cmd.Flags().StringVar(&transcription, "transcription", "", "Transcription file (default <name>.transcription.json)")
	addFontFlags(cmd)
	addTranscriptionFlags(cmd)
	return cmd
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "transcribe <video>",
		Short: "Transcribe a video into timed caption segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, transcriptionFlags)

			application, err := ctx.application()
			if err != nil {
				return err
			}
			path, segments, err := application.Transcribe(cmd.Context(), args[0], output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transcription saved to %s (%d segments)\n", path, len(segments))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Transcription file (default <name>.transcription.json)")
	addTranscriptionFlags(cmd)
	return cmd
}

func newScoreCommand(ctx *commandContext) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "score <video>",
		Short: "Rate fixed windows of a video for viral potential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, transcriptionFlags)
			if f := cmd.Flags().Lookup("window"); f != nil && f.Changed {
				cfg.Set("virality.window_sec", f.Value.String())
			}

			application, err := ctx.application()
			if err != nil {
				return err
			}
			moments, err := application.Score(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(moments) == 0 {
				fmt.Fprintln(out, "No viral moments were detected in the video.")
				return nil
			}
			fmt.Fprintln(out, renderMoments(moments, top))
			return nil
		},
	}

	cmd.Flags().IntVarP(&top, "top", "n", 5, "Number of moments to show (0 shows all)")
	cmd.Flags().Float64("window", 0, "Scoring window length in seconds")
	addTranscriptionFlags(cmd)
	return cmd
}

func renderMoments(moments []virality.Moment, top int) string {
	if top > 0 && top < len(moments) {
		moments = moments[:top]
	}
	rows := make([][]string, 0, len(moments))
	for i, m := range moments {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			virality.FormatTimestamp(m.Start) + " - " + virality.FormatTimestamp(m.End),
			strconv.FormatFloat(m.Score, 'f', 4, 64),
			truncateText(m.Text, 60),
		})
	}
	return renderTable(
		[]string{"#", "Timestamp", "Score", "Text"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
	)
}

func truncateText(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

func newRankCommand(ctx *commandContext) *cobra.Command {
	var (
		output    string
		numClips  int
		chunkSize int
	)

	cmd := &cobra.Command{
		Use:   "rank <clips.json>",
		Short: "Rank candidate clips for virality and save the top ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if numClips <= 0 {
				numClips = cfg.GetTopClips()
			}
			application, err := ctx.application()
			if err != nil {
				return err
			}
			ranked, err := application.RankClips(cmd.Context(), app.RankRequest{
				ClipsPath:  args[0],
				OutputPath: output,
				TopN:       numClips,
				ChunkSize:  chunkSize,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderRanked(ranked, numClips))
			fmt.Fprintf(out, "Saved top clips to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "top_clips.json", "Output JSON file for the top clips")
	cmd.Flags().IntVarP(&numClips, "num-clips", "n", 0, "Number of top clips to keep (default from config)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Clips ranked per request (default from config)")
	return cmd
}

func renderRanked(clips []virality.RankedClip, top int) string {
	if top > 0 && top < len(clips) {
		clips = clips[:top]
	}
	rows := make([][]string, 0, len(clips))
	for i, c := range clips {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			truncateText(c.Name, 40),
			virality.FormatTimestamp(c.Start) + " - " + virality.FormatTimestamp(c.End),
			strconv.Itoa(c.Score),
			truncateText(c.Platforms, 30),
		})
	}
	return renderTable(
		[]string{"#", "Clip", "Timestamp", "Score", "Platforms"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var (
		outDir   string
		maxClips int
	)

	cmd := &cobra.Command{
		Use:   "extract <video> <top_clips.json>",
		Short: "Cut the top ranked clips out of a video",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := ctx.application()
			if err != nil {
				return err
			}
			written, err := application.ExtractClips(cmd.Context(), args[0], args[1], outDir, maxClips)
			if err != nil {
				return err
			}
			for _, path := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "Extracted %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "output-dir", "o", "top_clips", "Directory for extracted clips")
	cmd.Flags().IntVarP(&maxClips, "max", "n", 5, "Maximum clips to extract (0 extracts all)")
	return cmd
}
