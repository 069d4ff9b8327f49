package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/tgplay/internal/player"
)

// A snapshot older than this while playing means the player is gone.
const staleAfter = 30 * time.Second

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the track the player is playing",
	Long: `Display the track the running player is playing.

The output format can be customized in ~/.config/tgplay/config.yaml
using a Go template. Available fields: .Title, .Artist, .ID, .Status,
.Duration, .Position (durations are pre-formatted as M:SS).

Exit codes:
  0 - Track is currently playing
  1 - No track playing, paused, or the player is not running`,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
	nowCmd.Flags().Bool("marquee", false, "Enable marquee scrolling for long text (overrides config)")
}

// nowData is what the output template sees.
type nowData struct {
	ID       string
	Title    string
	Artist   string
	Status   string
	Duration string
	Position string
}

func runNow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if formatFlag, _ := cmd.Flags().GetString("format"); formatFlag != "" {
		cfg.OutputFormat = formatFlag
	}

	snap, err := player.ReadSnapshot(cfg.StatePath())
	if err != nil {
		os.Exit(1)
	}

	now := time.Now()
	if !isPlaying(snap, now) {
		os.Exit(1)
	}

	output, err := formatNow(snap, now, cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	width, _ := cmd.Flags().GetInt("width")
	if width == 0 {
		width = cfg.OutputWidth
	}

	marquee, _ := cmd.Flags().GetBool("marquee")
	if !cmd.Flags().Changed("marquee") {
		marquee = cfg.Marquee.Enabled
	}

	if width > 0 {
		if marquee {
			output = marqueeText(output, width, cfg.Marquee.Speed, cfg.Marquee.Separator, now)
		} else {
			output = padToWidth(output, width)
		}
	}

	fmt.Println(output)
	return nil
}

func isPlaying(snap player.Snapshot, now time.Time) bool {
	if snap.Track == nil || !snap.Playing {
		return false
	}
	return now.Sub(snap.UpdatedAt) <= staleAfter
}

// formatNow applies the template to the snapshot
func formatNow(snap player.Snapshot, now time.Time, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	data := nowData{
		Status:   snap.Status,
		Duration: formatClock(snap.Duration),
		Position: formatClock(snap.Elapsed(now)),
	}
	if snap.Track != nil {
		data.ID = snap.Track.ID
		data.Title = snap.Track.Title
		data.Artist = snap.Track.Artist
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}
	return buf.String(), nil
}

// padToWidth pads or truncates text to exactly width display columns,
// ending truncated text with "...". A width <= 0 leaves text unchanged.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	const ellipsis = "..."
	if runewidth.StringWidth(text) > width {
		if width <= runewidth.StringWidth(ellipsis) {
			return runewidth.Truncate(ellipsis, width, "")
		}
		text = runewidth.Truncate(text, width, ellipsis)
	}
	return runewidth.FillRight(text, width)
}

// marqueeText scrolls text that does not fit through a window of width
// columns. The offset is derived from now, speed columns per second, so
// repeated invocations (a status bar refresh) step through the text
// without keeping state. Text that fits is padded instead.
func marqueeText(text string, width int, speed int, separator string, now time.Time) string {
	if width <= 0 {
		return text
	}
	if runewidth.StringWidth(text) <= width {
		return padToWidth(text, width)
	}
	if speed <= 0 {
		speed = 1
	}

	loop := []rune(text + separator)
	offset := int(now.Unix()*int64(speed)) % len(loop)

	var sb strings.Builder
	used := 0
	for i := 0; used < width && i < len(loop); i++ {
		r := loop[(offset+i)%len(loop)]
		rw := runewidth.RuneWidth(r)
		if used+rw > width {
			break
		}
		sb.WriteRune(r)
		used += rw
	}
	return runewidth.FillRight(sb.String(), width)
}
