package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/subculture-collective/reelrelay/links"
	"github.com/subculture-collective/reelrelay/relay"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "List the cookie sessions discovered in COOKIES_DIR",
	Args:  cobra.NoArgs,
	RunE:  credentialsRun,
}

func credentialsRun(cmd *cobra.Command, args []string) error {
	pool, err := discoverPool()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tSESSION\tFILE")
	creds := pool.Snapshot()
	for _, p := range links.Platforms {
		n := 0
		for _, c := range creds {
			if c.Platform != p {
				continue
			}
			n++
			fmt.Fprintf(w, "%s\t%d\t%s\n", p.Label(), c.Ordinal, c.File())
		}
		if n == 0 {
			fmt.Fprintf(w, "%s\t-\t(none, unauthenticated only)\n", p.Label())
		}
	}
	return w.Flush()
}

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Show which supported links a message would be relayed for",
	Args:  cobra.MinimumNArgs(1),
	RunE:  classifyRun,
}

func classifyRun(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	all := links.ClassifyAll(text)
	if len(all) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no supported link")
		return nil
	}
	for i, l := range all {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %-15s %s\n", marker, l.Platform, l.URL)
	}
	return nil
}

var flagFetchOut string

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download one link through the session rotation without Telegram",
	Args:  cobra.ExactArgs(1),
	RunE:  fetchRun,
}

func init() {
	fetchCmd.Flags().StringVarP(&flagFetchOut, "out", "o", ".", "Directory to write the video to")
}

func fetchRun(cmd *cobra.Command, args []string) error {
	link, ok := links.Classify(args[0])
	if !ok {
		return fmt.Errorf("%q is not a supported Instagram, TikTok or YouTube Shorts link", args[0])
	}
	pool, err := discoverPool()
	if err != nil {
		return err
	}
	req := relay.DownloadRequest{
		ID:          uuid.New().String(),
		Text:        args[0],
		URL:         link.URL,
		Platform:    link.Platform,
		Sender:      relay.Sender{DisplayName: "cli"},
		SubmittedAt: time.Now(),
	}

	res := newController(pool).Resolve(cmd.Context(), req)
	if !res.Succeeded() {
		report := relay.FailureReport{Request: req, Attempts: res.Attempts, At: time.Now()}
		_, _ = cmd.ErrOrStderr().Write(report.Log())
		return errors.New(report.Cause())
	}
	defer res.Payload.Cleanup()

	if err := os.MkdirAll(flagFetchOut, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(flagFetchOut, fmt.Sprintf("%s_%s%s", link.Platform, req.ID[:8], filepath.Ext(res.Payload.Path)))
	if err := moveFile(res.Payload.Path, dst); err != nil {
		return fmt.Errorf("saving video: %w", err)
	}
	last, _ := res.Last()
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes, %s, %d attempts)\n", dst, res.Payload.Size, last.Label(), len(res.Attempts))
	return nil
}

// moveFile renames src to dst, copying when they sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
