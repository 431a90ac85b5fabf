// Package ytdlp runs the yt-dlp binary for one extraction attempt and turns
// its exit status and output into a relay.AttemptResult.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/subculture-collective/reelrelay/credentials"
	"github.com/subculture-collective/reelrelay/links"
	"github.com/subculture-collective/reelrelay/relay"
)

// DefaultUserAgent is sent with every request yt-dlp makes.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// formats picks a progressive mp4 no taller than 720p when the site offers one.
var formats = map[links.Platform]string{
	links.Instagram:     "best[height<=720][ext=mp4]/best[ext=mp4]/best[height<=720]/best",
	links.TikTok:        "best[ext=mp4]/best",
	links.YouTubeShorts: "best[height<=720][ext=mp4]/best[ext=mp4]/best",
}

// Runner executes the binary and returns captured stdout and stderr.
type Runner func(ctx context.Context, bin string, args []string) (stdout, stderr []byte, err error)

// ExecRunner runs bin with exec.CommandContext.
func ExecRunner(ctx context.Context, bin string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Options configure the extractor.
type Options struct {
	Binary    string
	TempDir   string
	UserAgent string
	// ExtraArgs are appended to every invocation before the URL.
	ExtraArgs []string
	Runner    Runner
}

// Extractor implements relay.Extractor on top of yt-dlp.
type Extractor struct {
	opts   Options
	logger *slog.Logger
}

// New returns an extractor with defaults filled in.
func New(opts Options) *Extractor {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.TempDir == "" {
		opts.TempDir = filepath.Join(os.TempDir(), "reelrelay")
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner
	}
	return &Extractor{opts: opts, logger: slog.Default().With(slog.String("component", "ytdlp"))}
}

// Args builds the yt-dlp argument list for one attempt writing into dir.
func (e *Extractor) Args(req relay.DownloadRequest, cred credentials.Credential, dir string) []string {
	format := formats[req.Platform]
	if format == "" {
		format = "best"
	}
	args := []string{
		"--no-warnings",
		"--no-playlist",
		"--no-progress",
		"--restrict-filenames",
		"-f", format,
		"--merge-output-format", "mp4",
		"--print-json",
		"--add-headers", "User-Agent:" + e.opts.UserAgent,
		"-o", filepath.Join(dir, "media.%(ext)s"),
	}
	if !cred.Anonymous() {
		args = append(args, "--cookies", cred.Path)
	}
	args = append(args, e.opts.ExtraArgs...)
	return append(args, req.URL)
}

// Extract runs one attempt. The returned payload lives in its own scratch
// directory which the caller removes via Payload.Cleanup; on failure the
// directory is removed here.
func (e *Extractor) Extract(ctx context.Context, req relay.DownloadRequest, cred credentials.Credential) relay.AttemptResult {
	started := time.Now()
	res := relay.AttemptResult{StartedAt: started}
	logger := e.logger.With(slog.String("request_id", req.ID), slog.String("session", cred.Label()))

	if err := os.MkdirAll(e.opts.TempDir, 0o755); err != nil {
		res.Outcome = relay.OutcomeFatalError
		res.Log = fmt.Sprintf("create temp dir: %v", err)
		res.Duration = time.Since(started)
		return res
	}
	dir, err := os.MkdirTemp(e.opts.TempDir, "attempt-*")
	if err != nil {
		res.Outcome = relay.OutcomeFatalError
		res.Log = fmt.Sprintf("create attempt dir: %v", err)
		res.Duration = time.Since(started)
		return res
	}

	args := e.Args(req, cred, dir)
	logger.Debug("running yt-dlp", slog.String("url", req.URL), slog.String("cookies", cred.File()))
	stdout, stderr, runErr := e.opts.Runner(ctx, e.opts.Binary, args)
	res.Duration = time.Since(started)
	res.Log = attemptLog(e.opts.Binary, args, stderr, runErr)
	res.Outcome = Classify(string(stderr), runErr, ctx.Err())

	if res.Outcome == relay.OutcomeSuccess {
		p, perr := collect(dir, stdout)
		if perr != nil {
			res.Outcome = relay.OutcomeFatalError
			res.Log += "\n" + perr.Error()
		} else {
			res.Payload = p
		}
	}
	if res.Payload == nil {
		_ = os.RemoveAll(dir)
	}
	logger.Info("yt-dlp attempt finished",
		slog.String("outcome", string(res.Outcome)),
		slog.Duration("duration", res.Duration))
	return res
}

// info is the subset of yt-dlp's JSON we use.
type info struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Filename string  `json:"filename"`
}

// collect locates the downloaded file in dir and reads metadata from the
// JSON printed on stdout.
func collect(dir string, stdout []byte) (*relay.Payload, error) {
	var meta info
	if line := lastJSONLine(stdout); line != nil {
		if err := json.Unmarshal(line, &meta); err != nil {
			slog.Debug("yt-dlp metadata not parsed", slog.Any("err", err), slog.String("component", "ytdlp"))
		}
	}
	path, err := mediaFile(dir, meta.Filename)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media: %w", err)
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("media file %s is empty", filepath.Base(path))
	}
	return &relay.Payload{
		Path:     path,
		Dir:      dir,
		Size:     st.Size(),
		Title:    meta.Title,
		Duration: int(meta.Duration + 0.5),
		Width:    meta.Width,
		Height:   meta.Height,
	}, nil
}

func mediaFile(dir, hinted string) (string, error) {
	if hinted != "" && filepath.Dir(hinted) == filepath.Clean(dir) {
		if _, err := os.Stat(hinted); err == nil {
			return hinted, nil
		}
	}
	matches, err := filepath.Glob(filepath.Join(dir, "media.*"))
	if err != nil {
		return "", fmt.Errorf("glob media: %w", err)
	}
	var files []string
	for _, m := range matches {
		switch {
		case strings.HasSuffix(m, ".part"), strings.HasSuffix(m, ".ytdl"), strings.HasSuffix(m, ".json"):
			continue
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("yt-dlp exited cleanly but produced no media file")
	}
	sort.SliceStable(files, func(i, j int) bool {
		return strings.HasSuffix(files[i], ".mp4") && !strings.HasSuffix(files[j], ".mp4")
	})
	return files[0], nil
}

func lastJSONLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		l := bytes.TrimSpace(lines[i])
		if len(l) > 0 && l[0] == '{' {
			return l
		}
	}
	return nil
}

func attemptLog(bin string, args []string, stderr []byte, runErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$ %s %s\n", bin, strings.Join(args, " "))
	if len(stderr) > 0 {
		b.Write(bytes.TrimRight(stderr, "\n"))
		b.WriteByte('\n')
	}
	if runErr != nil {
		fmt.Fprintf(&b, "exit: %v\n", runErr)
	} else {
		b.WriteString("exit: 0\n")
	}
	return b.String()
}
