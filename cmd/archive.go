// File: cmd/archive.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webarchiver/internal/archiver"
	"github.com/xkilldash9x/webarchiver/internal/capture"
	"github.com/xkilldash9x/webarchiver/internal/config"
	"github.com/xkilldash9x/webarchiver/internal/network"
	"github.com/xkilldash9x/webarchiver/internal/observability"
	"github.com/xkilldash9x/webarchiver/internal/urlresolve"
	"github.com/xkilldash9x/webarchiver/internal/webarchive"
)

// archiveFlags holds the flags that only make sense for a single run.
// Everything else is bound to the configuration.
type archiveFlags struct {
	output     string
	htmlFile   string
	bundleFile string
	thumbnail  string
	textFile   string
}

func newArchiveCmd(v *viper.Viper) *cobra.Command {
	flags := &archiveFlags{}

	archiveCmd := &cobra.Command{
		Use:   "archive [url]",
		Short: "Archive a web page and its subresources",
		Long: `Downloads the page at the given URL along with every stylesheet, script,
image, video and frame it references, and writes them into a single archive.
Pages that are nothing but an image are saved as that image.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return err
			}
			if len(args) == 0 && flags.bundleFile == "" {
				return errors.New("a page URL or --bundle is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runArchive(cmd.Context(), cfg, flags, args, cmd.OutOrStdout())
		},
	}

	fs := archiveCmd.Flags()
	fs.StringVarP(&flags.output, "output", "o", "", "output file (default derived from the page host)")
	fs.StringVar(&flags.htmlFile, "html", "", "use this file as the page markup instead of fetching it")
	fs.StringVar(&flags.bundleFile, "bundle", "", "JSON capture bundle with the page markup and resource URLs")
	fs.StringVar(&flags.thumbnail, "thumbnail", "", "also write the page thumbnail to this file")
	fs.StringVar(&flags.textFile, "text", "", "also write the page text to this file")

	fs.Bool("render", false, "capture the page with a headless browser")
	fs.Bool("private", false, "send and store no cookies")
	fs.Bool("force-https", false, "rewrite http URLs to https before fetching")
	fs.Bool("keep-scratch", false, "keep downloaded resource files after archiving")
	fs.String("scratch-dir", "", "parent directory for downloaded resource files")
	fs.String("response-template", "", "keyed archive used as the response record template")
	fs.String("metrics-file", "", "write run metrics to this file")
	fs.Int("concurrency", 0, "maximum concurrent fetches (0 keeps the configured value)")
	fs.String("user-agent", "", "User-Agent header for every request")

	bindings := map[string]string{
		"browser.enabled":           "render",
		"archive.private":           "private",
		"archive.force_https":       "force-https",
		"archive.keep_scratch":      "keep-scratch",
		"archive.scratch_dir":       "scratch-dir",
		"archive.response_template": "response-template",
		"archive.metrics_file":      "metrics-file",
		"network.max_concurrency":   "concurrency",
		"network.user_agent":        "user-agent",
	}
	for key, name := range bindings {
		_ = v.BindPFlag(key, fs.Lookup(name))
	}

	return archiveCmd
}

func runArchive(ctx context.Context, cfg config.Interface, flags *archiveFlags, args []string, out io.Writer) error {
	logger := observability.GetLogger()
	netCfg, arcCfg, brCfg := cfg.Network(), cfg.Archive(), cfg.Browser()

	urlresolve.SetForceHTTPS(arcCfg.ForceHTTPS)

	metrics := archiver.NewMetrics()
	if arcCfg.MetricsFile != "" {
		defer func() {
			if err := metrics.WriteToTextfile(arcCfg.MetricsFile); err != nil {
				logger.Warn("Failed to write metrics.", zap.Error(err))
			}
		}()
	}

	opts := archiver.Options{
		Private:     arcCfg.Private,
		ScratchDir:  arcCfg.ScratchDir,
		UserAgent:   netCfg.UserAgent,
		ImageAccept: netCfg.ImageAccept,
		Resolver:    urlresolve.New(arcCfg.ResolverCache),
		Logger:      logger,
		Metrics:     metrics,
		Progress: func(p float64) {
			logger.Debug("Progress.", zap.Float64("fraction", p))
		},
	}

	if err := applyPageInputs(&opts, flags, args); err != nil {
		return err
	}

	fetcher, err := newFetcher(netCfg, logger)
	if err != nil {
		return err
	}
	opts.Fetcher = fetcher

	codec, err := newResponseCodec(arcCfg.ResponseTemplate, logger, metrics)
	if err != nil {
		return err
	}
	opts.Codec = codec

	if brCfg.Enabled && opts.HTML == "" {
		src := capture.NewBrowserSource(ctx, opts.URL, capture.BrowserConfig{
			Headless:  brCfg.Headless,
			Args:      brCfg.Args,
			UserAgent: netCfg.UserAgent,
			Settle:    brCfg.Settle,
		}, logger)
		defer src.Close()
		opts.Source = src
	}

	a, err := archiver.New(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		dir := a.ScratchDir()
		if dir == "" {
			return
		}
		if arcCfg.KeepScratch {
			logger.Info("Keeping scratch directory.", zap.String("path", dir))
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("Failed to remove scratch directory.", zap.String("path", dir), zap.Error(err))
		}
	}()

	result, err := a.Wait(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.Cancel()
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", opts.URL, err)
	}
	if result.IsEmpty() {
		return fmt.Errorf("archive of %s is empty", opts.URL)
	}

	return writeOutputs(result, flags, out, logger)
}

// applyPageInputs fills in the page URL and any pre-captured content.
func applyPageInputs(opts *archiver.Options, flags *archiveFlags, args []string) error {
	if flags.bundleFile != "" {
		path, err := homedir.Expand(flags.bundleFile)
		if err != nil {
			return err
		}
		bundle, err := capture.LoadBundle(path)
		if err != nil {
			return err
		}
		if err := bundle.Apply(opts); err != nil {
			return err
		}
	}

	if len(args) == 1 {
		u, err := parseTargetURL(args[0])
		if err != nil {
			return err
		}
		opts.URL = u
	}

	if flags.htmlFile != "" {
		path, err := homedir.Expand(flags.htmlFile)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read page markup: %w", err)
		}
		opts.HTML = string(data)
	}
	return nil
}

// parseTargetURL accepts a bare host as shorthand for https.
func parseTargetURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("URL %q has no host", raw)
	}
	return u, nil
}

func newFetcher(netCfg config.NetworkConfig, logger *zap.Logger) (*network.HTTPFetcher, error) {
	clientCfg := network.NewDefaultClientConfig()
	clientCfg.RequestTimeout = netCfg.Timeout
	clientCfg.MaxRedirects = netCfg.MaxRedirects
	clientCfg.IgnoreTLSErrors = netCfg.IgnoreTLSErrors
	clientCfg.Logger = logger.Named("httpclient")
	if netCfg.Proxy != "" {
		proxy, err := url.Parse(netCfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		clientCfg.ProxyURL = proxy
	}

	return network.NewHTTPFetcher(network.NewClient(clientCfg), network.FetcherConfig{
		MaxConcurrency: netCfg.MaxConcurrency,
		RateLimit:      netCfg.RateLimit,
		RateBurst:      netCfg.RateBurst,
	}, logger), nil
}

// newResponseCodec returns nil for an empty path so the archiver uses its
// built-in template.
func newResponseCodec(path string, logger *zap.Logger, metrics *archiver.Metrics) (*webarchive.ResponseCodec, error) {
	if path == "" {
		return nil, nil
	}
	template, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read response template: %w", err)
	}
	codec := webarchive.NewResponseCodec(template, logger,
		webarchive.WithFallbackHook(func(error) { metrics.IncEncodingFallback() }))
	if err := codec.Validate(); err != nil {
		logger.Warn("Response template cannot be patched, records will use the plain encoding.",
			zap.String("path", path), zap.Error(err))
	}
	return codec, nil
}

func writeOutputs(result *archiver.Result, flags *archiveFlags, out io.Writer, logger *zap.Logger) error {
	path := flags.output
	if path == "" {
		path = defaultOutputName(result)
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, result.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	if flags.thumbnail != "" {
		if result.Thumbnail == nil {
			logger.Warn("Page has no thumbnail.")
		} else if err := os.WriteFile(flags.thumbnail, result.Thumbnail, 0o644); err != nil {
			return fmt.Errorf("failed to write thumbnail: %w", err)
		}
	}
	if flags.textFile != "" {
		if err := os.WriteFile(flags.textFile, []byte(result.Text), 0o644); err != nil {
			return fmt.Errorf("failed to write page text: %w", err)
		}
	}

	logger.Info("Archive written.",
		zap.String("path", path),
		zap.String("title", result.Title),
		zap.String("author", result.Meta.Author),
		zap.String("mime_type", result.MIMEType),
		zap.Int("bytes", len(result.Data)),
		zap.Int64("resources", result.Resources),
		zap.Int64("failures", result.Failures))

	fmt.Fprintln(out, path)
	return nil
}

var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

	outputExtensions = map[string]string{
		webarchive.MIMEType: ".webarchive",
		"application/pdf":   ".pdf",
		"image/png":         ".png",
		"image/jpeg":        ".jpg",
		"image/gif":         ".gif",
		"image/webp":        ".webp",
		"image/bmp":         ".bmp",
		"image/tiff":        ".tiff",
	}
)

// defaultOutputName names the output after the page host and its media type.
func defaultOutputName(result *archiver.Result) string {
	name := "page"
	if result.URL != nil {
		if host := unsafeNameChars.ReplaceAllString(result.URL.Hostname(), "-"); strings.Trim(host, ".-") != "" {
			name = strings.Trim(host, ".-")
		}
	}
	ext, ok := outputExtensions[result.MIMEType]
	if !ok {
		ext = ".bin"
	}
	return name + ext
}
