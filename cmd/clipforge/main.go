/*
LICENSE
  Copyright (C) 2026 the Clipforge authors

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

// Clipforge is a multi-tenant live-stream clipping service: it watches
// registered upstream channels, captures their broadcasts to local disk
// while they are live, and cuts user-requested clips out of whatever has
// been captured.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/clipforge/clipforge/internal/coldstore"
	"github.com/clipforge/clipforge/internal/cutter"
	"github.com/clipforge/clipforge/internal/durable"
	"github.com/clipforge/clipforge/internal/hooks"
	"github.com/clipforge/clipforge/internal/janitor"
	"github.com/clipforge/clipforge/internal/limiter"
	"github.com/clipforge/clipforge/internal/opsnotify"
	"github.com/clipforge/clipforge/internal/platform"
	"github.com/clipforge/clipforge/internal/registry"
	"github.com/clipforge/clipforge/internal/sharer"
	"github.com/clipforge/clipforge/internal/stream"
	"github.com/clipforge/clipforge/internal/webclip"
)

const version = "v0.3.2"

// Platform URL patterns the two bundled modules recognize.
const (
	platformYPattern = `(?:youtube\.com|youtu\.be)`
	platformTPattern = `twitch\.tv`
)

var debug bool

func main() {
	defaultPort := 8080
	if v := os.Getenv("PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			defaultPort = i
		}
	}

	var (
		host          string
		port          int
		linkPort      int
		downloadDir   string
		clipDir       string
		cookieFile    string
		faviconPath   string
		directoryPath string
		dlBinary      string
		cutBinary     string
		dlBudget      int64
		clipsBudget   int64
		attachLimit   int64
		coldBucket    string
		resumeList    string
	)
	flag.BoolVar(&debug, "debug", false, "Run in debug mode.")
	flag.StringVar(&host, "host", "0.0.0.0", "Host the web surface listens on")
	flag.IntVar(&port, "port", defaultPort, "Port the web surface listens on")
	flag.IntVar(&linkPort, "linkport", 0, "Port clip links are reached on, if port-forwarded differently (0 = same as -port); only reported in the startup log")
	flag.StringVar(&downloadDir, "downloads", "downloads", "Directory for live captures and VOD range files")
	flag.StringVar(&clipDir, "clips", "clips", "Directory for finished clip files")
	flag.StringVar(&cookieFile, "cookies", "cookies.txt", "Cookie jar consumed by the extractor and downloader")
	flag.StringVar(&faviconPath, "favicon", "", "Optional favicon file")
	flag.StringVar(&directoryPath, "directory", "", "Optional JSON file mapping names to channel URLs")
	flag.StringVar(&dlBinary, "dlbin", "yt-dlp", "External downloader/extractor binary")
	flag.StringVar(&cutBinary, "cutbin", "ffmpeg", "External media tool used for cutting")
	flag.Int64Var(&dlBudget, "dlbudget", 20<<30, "Byte budget for the downloads directory")
	flag.Int64Var(&clipsBudget, "clipsbudget", 2<<30, "Byte budget for the clips directory")
	flag.Int64Var(&attachLimit, "attachlimit", 8<<20, "Chat-platform attachment size limit in bytes")
	flag.StringVar(&coldBucket, "coldbucket", os.Getenv("COLD_BUCKET"), "Optional GCS bucket mirroring evicted captures")
	flag.StringVar(&resumeList, "resume", "", "Comma-separated text-channel IDs whose registrations resume on startup")
	flag.Parse()

	if debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, dir := range []string{downloadDir, clipDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("could not create %s: %v", dir, err)
		}
	}

	store := newStore()
	notifier := newNotifier(store)

	mirror, err := coldstore.New(ctx, coldBucket)
	if err != nil {
		log.Fatalf("could not set up cold mirror: %v", err)
	}

	extractor := platform.NewExtractor(
		platform.NewPlatformY(dlBinary, platformYPattern),
		platform.NewPlatformT(dlBinary, platformTPattern),
	)
	// Steady-state pacing: burst of 120 requests, refilling at 720/hour
	// (one every 5s), on top of the extractor's own cooldown gates.
	pacer, err := limiter.GetTokenBucket(ctx, store.Table("rate_limits"), "extractor", 120, 720)
	if err != nil {
		log.Fatalf("could not set up extractor pacing: %v", err)
	}
	extractor.SetPacer(pacer)

	resolver := platform.NewResolver(loadDirectory(directoryPath), extractor)

	streamCfg := stream.Config{
		Cutter:          cutter.New(cutBinary),
		DownloadBinary:  dlBinary,
		CookieFile:      cookieFile,
		DownloadDir:     downloadDir,
		ClipDir:         clipDir,
		AttachmentLimit: attachLimit,
		Mirror:          mirror,
	}
	reg := registry.New(streamCfg, resolver, extractor, store.Table(durable.TableAllStreams))
	if token := os.Getenv("PLATFORM_API_TOKEN"); token != "" {
		apiURL := os.Getenv("PLATFORM_API_URL")
		if apiURL == "" {
			apiURL = "https://holodex.net/api/v2"
		}
		reg.SetSecondary(platform.NewSecondarySource(apiURL, token))
	}

	shr := sharer.New(reg.PollFunc, notifier, store.Table(durable.TableRegisters))
	hooks.Factories{
		Captured: store.Table(durable.TableCapturedStreams),
	}.RegisterAll(shr)

	for _, chn := range splitList(resumeList) {
		if err := shr.LoadAll(ctx, chn); err != nil {
			log.Printf("resuming registrations for channel %s: %v", chn, err)
		}
	}

	jan := janitor.New(janitor.Config{
		DownloadDir:     downloadDir,
		ClipDir:         clipDir,
		DownloadsBudget: dlBudget,
		ClipsBudget:     clipsBudget,
	}, reg, notifier)
	if err := jan.Start(ctx); err != nil {
		log.Fatalf("could not start janitor: %v", err)
	}

	web := webclip.New(webclip.Config{
		ClipDir:     clipDir,
		FaviconPath: faviconPath,
		LinkSecret:  linkSecret(),
	}, store.Table(durable.TableRedirects))

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("clipforge %s serving clips on %s", version, addr)
		if err := web.Listen(addr); err != nil {
			log.Fatalf("web surface exited: %v", err)
		}
	}()
	if linkPort != 0 && linkPort != port {
		log.Printf("link port %d differs from listen port %d", linkPort, port)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("shutting down")
	cancel()
	jan.Stop()
	if err := web.Shutdown(); err != nil {
		log.Printf("web shutdown: %v", err)
	}
	if err := mirror.Close(); err != nil {
		log.Printf("mirror close: %v", err)
	}
}

// newStore assembles the durable table composite. The default deployment
// keeps everything in one in-process store; a durable deployment routes
// individual tables to a database-backed TableStore here.
func newStore() *durable.CompositeStore {
	return durable.NewCompositeStore(nil, durable.NewMemStore())
}

// newNotifier configures ops alerting from the environment. With no
// mailjet keys set, alerts are logged but not mailed.
func newNotifier(store durable.Store) *opsnotify.Notifier {
	sender := os.Getenv("OPS_SENDER")
	recipient := os.Getenv("OPS_RECIPIENT")
	publicKey := os.Getenv("MAILJET_PUBLIC_KEY")
	privateKey := os.Getenv("MAILJET_PRIVATE_KEY")
	if sender == "" || publicKey == "" || privateKey == "" {
		log.Printf("ops notification not fully configured, alerts will be log-only")
		return opsnotify.Init("", "", "", "", nil)
	}
	return opsnotify.Init(sender, recipient, publicKey, privateKey, newTimeStore(store.Table("notify_times")))
}

// linkSecret reads the HMAC key for time-limited links, if configured.
func linkSecret() []byte {
	if s := os.Getenv("LINK_SECRET"); s != "" {
		return []byte(s)
	}
	return nil
}

// loadDirectory reads the optional static name -> channel URLs directory.
func loadDirectory(path string) platform.Directory {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("could not read directory file %s: %v", path, err)
	}
	var dir platform.Directory
	if err := json.Unmarshal(data, &dir); err != nil {
		log.Fatalf("could not parse directory file %s: %v", path, err)
	}
	return dir
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
